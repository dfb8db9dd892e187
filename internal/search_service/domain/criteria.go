package domain

import (
	"errors"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MinRooms = 1
	// MaxRooms means "MaxRooms or more".
	MaxRooms = 5
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Criteria is what a search looks for. Nil fields are unrestricted and an empty
// Districts slice matches every district.
type Criteria struct {
	MinPrice  *int     `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice  *int     `json:"max_price,omitempty" validate:"omitempty,gte=0"`
	NumRooms  *int     `json:"num_rooms,omitempty" validate:"omitempty,min=1,max=5"`
	Districts []string `json:"districts" validate:"dive,required"`
}

// IsEmpty reports whether no criterion is set.
func (c Criteria) IsEmpty() bool {
	return c.MinPrice == nil && c.MaxPrice == nil && c.NumRooms == nil && len(c.Districts) == 0
}

// Validate returns a *ValidationError for the first violated rule.
func (c Criteria) Validate() error {
	if c.IsEmpty() {
		return &ValidationError{Reason: "at least one criterion must be set"}
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Field(), Reason: reasonFor(verrs[0])}
		}
		return &ValidationError{Reason: err.Error()}
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice >= *c.MaxPrice {
		return &ValidationError{Field: "MaxPrice", Reason: "must be greater than MinPrice"}
	}
	return nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must not be negative"
	case "min", "max":
		return "must be between 1 and 5"
	case "required":
		return "must not be empty"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Clone returns a deep copy so drafts never alias stored criteria.
func (c Criteria) Clone() Criteria {
	out := Criteria{
		MinPrice: cloneInt(c.MinPrice),
		MaxPrice: cloneInt(c.MaxPrice),
		NumRooms: cloneInt(c.NumRooms),
	}
	if c.Districts != nil {
		out.Districts = slices.Clone(c.Districts)
	} else {
		out.Districts = []string{}
	}
	return out
}

// HasDistrict matches case-insensitively.
func (c Criteria) HasDistrict(name string) bool {
	return slices.IndexFunc(c.Districts, func(d string) bool { return strings.EqualFold(d, name) }) >= 0
}

// ToggleDistrict adds name when absent and removes it when present.
func (c *Criteria) ToggleDistrict(name string) {
	if i := slices.IndexFunc(c.Districts, func(d string) bool { return strings.EqualFold(d, name) }); i >= 0 {
		c.Districts = slices.Delete(c.Districts, i, i+1)
		return
	}
	c.Districts = append(c.Districts, name)
}

// IntPtr is a convenience for building criteria literals.
func IntPtr(v int) *int { return &v }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

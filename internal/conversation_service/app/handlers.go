package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rentwatch/golang_services/internal/conversation_service/domain"
	notifyapp "github.com/rentwatch/golang_services/internal/notification_service/app"
	searchdomain "github.com/rentwatch/golang_services/internal/search_service/domain"
)

func (e *Engine) dispatchTable() [domain.NumEventKinds]handlerFunc {
	return [domain.NumEventKinds]handlerFunc{
		domain.KindText:               e.onText,
		domain.KindStart:              e.onStart,
		domain.KindHelp:               e.onHelp,
		domain.KindMySearch:           e.onMySearch,
		domain.KindUnknownCommand:     e.onUnknownCommand,
		domain.KindCancel:             e.onCancel,
		domain.KindCreateSearch:       e.onCreateSearch,
		domain.KindSelectRooms:        e.onSelectRooms,
		domain.KindToggleDistrict:     e.onToggleDistrict,
		domain.KindSelectAllDistricts: e.onSelectAllDistricts,
		domain.KindDistrictsDone:      e.onDistrictsDone,
		domain.KindPauseSearch:        e.onPauseSearch,
		domain.KindResumeSearch:       e.onResumeSearch,
		domain.KindEditSearch:         e.onEditSearch,
		domain.KindEditPrice:          e.onEditPrice,
		domain.KindEditRooms:          e.onEditRooms,
		domain.KindEditDistricts:      e.onEditDistricts,
		domain.KindDeleteSearch:       e.onDeleteSearch,
		domain.KindConfirmDelete:      e.onConfirmDelete,
		domain.KindCancelDelete:       e.onCancelDelete,
		domain.KindBackToMain:         e.onBackToMain,
	}
}

// Commands and menus.

func (e *Engine) onStart(ctx context.Context, s *domain.Session, _ domain.Event) error {
	s.Reset()
	e.replyMenu(ctx, s, welcomeText(s.User.DisplayName(), e.cfg.CheckInterval), mainMenuKeyboard())
	return nil
}

func (e *Engine) onHelp(ctx context.Context, s *domain.Session, _ domain.Event) error {
	e.replyMenu(ctx, s, helpText(e.cfg.CheckInterval), mainMenuKeyboard())
	return nil
}

func (e *Engine) onUnknownCommand(ctx context.Context, s *domain.Session, _ domain.Event) error {
	e.reply(ctx, s, msgUnknownCommand)
	return nil
}

func (e *Engine) onBackToMain(ctx context.Context, s *domain.Session, _ domain.Event) error {
	e.replyMenu(ctx, s, msgMainMenu, mainMenuKeyboard())
	return nil
}

func (e *Engine) onCancel(ctx context.Context, s *domain.Session, _ domain.Event) error {
	if s.State == domain.StateIdle {
		e.reply(ctx, s, msgNothingToCancel)
		return nil
	}
	s.Reset()
	e.replyMenu(ctx, s, msgCancelled, mainMenuKeyboard())
	return nil
}

func (e *Engine) onMySearch(ctx context.Context, s *domain.Session, _ domain.Event) error {
	search, err := e.registry.CurrentSearch(ctx, s.UserID)
	if errors.Is(err, searchdomain.ErrNotFound) {
		e.replyMenu(ctx, s, msgNoSearch, mainMenuKeyboard())
		return nil
	}
	if err != nil {
		return err
	}

	sent, err := e.ledger.SentCount(ctx, search.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to count sent listings", "search_id", search.ID, "error", err)
	}
	e.replyMenu(ctx, s, searchInfoText(search, sent, e.now()), managementKeyboard(search.IsActive()))
	return nil
}

// Creation wizard.

func (e *Engine) onCreateSearch(ctx context.Context, s *domain.Session, _ domain.Event) error {
	_, err := e.registry.ActiveSearch(ctx, s.UserID)
	switch {
	case err == nil:
		s.Reset()
		e.reply(ctx, s, msgAlreadyActive)
		return nil
	case !errors.Is(err, searchdomain.ErrNotFound):
		return err
	}

	s.Reset()
	s.State = domain.StateAwaitingMinPrice
	s.Draft = searchdomain.Criteria{Districts: []string{}}
	e.reply(ctx, s, msgEnterMinPrice)
	return nil
}

func (e *Engine) onText(ctx context.Context, s *domain.Session, ev domain.Event) error {
	switch s.State {
	case domain.StateIdle:
		e.reply(ctx, s, msgUsage)
		return nil

	case domain.StateAwaitingMinPrice, domain.StateEditingMinPrice:
		price, ok := e.parsePrice(ctx, s, ev.Text, "minimum", 500)
		if !ok {
			return nil
		}
		s.Draft.MinPrice = &price
		if s.State == domain.StateAwaitingMinPrice {
			s.State = domain.StateAwaitingMaxPrice
			e.reply(ctx, s, msgEnterMaxPrice)
		} else {
			s.State = domain.StateEditingMaxPrice
			e.reply(ctx, s, msgEnterNewMaxPrice)
		}
		return nil

	case domain.StateAwaitingMaxPrice, domain.StateEditingMaxPrice:
		price, ok := e.parsePrice(ctx, s, ev.Text, "maximum", 1200)
		if !ok {
			return nil
		}
		if s.Draft.MinPrice != nil && price <= *s.Draft.MinPrice {
			e.reply(ctx, s, fmt.Sprintf(msgMaxNotAboveMin, notifyapp.FormatPrice(*s.Draft.MinPrice)))
			return nil
		}
		if s.State == domain.StateEditingMaxPrice {
			minPrice := s.Draft.MinPrice
			return e.commitEdit(ctx, s, func(c *searchdomain.Criteria) {
				c.MinPrice = minPrice
				c.MaxPrice = &price
			}, func(c searchdomain.Criteria) string {
				return "✅ Prices updated: " + PriceRange(c)
			})
		}
		s.Draft.MaxPrice = &price
		s.State = domain.StateAwaitingRoomCount
		e.replyMenu(ctx, s, msgChooseRooms, roomsKeyboard(false))
		return nil

	default:
		e.reply(ctx, s, msgUseButtons)
		return nil
	}
}

// parsePrice re-prompts and reports false when text is not a non-negative integer.
func (e *Engine) parsePrice(ctx context.Context, s *domain.Session, text, which string, example int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		e.reply(ctx, s, fmt.Sprintf(msgInvalidNumber, example))
		return 0, false
	}
	if v < 0 {
		e.reply(ctx, s, fmt.Sprintf(msgNegativePrice, which))
		return 0, false
	}
	return v, true
}

func (e *Engine) onSelectRooms(ctx context.Context, s *domain.Session, ev domain.Event) error {
	if s.State != domain.StateAwaitingRoomCount && s.State != domain.StateEditingRoomCount {
		e.reply(ctx, s, msgStaleMenu)
		return nil
	}
	if ev.Rooms < searchdomain.MinRooms || ev.Rooms > searchdomain.MaxRooms {
		e.replyMenu(ctx, s, msgInvalidRooms, roomsKeyboard(s.State.IsEditing()))
		return nil
	}

	rooms := ev.Rooms
	if s.State == domain.StateEditingRoomCount {
		return e.commitEdit(ctx, s, func(c *searchdomain.Criteria) {
			c.NumRooms = &rooms
		}, func(c searchdomain.Criteria) string {
			return "✅ Rooms updated: " + roomsText(c)
		})
	}

	s.Draft.NumRooms = &rooms
	s.State = domain.StateAwaitingDistricts
	e.replyMenu(ctx, s, msgChooseDistricts, districtKeyboard(e.cfg.Districts, s.Draft, false))
	return nil
}

func (e *Engine) onToggleDistrict(ctx context.Context, s *domain.Session, ev domain.Event) error {
	if s.State != domain.StateAwaitingDistricts && s.State != domain.StateEditingDistricts {
		e.reply(ctx, s, msgStaleMenu)
		return nil
	}
	name, ok := e.catalog[normalizeDistrict(ev.District)]
	if !ok {
		e.reply(ctx, s, msgUnknownDistrict)
		return nil
	}

	s.Draft.ToggleDistrict(name)
	kb := districtKeyboard(e.cfg.Districts, s.Draft, s.State.IsEditing())
	if ev.MessageID != 0 {
		if err := e.channel.UpdateMenu(ctx, s.ChatID, ev.MessageID, msgChooseDistricts, kb); err != nil {
			e.logger.WarnContext(ctx, "Failed to update district menu", "user_id", s.UserID, "error", err)
		}
		return nil
	}
	e.replyMenu(ctx, s, msgChooseDistricts, kb)
	return nil
}

func (e *Engine) onSelectAllDistricts(ctx context.Context, s *domain.Session, _ domain.Event) error {
	switch s.State {
	case domain.StateAwaitingDistricts:
		s.Draft.Districts = []string{}
		return e.completeCreation(ctx, s)
	case domain.StateEditingDistricts:
		return e.commitEdit(ctx, s, func(c *searchdomain.Criteria) {
			c.Districts = []string{}
		}, func(c searchdomain.Criteria) string {
			return "✅ Districts updated: " + districtsText(c)
		})
	default:
		e.reply(ctx, s, msgStaleMenu)
		return nil
	}
}

func (e *Engine) onDistrictsDone(ctx context.Context, s *domain.Session, _ domain.Event) error {
	if s.State != domain.StateAwaitingDistricts && s.State != domain.StateEditingDistricts {
		e.reply(ctx, s, msgStaleMenu)
		return nil
	}
	if len(s.Draft.Districts) == 0 {
		e.reply(ctx, s, msgNeedDistrict)
		return nil
	}
	if s.State == domain.StateAwaitingDistricts {
		return e.completeCreation(ctx, s)
	}

	districts := append([]string(nil), s.Draft.Districts...)
	return e.commitEdit(ctx, s, func(c *searchdomain.Criteria) {
		c.Districts = districts
	}, func(c searchdomain.Criteria) string {
		return "✅ Districts updated: " + districtsText(c)
	})
}

// completeCreation persists the draft, then starts the immediate check.
func (e *Engine) completeCreation(ctx context.Context, s *domain.Session) error {
	draft := s.Draft.Clone()
	search, err := e.registry.CreateSearch(ctx, &s.User, draft)

	var verr *searchdomain.ValidationError
	switch {
	case errors.Is(err, searchdomain.ErrLimitExceeded):
		s.Reset()
		e.replyMenu(ctx, s, msgLimitExceeded, mainMenuKeyboard())
		return nil
	case errors.As(err, &verr):
		s.Reset()
		e.reply(ctx, s, "❌ "+verr.Error())
		return nil
	case err != nil:
		return fmt.Errorf("create search: %w", err)
	}

	s.Reset()
	e.logger.InfoContext(ctx, "Search created from wizard", "user_id", s.UserID, "search_id", search.ID)
	e.reply(ctx, s, msgSearchCreated)
	e.startImmediateCheck(search)
	return nil
}

// Management of an existing search.

func (e *Engine) onPauseSearch(ctx context.Context, s *domain.Session, _ domain.Event) error {
	search, err := e.registry.ActiveSearch(ctx, s.UserID)
	if errors.Is(err, searchdomain.ErrNotFound) {
		e.reply(ctx, s, msgNoActiveSearch)
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.registry.PauseSearch(ctx, search.ID); err != nil {
		if errors.Is(err, searchdomain.ErrNotFound) {
			s.Reset()
			e.reply(ctx, s, msgSearchGone)
			return nil
		}
		return err
	}
	e.replyMenu(ctx, s, msgPaused, managementKeyboard(false))
	return nil
}

func (e *Engine) onResumeSearch(ctx context.Context, s *domain.Session, _ domain.Event) error {
	search, err := e.registry.CurrentSearch(ctx, s.UserID)
	if errors.Is(err, searchdomain.ErrNotFound) || (err == nil && search.Status != searchdomain.StatusPaused) {
		e.reply(ctx, s, msgNoPausedSearch)
		return nil
	}
	if err != nil {
		return err
	}

	err = e.registry.ResumeSearch(ctx, search.ID)
	switch {
	case errors.Is(err, searchdomain.ErrLimitExceeded):
		e.reply(ctx, s, msgLimitExceeded)
		return nil
	case errors.Is(err, searchdomain.ErrNotFound):
		s.Reset()
		e.reply(ctx, s, msgSearchGone)
		return nil
	case err != nil:
		return err
	}
	e.replyMenu(ctx, s, resumedText(e.cfg.CheckInterval), managementKeyboard(true))
	return nil
}

func (e *Engine) onEditSearch(ctx context.Context, s *domain.Session, _ domain.Event) error {
	if _, ok, err := e.currentOrReply(ctx, s); !ok {
		return err
	}
	e.replyMenu(ctx, s, msgEditWhat, editKeyboard())
	return nil
}

func (e *Engine) onEditPrice(ctx context.Context, s *domain.Session, _ domain.Event) error {
	search, ok, err := e.currentOrReply(ctx, s)
	if !ok {
		return err
	}
	s.Reset()
	s.EditingSearchID = search.ID
	s.State = domain.StateEditingMinPrice
	e.reply(ctx, s, "Current price range: "+PriceRange(search.Criteria)+"\n\nEnter the new minimum price (EUR):")
	return nil
}

func (e *Engine) onEditRooms(ctx context.Context, s *domain.Session, _ domain.Event) error {
	search, ok, err := e.currentOrReply(ctx, s)
	if !ok {
		return err
	}
	s.Reset()
	s.EditingSearchID = search.ID
	s.State = domain.StateEditingRoomCount
	e.replyMenu(ctx, s, "Current rooms: "+roomsText(search.Criteria)+"\n\nChoose the new number of rooms:", roomsKeyboard(true))
	return nil
}

func (e *Engine) onEditDistricts(ctx context.Context, s *domain.Session, _ domain.Event) error {
	search, ok, err := e.currentOrReply(ctx, s)
	if !ok {
		return err
	}
	s.Reset()
	s.EditingSearchID = search.ID
	s.State = domain.StateEditingDistricts
	s.Draft = searchdomain.Criteria{Districts: search.Criteria.Clone().Districts}
	e.replyMenu(ctx, s, "Current districts: "+districtsText(search.Criteria)+"\n\n"+msgChooseDistricts,
		districtKeyboard(e.cfg.Districts, s.Draft, true))
	return nil
}

// commitEdit overwrites only the fields touched by apply on a copy of the stored criteria.
func (e *Engine) commitEdit(
	ctx context.Context,
	s *domain.Session,
	apply func(c *searchdomain.Criteria),
	summary func(c searchdomain.Criteria) string,
) error {
	search, err := e.registry.GetSearch(ctx, s.EditingSearchID)
	if errors.Is(err, searchdomain.ErrNotFound) || (err == nil && search.Status == searchdomain.StatusDeleted) {
		s.Reset()
		e.replyMenu(ctx, s, msgSearchGone, mainMenuKeyboard())
		return nil
	}
	if err != nil {
		return err
	}

	updated := search.Criteria.Clone()
	apply(&updated)

	var verr *searchdomain.ValidationError
	err = e.registry.UpdateCriteria(ctx, search.ID, updated)
	switch {
	case errors.As(err, &verr):
		e.reply(ctx, s, "❌ "+verr.Error())
		return nil
	case errors.Is(err, searchdomain.ErrNotFound):
		s.Reset()
		e.replyMenu(ctx, s, msgSearchGone, mainMenuKeyboard())
		return nil
	case err != nil:
		return fmt.Errorf("update criteria: %w", err)
	}

	s.Reset()
	e.logger.InfoContext(ctx, "Search criteria edited", "user_id", s.UserID, "search_id", search.ID)
	e.reply(ctx, s, summary(updated)+msgChangesSaved)
	return nil
}

func (e *Engine) onDeleteSearch(ctx context.Context, s *domain.Session, _ domain.Event) error {
	if _, ok, err := e.currentOrReply(ctx, s); !ok {
		return err
	}
	e.replyMenu(ctx, s, msgConfirmDelete, deleteKeyboard())
	return nil
}

func (e *Engine) onConfirmDelete(ctx context.Context, s *domain.Session, _ domain.Event) error {
	search, ok, err := e.currentOrReply(ctx, s)
	if !ok {
		return err
	}
	if err := e.registry.DeleteSearch(ctx, search.ID); err != nil && !errors.Is(err, searchdomain.ErrNotFound) {
		return err
	}
	s.Reset()
	e.replyMenu(ctx, s, msgDeleted, mainMenuKeyboard())
	return nil
}

func (e *Engine) onCancelDelete(ctx context.Context, s *domain.Session, _ domain.Event) error {
	e.reply(ctx, s, msgDeleteCancelled)
	return nil
}

// currentOrReply loads the user's current search. When there is none it tells the user
// and reports ok=false with a nil error.
func (e *Engine) currentOrReply(ctx context.Context, s *domain.Session) (*searchdomain.Search, bool, error) {
	search, err := e.registry.CurrentSearch(ctx, s.UserID)
	if errors.Is(err, searchdomain.ErrNotFound) {
		s.Reset()
		e.replyMenu(ctx, s, msgNoSearch, mainMenuKeyboard())
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return search, true, nil
}

func normalizeDistrict(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

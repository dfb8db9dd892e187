package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

type IssueTokenRequestDTO struct {
	Subject  string `json:"subject" validate:"required,max=128"`
	Password string `json:"password" validate:"required"`
}

type IssueTokenResponseDTO struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenIssuer exchanges the operator password for a short-lived admin token.
type TokenIssuer struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	now          func() time.Time
	logger       *slog.Logger
	validate     *validator.Validate
}

// NewTokenIssuer returns nil when either the signing secret or the bcrypt password hash is empty.
func NewTokenIssuer(secret, passwordHash string, ttl time.Duration, logger *slog.Logger, validate *validator.Validate) *TokenIssuer {
	if secret == "" || passwordHash == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenIssuer{
		secret:       []byte(secret),
		passwordHash: []byte(passwordHash),
		ttl:          ttl,
		now:          time.Now,
		logger:       logger.With("component", "admin_token_issuer"),
		validate:     validate,
	}
}

// HashPassword produces the value expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (t *TokenIssuer) IssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IssueTokenRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := t.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, verrs[0].Field()+" failed "+verrs[0].Tag()+" check")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := bcrypt.CompareHashAndPassword(t.passwordHash, []byte(req.Password)); err != nil {
		t.logger.WarnContext(ctx, "Rejected admin login", "subject", req.Subject)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := t.now()
	expiresAt := now.Add(t.ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(t.secret)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to sign admin token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	t.logger.InfoContext(ctx, "Issued admin token", "subject", req.Subject, "expires_at", expiresAt)
	writeJSON(w, http.StatusOK, IssueTokenResponseDTO{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC(),
	})
}

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/auth"
	"github.com/mehmetcc/storefront/internal/guard"
	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/language"
	"github.com/mehmetcc/storefront/internal/storage"
	"github.com/mehmetcc/storefront/internal/token"
	"go.uber.org/zap"
)

const authTimeout = 10 * time.Second

type AuthenticationHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
	Register(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
	Routes() chi.Router
}

type authenticationHandler struct {
	logger      *zap.Logger
	coordinator auth.Coordinator
	tokens      *token.Store
	languages   *language.Service
	guard       *guard.Guard
	session     storage.Storage
	validator   *validator.Validate
	pages       *pageResponder
}

func NewAuthenticationHandler(c auth.Coordinator, tokens *token.Store, languages *language.Service, g *guard.Guard, session storage.Storage, l *zap.Logger) AuthenticationHandler {
	return &authenticationHandler{
		logger:      l,
		coordinator: c,
		tokens:      tokens,
		languages:   languages,
		guard:       g,
		session:     session,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		pages:       &pageResponder{session: session, logger: l},
	}
}

func (a *authenticationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", a.Login)
	r.Post("/register", a.Register)
	r.Post("/logout", a.Logout)
	r.With(a.guard.Require()).Get("/me", a.Me)
	return r
}

func (a *authenticationHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), authTimeout)
	defer cancel()

	var req api.LoginRequest
	if !decodeJSON(w, r, a.logger, &req) {
		return
	}
	if err := a.validator.Struct(req); err != nil {
		a.writeValidation(w, "login", err)
		return
	}

	if _, err := a.coordinator.Login(ctx, req); err != nil {
		a.writeAuthError(w, r, "login", err)
		return
	}
	a.pages.ok(w, r, http.StatusOK, sessionResponse{
		User:      a.coordinator.CurrentUser(),
		ReturnURL: a.consumeReturnURL(r),
	})
}

func (a *authenticationHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), authTimeout)
	defer cancel()

	var req api.RegisterRequest
	if !decodeJSON(w, r, a.logger, &req) {
		return
	}
	if err := a.validator.Struct(req); err != nil {
		a.writeValidation(w, "register", err)
		return
	}

	if _, err := a.coordinator.Register(ctx, req); err != nil {
		a.writeAuthError(w, r, "register", err)
		return
	}
	a.pages.ok(w, r, http.StatusCreated, sessionResponse{
		User:      a.coordinator.CurrentUser(),
		ReturnURL: a.consumeReturnURL(r),
	})
}

func (a *authenticationHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.coordinator.Logout(r.Context()); err != nil {
		a.logger.Error("logout failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorResponse[any]{
			Code:    httpx.ErrInternal,
			Message: "internal server error",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *authenticationHandler) Me(w http.ResponseWriter, r *http.Request) {
	resp := meResponse{
		User:            a.coordinator.CurrentUser(),
		IsAuthenticated: a.coordinator.IsAuthenticated(),
	}
	if exp, ok := a.tokens.Expiration(); ok {
		resp.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// consumeReturnURL picks the page to go back to after login: the query
// parameter first, then the one remembered from the last redirect.
func (a *authenticationHandler) consumeReturnURL(r *http.Request) string {
	lang := a.languages.Current(r.Context())
	ret := r.URL.Query().Get("returnUrl")
	if stored, ok, err := a.session.Get(r.Context(), storage.KeyReturnURL); err == nil && ok {
		if ret == "" {
			ret = stored
		}
		_ = a.session.Remove(r.Context(), storage.KeyReturnURL)
	}
	if ret == "" {
		return language.WithPrefix(lang, "/")
	}
	return language.WithPrefix(lang, ret)
}

func (a *authenticationHandler) writeValidation(w http.ResponseWriter, op string, err error) {
	a.logger.Warn(op+" validation failed", zap.Error(err))
	httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorResponse[[]httpx.FieldError]{
		Code:    httpx.ErrValidationFailed,
		Message: "validation failed",
		Details: httpx.ValidationDetails(err),
	})
}

func (a *authenticationHandler) writeAuthError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorResponse[any]{
			Code:    httpx.ErrUnauthorized,
			Message: "invalid email or password",
		})
	case errors.Is(err, auth.ErrInvalidRequest):
		a.writeValidation(w, op, err)
	case errors.Is(err, auth.ErrMissingToken):
		a.logger.Error(op+" returned no token")
		httpx.WriteError(w, http.StatusBadGateway, httpx.ErrorResponse[any]{
			Code:    httpx.ErrUpstream,
			Message: "authentication failed",
		})
	default:
		a.pages.fail(w, r, err)
	}
}

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20 // 1MB

var errTrailingData = errors.New("request body must contain a single JSON object")

// decodeJSON applies the strict body rules shared by every write endpoint and
// answers the request itself when they are broken.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		httpx.WriteError(w, http.StatusUnsupportedMediaType, httpx.ErrorResponse[any]{
			Code:    httpx.ErrUnsupportedMedia,
			Message: "Content-Type must be application/json",
		})
		return false
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		logger.Warn("failed to decode request body", zap.String("path", r.URL.Path), zap.Error(err))
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorResponse[any]{
			Code:    httpx.ErrInvalidJSON,
			Message: "invalid request body",
		})
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		logger.Warn("trailing data after JSON body", zap.Error(err))
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorResponse[any]{
			Code:    httpx.ErrInvalidJSON,
			Message: errTrailingData.Error(),
		})
		return false
	}
	return true
}

type pageResponder struct {
	session storage.Storage
	logger  *zap.Logger
}

// redirected turns a navigation requested while serving r into a 303. The
// returnUrl of a login target is kept in session storage for the next login.
func (p *pageResponder) redirected(w http.ResponseWriter, r *http.Request) bool {
	rec := httpx.RecorderFrom(r.Context())
	if rec == nil {
		return false
	}
	target, ok := rec.Target()
	if !ok {
		return false
	}
	if u, err := url.Parse(target); err == nil {
		if ret := u.Query().Get("returnUrl"); ret != "" {
			if err := p.session.Set(r.Context(), storage.KeyReturnURL, ret); err != nil {
				p.logger.Warn("failed to remember return url", zap.Error(err))
			}
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
	return true
}

func (p *pageResponder) ok(w http.ResponseWriter, r *http.Request, status int, v any) {
	if p.redirected(w, r) {
		return
	}
	httpx.WriteJSON(w, status, v)
}

func (p *pageResponder) fail(w http.ResponseWriter, r *http.Request, err error) {
	if p.redirected(w, r) {
		return
	}
	writeBackendError(w, err, p.logger)
}

func writeBackendError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var se *api.StatusError
	if !errors.As(err, &se) {
		logger.Error("backend unavailable", zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, httpx.ErrorResponse[any]{
			Code:    httpx.ErrUpstream,
			Message: "backend unavailable",
		})
		return
	}

	status, code := http.StatusBadGateway, httpx.ErrUpstream
	switch se.Kind {
	case api.KindUnauthenticated:
		status, code = http.StatusUnauthorized, httpx.ErrUnauthorized
	case api.KindForbidden:
		status, code = http.StatusForbidden, httpx.ErrForbidden
	case api.KindNotFound:
		status, code = http.StatusNotFound, httpx.ErrNotFound
	case api.KindBadRequest:
		status, code = http.StatusBadRequest, httpx.ErrBadRequest
	default:
		if se.Status == http.StatusConflict {
			status, code = http.StatusConflict, httpx.ErrConflict
		}
	}
	httpx.WriteError(w, status, httpx.ErrorResponse[any]{
		Code:    code,
		Message: se.Message,
	})
}

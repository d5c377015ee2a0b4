package gateway

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/storage"
	"go.uber.org/zap"
)

// proxy relays read-only catalogue and account calls to the backend through
// the authorizing client, so pages get the same refresh and redirect
// behaviour as the gateway's own endpoints.
type proxy struct {
	backend *api.Client
	pages   *pageResponder
	logger  *zap.Logger
}

func newProxy(backend *api.Client, session storage.Storage, l *zap.Logger) *proxy {
	return &proxy{backend: backend, pages: &pageResponder{session: session, logger: l}, logger: l}
}

var forwardedHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified"}

func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := "/" + chi.URLParam(r, "*")
	req, resp, err := p.backend.Forward(r.Context(), r.Method, path, r.URL.RawQuery, r.Header)
	if err != nil {
		p.pages.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	if p.pages.redirected(w, r) {
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		writeBackendError(w, api.NormalizeError(req, resp), p.logger)
		return
	}

	for _, h := range forwardedHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	// hide ReadFrom: middleware writer wrappers assume the wrapped writer has it
	if _, err := io.Copy(struct{ io.Writer }{w}, resp.Body); err != nil {
		p.logger.Warn("proxy copy interrupted", zap.String("path", path), zap.Error(err))
	}
}

func writeNotFound(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusNotFound, httpx.ErrorResponse[any]{
		Code:    httpx.ErrNotFound,
		Message: "not found",
	})
}

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/cart"
	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/storage"
	"go.uber.org/zap"
)

type CartHandler interface {
	Get(w http.ResponseWriter, r *http.Request)
	Add(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Remove(w http.ResponseWriter, r *http.Request)
	Routes() chi.Router
}

type cartHandler struct {
	logger    *zap.Logger
	cart      cart.Service
	validator *validator.Validate
	pages     *pageResponder
}

func NewCartHandler(c cart.Service, session storage.Storage, l *zap.Logger) CartHandler {
	return &cartHandler{
		logger:    l,
		cart:      c,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		pages:     &pageResponder{session: session, logger: l},
	}
}

func (h *cartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Post("/", h.Add)
	r.Put("/", h.Update)
	r.Delete("/", h.Remove)
	return r
}

// Get refreshes from the backend when it can; a guest keeps seeing the
// locally stored cart.
func (h *cartHandler) Get(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Fetch(r.Context()); err != nil && !api.IsUnauthorized(err) {
		h.logger.Warn("cart fetch failed, serving local cart", zap.Error(err))
	}
	h.pages.ok(w, r, http.StatusOK, h.snapshot())
}

func (h *cartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := h.cart.Add(r.Context(), req.ProductID, req.Quantity); err != nil {
		h.pages.fail(w, r, err)
		return
	}
	h.pages.ok(w, r, http.StatusCreated, h.snapshot())
}

func (h *cartHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateCartRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.cart.Update(r.Context(), cart.Item{ID: req.ID, ProductID: req.ProductID, Quantity: req.Quantity})
	if err != nil {
		h.pages.fail(w, r, err)
		return
	}
	h.pages.ok(w, r, http.StatusOK, h.snapshot())
}

func (h *cartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req removeFromCartRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cart.Remove(r.Context(), req.ProductID, req.Quantity); err != nil {
		h.pages.fail(w, r, err)
		return
	}
	h.pages.ok(w, r, http.StatusOK, h.snapshot())
}

func (h *cartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, h.logger, dst) {
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("cart validation failed", zap.Error(err))
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorResponse[[]httpx.FieldError]{
			Code:    httpx.ErrValidationFailed,
			Message: "validation failed",
			Details: httpx.ValidationDetails(err),
		})
		return false
	}
	return true
}

func (h *cartHandler) snapshot() cartResponse {
	items := h.cart.Items()
	if items == nil {
		items = []cart.Item{}
	}
	return cartResponse{
		Items:      items,
		TotalItems: h.cart.TotalItems(),
		TotalPrice: h.cart.TotalPrice(),
	}
}

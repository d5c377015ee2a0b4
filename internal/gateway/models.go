package gateway

import (
	"github.com/mehmetcc/storefront/internal/auth"
	"github.com/mehmetcc/storefront/internal/cart"
)

type sessionResponse struct {
	User      *auth.User `json:"user"`
	ReturnURL string     `json:"returnUrl"`
}

type meResponse struct {
	User            *auth.User `json:"user"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	ExpiresAt       string     `json:"expiresAt,omitempty"`
}

type addToCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"  validate:"omitempty,gte=1"`
}

type removeFromCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"  validate:"gte=0"`
}

type updateCartRequest struct {
	ID        string `json:"id"        validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"  validate:"gte=1"`
}

type cartResponse struct {
	Items      []cart.Item `json:"items"`
	TotalItems int         `json:"totalItems"`
	TotalPrice float64     `json:"totalPrice"`
}

type languageResponse struct {
	Language  string `json:"language"`
	Direction string `json:"direction"`
}

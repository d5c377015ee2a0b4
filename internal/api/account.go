package api

import (
	"context"
	"net/http"
)

const (
	PathLogin        = "/Account/Login"
	PathRegister     = "/Account/Register"
	PathRefreshToken = "/Account/RefreshToken"
	PathCart         = "/Cart"
)

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	FirstName       string `json:"firstName"       validate:"required,max=64"`
	LastName        string `json:"lastName"        validate:"required,max=64"`
	Gender          bool   `json:"gender"`
	Email           string `json:"email"           validate:"required,email"`
	PhoneNumber     string `json:"phoneNumber"     validate:"required,min=7,max=20"`
	Password        string `json:"password"        validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// TokenModel is the body of a token renewal request.
type TokenModel struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type AuthenticationResponse struct {
	Token                  string   `json:"token"`
	ExpiresAt              string   `json:"expiresAt,omitempty"`
	PersonName             string   `json:"personName,omitempty"`
	Email                  string   `json:"email,omitempty"`
	RefreshToken           string   `json:"refreshToken,omitempty"`
	RefreshTokenExpiryTime string   `json:"refreshTokenExpiryTime,omitempty"`
	UserID                 string   `json:"userId,omitempty"`
	Roles                  []string `json:"roles,omitempty"`
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthenticationResponse, error) {
	var resp AuthenticationResponse
	if err := c.Do(ctx, http.MethodPost, PathLogin, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthenticationResponse, error) {
	var resp AuthenticationResponse
	if err := c.Do(ctx, http.MethodPost, PathRegister, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RefreshToken(ctx context.Context, req TokenModel) (*AuthenticationResponse, error) {
	var resp AuthenticationResponse
	if err := c.Do(ctx, http.MethodPost, PathRefreshToken, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

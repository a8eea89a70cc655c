package jwttoken

import (
	"walletid/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *Claims) *middleware.AdminClaims {
	return &middleware.AdminClaims{
		Subject: claims.Subject,
		TokenID: claims.ID,
	}
}

// JWTServiceAdapter exposes JWTService as a middleware.TokenValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.AdminClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}

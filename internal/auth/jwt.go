package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultWidgetTokenTTL is the lifetime of tokens issued to embedded widgets.
const DefaultWidgetTokenTTL = 24 * time.Hour

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrMissingWidget = errors.New("token carries no widget id")
)

// WidgetClaims represents the claims in a widget token
type WidgetClaims struct {
	WidgetID string `json:"widget_id"`
	jwt.RegisteredClaims
}

// Validator issues and validates HS256 widget tokens.
type Validator struct {
	secret []byte
}

// NewValidator creates a Validator signing with secret.
func NewValidator(secret string) (*Validator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Validator{secret: []byte(secret)}, nil
}

// GenerateWidgetToken generates a token that lets a widget open a connection
func (v *Validator) GenerateWidgetToken(widgetID string, ttl time.Duration) (string, error) {
	if widgetID == "" {
		return "", ErrMissingWidget
	}
	if ttl <= 0 {
		ttl = DefaultWidgetTokenTTL
	}

	now := time.Now()
	claims := &WidgetClaims{
		WidgetID: widgetID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   widgetID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (v *Validator) ValidateToken(tokenString string) (*WidgetClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WidgetClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid widget token: %w", err)
	}

	claims, ok := token.Claims.(*WidgetClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.WidgetID == "" {
		return nil, ErrMissingWidget
	}
	return claims, nil
}

// Authenticate returns the widget id a valid token was issued for.
func (v *Validator) Authenticate(token string) (string, error) {
	claims, err := v.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.WidgetID, nil
}

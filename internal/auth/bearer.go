package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearerToken = errors.New("bearer: token required")
	ErrMalformedBearer    = errors.New("bearer: malformed authorization header")
)

// TokenValidator validates a raw token string and returns its subject.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// RequestValidator pulls the bearer token out of the Authorization header and
// validates it.
type RequestValidator struct {
	validator TokenValidator
}

// NewRequestValidator wraps a token validator for per-request use.
func NewRequestValidator(validator TokenValidator) *RequestValidator {
	return &RequestValidator{validator: validator}
}

// ValidateRequest extracts and validates the bearer token, returning the
// authenticated subject.
func (v *RequestValidator) ValidateRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrMissingBearerToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingBearerToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingBearerToken
	}
	return v.validator.ValidateToken(token)
}

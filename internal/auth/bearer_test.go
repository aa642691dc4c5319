package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestValidateRequestAcceptsIssuedToken(t *testing.T) {
	issuer := newTestIssuer()
	tokenString, _, err := issuer.Exchange(context.Background(), "bridge-bot", "bootstrap-secret")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	request := httptest.NewRequest("GET", "/anything", nil)
	request.Header.Set("Authorization", "Bearer "+tokenString)

	subject, err := NewRequestValidator(issuer).ValidateRequest(request)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if subject != "bridge-bot" {
		t.Fatalf("unexpected subject %s", subject)
	}
}

func TestValidateRequestRejectsMissingHeader(t *testing.T) {
	validator := NewRequestValidator(newTestIssuer())

	request := httptest.NewRequest("GET", "/anything", nil)
	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMissingBearerToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestValidateRequestRejectsWrongScheme(t *testing.T) {
	validator := NewRequestValidator(newTestIssuer())

	request := httptest.NewRequest("GET", "/anything", nil)
	request.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMalformedBearer) {
		t.Fatalf("expected malformed header error, got %v", err)
	}
}

func TestValidateRequestRejectsGarbageToken(t *testing.T) {
	validator := NewRequestValidator(newTestIssuer())

	request := httptest.NewRequest("GET", "/anything", nil)
	request.Header.Set("Authorization", "Bearer not.a.jwt")
	if _, err := validator.ValidateRequest(request); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

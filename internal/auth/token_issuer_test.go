package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionIssuerIssuesValidatableTokens(t *testing.T) {
	clockNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte("super-secret"),
		TokenTTL:      time.Hour,
		Clock: func() time.Time {
			return clockNow
		},
	})

	tokenString, err := issuer.IssueSessionToken("user-123", "owner@example.com", true)
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}

	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte("super-secret"),
		CookieName:    "app_session",
		Clock: func() time.Time {
			return clockNow.Add(time.Minute)
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	claims, err := validator.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Fatalf("unexpected user id %s", claims.UserID)
	}
	if claims.UserEmail != "owner@example.com" {
		t.Fatalf("unexpected email %s", claims.UserEmail)
	}
	if !claims.EmailVerified {
		t.Fatalf("expected verified flag to survive the round trip")
	}
}

func TestSessionIssuerRejectsMissingSecret(t *testing.T) {
	issuer := NewSessionIssuer(SessionIssuerConfig{})
	if _, err := issuer.IssueSessionToken("user-123", "", false); err == nil {
		t.Fatalf("expected issuance error for missing secret")
	}
}

func TestSessionIssuerRejectsMissingSubject(t *testing.T) {
	issuer := NewSessionIssuer(SessionIssuerConfig{SigningSecret: []byte("secret")})
	if _, err := issuer.IssueSessionToken("   ", "", false); err == nil {
		t.Fatalf("expected issuance error for empty subject")
	}
}

func TestSessionIssuerSetsRegisteredClaims(t *testing.T) {
	clockNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte("secret"),
		TokenTTL:      30 * time.Minute,
		Clock: func() time.Time {
			return clockNow
		},
	})

	tokenString, err := issuer.IssueSessionToken("user-321", "", false)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	claims := &SessionClaims{}
	parser := jwt.Parser{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}); err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "user-321" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != defaultSessionIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if !claims.ExpiresAt.Time.Equal(clockNow.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt.Time)
	}
}

package identity_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := identity.NewTokenIssuer(testSecret, time.Minute)
	user := &identity.User{ID: "u-1", Role: identity.RoleUser}

	raw, exp, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expected future expiry, got %v", exp)
	}

	claims, err := issuer.Verify(raw)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "u-1" {
		t.Errorf("expected subject u-1, got %q", claims.Subject)
	}
	if claims.Role != identity.RoleUser {
		t.Errorf("expected role user, got %q", claims.Role)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := identity.NewTokenIssuer(testSecret, time.Minute)
	other := identity.NewTokenIssuer(strings.Repeat("x", 32), time.Minute)
	expired := identity.NewTokenIssuer(testSecret, time.Nanosecond)
	user := &identity.User{ID: "u-1"}

	foreign, _, _ := other.Issue(user)
	stale, _, _ := expired.Issue(user)
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not.a.token"},
		{"wrong secret", foreign},
		{"expired", stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Verify(tt.raw); !errors.Is(err, identity.ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewTokenIssuer_DisabledWithoutSecret(t *testing.T) {
	if identity.NewTokenIssuer("", time.Minute) != nil {
		t.Error("expected nil issuer without secret")
	}
}

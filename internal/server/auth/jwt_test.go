package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/common"
)

func TestGenerateAndParse_Success(t *testing.T) {
	secret := []byte("super-secret")
	userID := "user-123"

	tok, err := GenerateToken(userID, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	gotUserID, err := GetUserIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("GetUserIDFromToken error: %v", err)
	}
	if gotUserID != userID {
		t.Fatalf("userID mismatch: got %q want %q", gotUserID, userID)
	}
}

func TestGenerateToken_NoExpiry(t *testing.T) {
	secret := []byte("k")
	tok, err := GenerateToken("u0", secret, 0)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	orig := now
	now = func() time.Time { return time.Now().Add(100 * 365 * 24 * time.Hour) }
	t.Cleanup(func() { now = orig })

	if _, err := GetUserIDFromToken(tok, secret); err != nil {
		t.Fatalf("token without expiry rejected: %v", err)
	}
}

func TestGetUserIDFromToken_Expired(t *testing.T) {
	secret := []byte("secret")

	tok, err := GenerateToken("u1", secret, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetUserIDFromToken(tok, secret)
	if err != common.ErrTokenExpired {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestGetUserIDFromToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken("u2", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetUserIDFromToken(tok, []byte("wrong-secret"))
	if err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestGetUserIDFromToken_MalformedString(t *testing.T) {
	_, err := GetUserIDFromToken("not.a.jwt", []byte("k"))
	if err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestCheckAppToken(t *testing.T) {
	cases := []struct {
		presented, expected string
		want                bool
	}{
		{"app", "app", true},
		{"app", "other", false},
		{"", "app", false},
		{"", "", false},
	}
	for _, c := range cases {
		if got := CheckAppToken(c.presented, c.expected); got != c.want {
			t.Errorf("CheckAppToken(%q, %q) = %v, want %v", c.presented, c.expected, got, c.want)
		}
	}
}

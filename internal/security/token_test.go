package security

import (
	"testing"
	"time"
)

func TestSignAndParseSessionToken(t *testing.T) {
	token, err := SignSessionToken("test-secret", "user-123", "en", time.Hour)
	if err != nil {
		t.Fatalf("SignSessionToken() error: %v", err)
	}
	claims, err := ParseSessionToken("test-secret", token)
	if err != nil {
		t.Fatalf("ParseSessionToken() error: %v", err)
	}
	if claims.Subject != "user-123" || claims.Locale != "en" {
		t.Fatalf("claims = %+v, want subject user-123 locale en", claims)
	}
}

func TestParseSessionTokenWrongSecret(t *testing.T) {
	token, err := SignSessionToken("secret-a", "user-123", "en", time.Hour)
	if err != nil {
		t.Fatalf("SignSessionToken() error: %v", err)
	}
	if _, err := ParseSessionToken("secret-b", token); err == nil {
		t.Fatalf("ParseSessionToken() expected signature error")
	}
}

func TestParseSessionTokenExpired(t *testing.T) {
	token, err := SignSessionToken("secret", "user-123", "en", -time.Minute)
	if err != nil {
		t.Fatalf("SignSessionToken() error: %v", err)
	}
	if _, err := ParseSessionToken("secret", token); err == nil {
		t.Fatalf("ParseSessionToken() expected expiry error")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !VerifyPassword(hash, "hunter2!") {
		t.Fatalf("VerifyPassword() rejected correct password")
	}
	if VerifyPassword(hash, "hunter3!") {
		t.Fatalf("VerifyPassword() accepted wrong password")
	}
}

package sealer

import (
	"errors"
	"testing"
)

const testKey = "lfQVRuulcL2iOhOJ2r8BYTweoSKwVAJnIF9U+AL+M60="

func TestOpaqueTokenRoundTrip(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	token, err := s.CreateOpaqueToken("65f0c0ffee0000000000aaaa", "user-1")
	if err != nil {
		t.Fatalf("CreateOpaqueToken() error = %v", err)
	}

	appointmentID, userID, err := s.ParseOpaqueToken(token)
	if err != nil {
		t.Fatalf("ParseOpaqueToken() error = %v", err)
	}
	if appointmentID != "65f0c0ffee0000000000aaaa" || userID != "user-1" {
		t.Errorf("got (%q, %q)", appointmentID, userID)
	}

	again, _ := s.CreateOpaqueToken("65f0c0ffee0000000000aaaa", "user-1")
	if again == token {
		t.Error("expected a fresh nonce per token")
	}
}

func TestParseOpaqueToken_Rejects(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	other, err := New("AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	foreign, _ := other.CreateOpaqueToken("a", "b")

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%"},
		{"too short", "AAAA"},
		{"other key", foreign},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.ParseOpaqueToken(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ParseOpaqueToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNew_BadKey(t *testing.T) {
	if _, err := New("not-base64!"); err == nil {
		t.Error("expected error for undecodable key")
	}
	if _, err := New("AAAA"); err == nil {
		t.Error("expected error for short key")
	}
}

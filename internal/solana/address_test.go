package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{"wrapped SOL mint", "So11111111111111111111111111111111111111112", true},
		{"USDC mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"empty", "", false},
		{"not base58", "0OIl+/=", false},
		{"too short", "abc", false},
		{"too long", "So111111111111111111111111111111111111111125o11111111111111111", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidAddress(tt.addr); got != tt.valid {
				t.Errorf("IsValidAddress(%q) = %v, want %v", tt.addr, got, tt.valid)
			}
		})
	}
}

func TestIsOnCurve(t *testing.T) {
	// A freshly generated keypair public key is always on the curve.
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := base58.Encode(pub)

	if !IsOnCurve(wallet) {
		t.Errorf("keypair public key %s should be on curve", wallet)
	}
	if !IsValidAddress(wallet) {
		t.Errorf("keypair public key %s should be a valid address", wallet)
	}

	if IsOnCurve("") {
		t.Error("empty string should not be on curve")
	}
	if IsOnCurve("abc") {
		t.Error("short address should not be on curve")
	}
}

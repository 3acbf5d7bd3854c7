package crypto

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	raw, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}

	if !strings.HasPrefix(raw, APIKeyPrefix) {
		t.Fatalf("key %q missing %q prefix", raw, APIKeyPrefix)
	}
	if len(raw) <= len(APIKeyPrefix)+32 {
		t.Fatalf("key too short: %d chars", len(raw))
	}
	if hash != HashAPIKey(raw) {
		t.Fatal("returned hash does not match HashAPIKey of the raw key")
	}
	if len(hash) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(hash))
	}

	raw2, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if raw == raw2 {
		t.Fatal("two generated keys are identical")
	}
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("abc", "abc") {
		t.Fatal("equal strings should compare equal")
	}
	if SecureCompare("abc", "abd") {
		t.Fatal("different strings should not compare equal")
	}
	if SecureCompare("abc", "abcd") {
		t.Fatal("different lengths should not compare equal")
	}
}

func TestVerifyHMAC256(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"action":"opened"}`)
	sig := SignHMAC256(secret, body)

	if !VerifyHMAC256(secret, body, sig) {
		t.Fatal("valid signature rejected")
	}
	if VerifyHMAC256(secret, body, sig[:len(sig)-2]+"00") {
		t.Fatal("tampered signature accepted")
	}
	if VerifyHMAC256([]byte("other secret"), body, sig) {
		t.Fatal("signature verified under wrong secret")
	}
	if VerifyHMAC256(secret, []byte(`{"action":"closed"}`), sig) {
		t.Fatal("signature verified over different body")
	}
}

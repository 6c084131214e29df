package ingest

import (
	"strings"
	"testing"
)

func TestGenerateAPIKeyShape(t *testing.T) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if !strings.HasPrefix(plaintext, "ing_") {
		t.Errorf("plaintext %q missing ing_ prefix", plaintext)
	}
	if len(plaintext) != 4+64 {
		t.Errorf("plaintext length = %d, want %d", len(plaintext), 4+64)
	}
	if prefix != plaintext[:12] {
		t.Errorf("prefix %q is not the first 12 chars of the key", prefix)
	}
	if hash != HashKey(plaintext) {
		t.Error("stored hash does not match HashKey of the plaintext")
	}
	if hash == HashKey("ing_other") {
		t.Error("distinct keys hashed to the same value")
	}
}

func TestGenerateAPIKeyIsUnique(t *testing.T) {
	a, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Error("two generated keys are identical")
	}
}

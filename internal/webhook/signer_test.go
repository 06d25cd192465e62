package webhook

import (
	"testing"
)

func TestSignerDeterministic(t *testing.T) {
	t.Parallel()

	signer, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	body := []byte(`{"event":"content.updated","siteId":"s1"}`)
	first := signer.Sign(body)
	second := signer.Sign(body)
	if first != second {
		t.Fatalf("signatures differ for identical body: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("signature length = %d, want 64 hex characters", len(first))
	}
}

func TestSignerSensitiveToSingleByte(t *testing.T) {
	t.Parallel()

	signer, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	body := []byte(`{"event":"content.updated"}`)
	mutated := append([]byte(nil), body...)
	mutated[len(mutated)-2] = 'X'

	if signer.Sign(body) == signer.Sign(mutated) {
		t.Fatal("one-byte mutation must change the signature")
	}
}

func TestSignerVerify(t *testing.T) {
	t.Parallel()

	signer, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	body := []byte(`payload`)
	sig := signer.Sign(body)
	if !signer.Verify(body, sig) {
		t.Fatal("Verify() must accept a valid signature")
	}
	if signer.Verify(body, "deadbeef") {
		t.Fatal("Verify() must reject an invalid signature")
	}

	other, err := NewSigner("other-secret")
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	if other.Verify(body, sig) {
		t.Fatal("Verify() must reject a signature from another secret")
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewSigner("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

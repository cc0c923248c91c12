package vault

import "testing"

func testVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(Config{Secret: "unit-test-master-secret", Salt: "unit-test-salt"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := testVault(t)
	plaintext := []byte(`{"api_key":"super-secret-value"}`)

	ciphertext, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsEnvelope(ciphertext) {
		t.Fatal("Encrypt output is not recognized as an envelope")
	}

	got, err := v.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	v := testVault(t)
	plaintext := []byte("same plaintext every time")

	a, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(a) == string(b) {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	v := testVault(t)
	ciphertext, err := v.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := append([]byte{}, ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := v.Decrypt(tampered); err != ErrAuthFailure {
		t.Fatalf("Decrypt tampered ciphertext: got err %v, want ErrAuthFailure", err)
	}
}

func TestDecryptRejectsNonEnvelope(t *testing.T) {
	v := testVault(t)
	if _, err := v.Decrypt([]byte("not an envelope")); err != ErrNotAnEnvelope {
		t.Fatalf("got %v, want ErrNotAnEnvelope", err)
	}
}

func TestIsEnvelope(t *testing.T) {
	v := testVault(t)
	ciphertext, _ := v.Encrypt([]byte("x"))

	if !IsEnvelope(ciphertext) {
		t.Fatal("expected true for a real envelope")
	}
	if IsEnvelope([]byte("plain")) {
		t.Fatal("expected false for plain bytes")
	}
	if IsEnvelope(nil) {
		t.Fatal("expected false for nil")
	}
}

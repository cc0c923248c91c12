// Package vault implements the secret vault (§4.2): authenticated
// symmetric encryption for tenant CRM credentials at rest, using a
// single process-wide master key derived from a configured secret.
//
// The envelope format mirrors the nonce-prepended AES-GCM shape common
// in the corpus: [prefix(5)] + [nonce(12)] + [ciphertext+tag]. The
// prefix lets IsEnvelope do a cheap format check without attempting a
// decrypt.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce size

	// pbkdf2Iterations meets the §4.2 floor of 2^18 SHA-256 rounds.
	pbkdf2Iterations = 1 << 18

	// envelopePrefix tags ciphertext produced by this vault so
	// is_envelope can recognize stored-format without decrypting.
	envelopePrefix = "CVV1:"
)

var (
	// ErrAuthFailure is returned when the AEAD tag does not verify —
	// tampered or corrupted ciphertext, or a key mismatch. Decryption
	// fails loudly per §4.2; callers must treat this as fatal to the
	// current request (fail-closed, §5).
	ErrAuthFailure = errors.New("vault: authentication failure")

	ErrCiphertextTooShort = errors.New("vault: ciphertext too short")
	ErrNotAnEnvelope      = errors.New("vault: value is not a vault envelope")
)

// Vault performs AES-256-GCM encrypt/decrypt using a master key derived
// once at construction time via PBKDF2-HMAC-SHA256. It holds no other
// mutable state and is safe for concurrent use; one instance is shared
// process-wide (§5 global state).
type Vault struct {
	key []byte
}

// Config supplies the raw secret and deployment-fixed salt used to
// derive the master key. Both are operator-provided via environment
// configuration (§6); neither is ever persisted by this package.
type Config struct {
	Secret string
	Salt   string
}

// New derives the master key and returns a ready-to-use Vault.
func New(cfg Config) (*Vault, error) {
	if cfg.Secret == "" {
		return nil, errors.New("vault: secret is required")
	}
	if cfg.Salt == "" {
		return nil, errors.New("vault: salt is required")
	}
	key := pbkdf2.Key([]byte(cfg.Secret), []byte(cfg.Salt), pbkdf2Iterations, keySize, sha256.New)
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext into an envelope. Each call draws a fresh
// random nonce, so two encryptions of the same plaintext produce
// distinct ciphertexts (§8 round-trip law).
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	out := make([]byte, 0, len(envelopePrefix)+len(sealed))
	out = append(out, envelopePrefix...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. It returns
// ErrAuthFailure on tag mismatch and never returns partial plaintext.
func (v *Vault) Decrypt(envelope []byte) ([]byte, error) {
	if !IsEnvelope(envelope) {
		return nil, ErrNotAnEnvelope
	}
	body := envelope[len(envelopePrefix):]
	if len(body) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}

	nonce, ciphertext := body[:nonceSize], body[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

// IsEnvelope does a cheap prefix check for stored-format detection
// (§4.2). It never touches key material and never fails.
func IsEnvelope(value []byte) bool {
	if len(value) < len(envelopePrefix) {
		return false
	}
	return string(value[:len(envelopePrefix)]) == envelopePrefix
}

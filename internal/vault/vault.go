// Package vault provides authenticated encryption for secrets at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// envelopePrefix tags encrypted values so callers can re-save a config
	// without double-wrapping the secret.
	envelopePrefix = "enc:"

	keyLength  = 32 // AES-256
	saltLength = 64
	iterations = 100_000
)

var (
	ErrMasterKeyTooShort = errors.New("vault master key must be at least 32 bytes")
	ErrInvalidEnvelope   = errors.New("invalid envelope format")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Vault encrypts and decrypts secret values with AES-256-GCM. The cipher key
// for each value is derived from the master key and a per-value random salt,
// so one leaked salt does not weaken any other stored secret.
type Vault struct {
	masterKey []byte
}

// New creates a Vault from the deployment master key. The key is injected
// here rather than read from the environment so that rotation and tests with
// alternate keys stay straightforward.
func New(masterKey string) (*Vault, error) {
	if len(masterKey) < keyLength {
		return nil, fmt.Errorf("%w (got %d)", ErrMasterKeyTooShort, len(masterKey))
	}
	return &Vault{masterKey: []byte(masterKey)}, nil
}

// Encrypt wraps plaintext into a self-describing envelope:
// enc:salt:nonce:tag:ciphertext (hex fields). Already-encrypted input is
// returned unchanged.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if IsEncrypted(plaintext) {
		return plaintext, nil
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := v.cipherFor(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	// GCM appends the auth tag to the ciphertext; keep the envelope fields
	// independently recoverable for master-key rotation.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		"enc",
		hex.EncodeToString(salt),
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt unwraps an envelope produced by Encrypt. Tampered or corrupted
// envelopes fail closed; garbage is never returned as plaintext.
func (v *Vault) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	if !IsEncrypted(envelope) {
		return "", fmt.Errorf("%w: missing envelope tag", ErrInvalidEnvelope)
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 5 {
		return "", fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidEnvelope, len(parts))
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: salt: %w", ErrInvalidEnvelope, err)
	}
	nonce, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %w", ErrInvalidEnvelope, err)
	}
	tag, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("%w: tag: %w", ErrInvalidEnvelope, err)
	}
	ciphertext, err := hex.DecodeString(parts[4])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %w", ErrInvalidEnvelope, err)
	}

	gcm, err := v.cipherFor(salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce length %d", ErrInvalidEnvelope, len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// Rotate re-encrypts an envelope under this vault's master key using the
// previous vault to recover the plaintext.
func (v *Vault) Rotate(envelope string, old *Vault) (string, error) {
	plaintext, err := old.Decrypt(envelope)
	if err != nil {
		return "", fmt.Errorf("decrypting with old key: %w", err)
	}
	return v.Encrypt(plaintext)
}

// IsEncrypted reports whether a value carries the envelope tag.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, envelopePrefix)
}

func (v *Vault) cipherFor(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(v.masterKey, salt, iterations, keyLength, sha512.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	return gcm, nil
}

// Hash returns a one-way SHA-256 hex digest, for deduplication keys that
// never need to be reversed.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// CompareHash checks a value against a Hash result in constant time.
func CompareHash(value, digest string) bool {
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	actual := sha256.Sum256([]byte(value))
	return hmac.Equal(actual[:], expected)
}

// GenerateKey returns a random hex key suitable for the vault master key.
func GenerateKey(length int) (string, error) {
	if length <= 0 {
		length = saltLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

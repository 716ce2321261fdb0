package vault

import (
	"encoding/hex"
	"strings"
	"testing"
)

const testMasterKey = "0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNew_RejectsShortKey(t *testing.T) {
	if _, err := New("too-short"); err == nil {
		t.Fatal("expected error for short master key")
	}

	if _, err := New(testMasterKey); err != nil {
		t.Fatalf("unexpected error for valid key: %v", err)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatal(err)
	}

	values := []string{
		"a",
		"courier-platform-shared-secret-with-enough-entropy",
		`{"nested":"json value"}`,
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range values {
		envelope, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}

		if !IsEncrypted(envelope) {
			t.Errorf("envelope missing tag: %q", envelope)
		}

		decrypted, err := v.Decrypt(envelope)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip mismatch: got %q", decrypted)
		}
	}
}

func TestEncrypt_IdempotentOnEncryptedInput(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatal(err)
	}

	envelope, err := v.Encrypt("secret value")
	if err != nil {
		t.Fatal(err)
	}

	again, err := v.Encrypt(envelope)
	if err != nil {
		t.Fatal(err)
	}

	if again != envelope {
		t.Error("re-encrypting an envelope should return it unchanged")
	}
}

func TestEncrypt_UniquePerCall(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := v.Encrypt("same plaintext")
	b, _ := v.Encrypt("same plaintext")

	if a == b {
		t.Error("two encryptions of the same value should not be identical")
	}
}

func TestDecrypt_TamperDetection(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatal(err)
	}

	envelope, err := v.Encrypt("tamper target")
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 5 {
		t.Fatalf("unexpected envelope shape: %d parts", len(parts))
	}

	// Flip one byte in each recoverable field.
	for i := 1; i < 5; i++ {
		raw, err := hex.DecodeString(parts[i])
		if err != nil {
			t.Fatal(err)
		}
		raw[0] ^= 0xff

		mutated := make([]string, 5)
		copy(mutated, parts)
		mutated[i] = hex.EncodeToString(raw)

		if _, err := v.Decrypt(strings.Join(mutated, ":")); err == nil {
			t.Errorf("decrypt should fail when field %d is tampered", i)
		}
	}
}

func TestDecrypt_MalformedEnvelope(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatal(err)
	}

	cases := []string{
		"plain text",
		"enc:only-two",
		"enc:aa:bb:cc:zz-not-hex",
		"enc:aa:bb:cc:dd:ee:ff",
	}

	for _, c := range cases {
		if _, err := v.Decrypt(c); err == nil {
			t.Errorf("expected error decrypting %q", c)
		}
	}
}

func TestDecrypt_WrongMasterKey(t *testing.T) {
	v1, _ := New(testMasterKey)
	v2, _ := New("another-master-key-also-32-bytes-or-more!")

	envelope, err := v1.Encrypt("cross key")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v2.Decrypt(envelope); err == nil {
		t.Error("decrypting with a different master key should fail")
	}
}

func TestRotate(t *testing.T) {
	oldVault, _ := New(testMasterKey)
	newVault, _ := New("rotated-master-key-with-32-plus-bytes!!!")

	envelope, err := oldVault.Encrypt("rotate me")
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := newVault.Rotate(envelope, oldVault)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	plaintext, err := newVault.Decrypt(rotated)
	if err != nil {
		t.Fatalf("decrypt after rotate: %v", err)
	}
	if plaintext != "rotate me" {
		t.Errorf("got %q after rotation", plaintext)
	}

	if _, err := oldVault.Decrypt(rotated); err == nil {
		t.Error("old key should no longer decrypt the rotated envelope")
	}
}

func TestHashCompare(t *testing.T) {
	digest := Hash("delivery-id-12345")

	if !CompareHash("delivery-id-12345", digest) {
		t.Error("matching value should compare true")
	}
	if CompareHash("delivery-id-12346", digest) {
		t.Error("different value should compare false")
	}
	if CompareHash("delivery-id-12345", "not hex") {
		t.Error("malformed digest should compare false")
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey(64)
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 128 {
		t.Errorf("expected 128 hex chars, got %d", len(key))
	}

	if _, err := New(key); err != nil {
		t.Errorf("generated key should be accepted by New: %v", err)
	}
}

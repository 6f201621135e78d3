package configsvc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	ivSize           = 16
	tagSize          = 16
	keySize          = 32
)

// fixedSalt is the fixed, versioned PBKDF2 salt for credential key
// derivation (spec.md §4.D). It is a code constant rather than randomly
// generated and stored per-secret, since the key must be re-derivable
// from only the host identifier with nothing persisted alongside the
// ciphertext. Bumping the derivation scheme means changing this value
// and re-encrypting every stored credential.
var fixedSalt = []byte("ai-consult-mcp-1")

// hostIdentifier returns the first non-empty of USER, USERNAME, HOME —
// the host-stable identifier PBKDF2 derives the credential key from
// (spec.md §4.D).
func hostIdentifier() string {
	for _, name := range []string{"USER", "USERNAME", "HOME"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// deriveKey runs PBKDF2-HMAC-SHA256 over the host identifier and the
// fixed salt.
func deriveKey() []byte {
	return pbkdf2.Key([]byte(hostIdentifier()), fixedSalt, pbkdf2Iterations, keySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from the host identifier.
// Layout: IV(16) || TAG(16) || CT, base64-encoded (spec.md §4.D).
func Encrypt(plaintext string) (string, error) {
	key := deriveKey()

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	// gcm.Seal appends the tag after the ciphertext; the wire layout
	// wants it between the IV and the ciphertext, so split and reorder.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, ivSize+tagSize+len(ct))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) < ivSize+tagSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	iv := raw[:ivSize]
	tag := raw[ivSize : ivSize+tagSize]
	ct := raw[ivSize+tagSize:]

	key := deriveKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Mask renders a credential for display: a fixed-width bullet run plus
// the last four characters, or all bullets if it is four characters or
// shorter.
func Mask(secret string) string {
	const bullets = "••••••••"
	if len(secret) <= 4 {
		return bullets
	}
	return bullets + secret[len(secret)-4:]
}

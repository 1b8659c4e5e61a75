package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// EnvelopePrefix marks encrypted credential strings. The format is
// encwc.v1:<iv_b64url>:<tag_b64url>:<ciphertext_b64url> with AES-256-GCM, a
// 12-byte IV and a 16-byte tag. Values without the prefix are legacy
// plaintext and pass through Decrypt unchanged so stored rows migrate lazily
// on the next write.
const EnvelopePrefix = "encwc.v1"

const (
	ivSize  = 12
	tagSize = 16
	keySize = 32
)

// derivationSalt pins scrypt derivation so the same process secret always
// yields the same key. Changing it invalidates every stored envelope.
var derivationSalt = []byte("optimaizer.agent-credentials.v1")

// ErrNoKey is returned when an envelope is present but no encryption key was
// configured.
var ErrNoKey = errors.New("credential encryption key not configured")

// Codec encrypts and decrypts credential envelopes with a key derived from
// the process secret.
type Codec struct {
	key []byte
}

// NewCodec derives the AES key from the process secret via scrypt.
func NewCodec(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoKey
	}
	key, err := scrypt.Key([]byte(secret), derivationSalt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	return &Codec{key: key}, nil
}

// IsEnvelope reports whether value carries the envelope prefix.
func IsEnvelope(value string) bool {
	return strings.HasPrefix(value, EnvelopePrefix+":")
}

// Encrypt seals plaintext into an envelope string.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return "", ErrNoKey
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	if len(sealed) < tagSize {
		return "", errors.New("sealed payload shorter than tag")
	}
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	enc := base64.RawURLEncoding
	return strings.Join([]string{
		EnvelopePrefix,
		enc.EncodeToString(iv),
		enc.EncodeToString(tag),
		enc.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens an envelope string. Non-envelope input is returned unchanged;
// that is how legacy plaintext rows keep working until their next write.
func (c *Codec) Decrypt(value string) (string, error) {
	if !IsEnvelope(value) {
		return value, nil
	}
	if c == nil {
		return "", ErrNoKey
	}

	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("malformed envelope: %d segments", len(parts))
	}

	enc := base64.RawURLEncoding
	iv, err := enc.DecodeString(parts[1])
	if err != nil || len(iv) != ivSize {
		return "", errors.New("malformed envelope iv")
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", errors.New("malformed envelope tag")
	}
	ciphertext, err := enc.DecodeString(parts[3])
	if err != nil {
		return "", errors.New("malformed envelope ciphertext")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("open envelope: %w", err)
	}
	return string(plaintext), nil
}

// EncryptMap seals every value of a credential map, leaving keys intact.
func (c *Codec) EncryptMap(values map[string]string) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		sealed, err := c.Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt %q: %w", k, err)
		}
		out[k] = sealed
	}
	return out, nil
}

// DecryptMap opens every value of a credential map, passing legacy plaintext
// through.
func (c *Codec) DecryptMap(values map[string]string) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		opened, err := c.Decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("decrypt %q: %w", k, err)
		}
		out[k] = opened
	}
	return out, nil
}

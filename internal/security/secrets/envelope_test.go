package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewCodec("process-secret")
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hunter2", "multi\nline\nvalue", strings.Repeat("x", 4096)} {
		sealed, err := codec.Encrypt(plaintext)
		require.NoError(t, err)
		assert.True(t, IsEnvelope(sealed))
		assert.Len(t, strings.Split(sealed, ":"), 4)

		opened, err := codec.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestDecryptPassesPlaintextThrough(t *testing.T) {
	codec, err := NewCodec("process-secret")
	require.NoError(t, err)

	got, err := codec.Decrypt("legacy-plaintext-credential")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext-credential", got)

	// Nil codec keeps legacy reads working too.
	var nilCodec *Codec
	got, err = nilCodec.Decrypt("still-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "still-plaintext", got)
}

func TestDecryptEnvelopeWithoutKeyFails(t *testing.T) {
	codec, err := NewCodec("process-secret")
	require.NoError(t, err)
	sealed, err := codec.Encrypt("value")
	require.NoError(t, err)

	var nilCodec *Codec
	_, err = nilCodec.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestDecryptRejectsTamperedEnvelope(t *testing.T) {
	codec, err := NewCodec("process-secret")
	require.NoError(t, err)
	sealed, err := codec.Encrypt("value")
	require.NoError(t, err)

	parts := strings.Split(sealed, ":")
	flipped := byte('A')
	if parts[3][0] == flipped {
		flipped = 'B'
	}
	parts[3] = string(flipped) + parts[3][1:]
	_, err = codec.Decrypt(strings.Join(parts, ":"))
	assert.Error(t, err)
}

func TestDifferentSecretsCannotOpen(t *testing.T) {
	a, err := NewCodec("secret-a")
	require.NoError(t, err)
	b, err := NewCodec("secret-b")
	require.NoError(t, err)

	sealed, err := a.Encrypt("value")
	require.NoError(t, err)
	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec("  ")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestEncryptMapAndDecryptMap(t *testing.T) {
	codec, err := NewCodec("process-secret")
	require.NoError(t, err)

	creds := map[string]string{"smtp": "p@ss", "imap": "w0rd"}
	sealed, err := codec.EncryptMap(creds)
	require.NoError(t, err)
	for k, v := range sealed {
		assert.True(t, IsEnvelope(v), "value for %s should be sealed", k)
	}

	opened, err := codec.DecryptMap(sealed)
	require.NoError(t, err)
	assert.Equal(t, creds, opened)
}

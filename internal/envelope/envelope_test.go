package envelope

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay.io/internal/apierr"
)

func randomKey(t *testing.T) [KeySize]byte {
	t.Helper()
	var key [KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	return key
}

func TestRoundTrip(t *testing.T) {
	c := New(randomKey(t))
	require.True(t, c.Enabled())

	for _, size := range []int{0, 1, 23, 24, 25, 64, 4096} {
		plain := make([]byte, size)
		_, err := rand.Read(plain)
		require.NoError(t, err)

		sealed, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.Len(t, sealed, NonceSize+size+16)

		opened, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plain, opened), "size %d", size)
	}
}

func TestNoop(t *testing.T) {
	for _, c := range []Cipher{NewNoop(), {}} {
		assert.False(t, c.Enabled())
		assert.Equal(t, ModeDisabled, c.Mode())

		in := []byte("whsec_plaintext")
		out, err := c.Encrypt(in)
		require.NoError(t, err)
		assert.Equal(t, in, out)

		back, err := c.Decrypt([]byte("anything at all"))
		require.NoError(t, err)
		assert.Equal(t, []byte("anything at all"), back)
	}
}

func TestNonceFreshness(t *testing.T) {
	c := New(randomKey(t))
	plain := []byte("same plaintext")

	a, err := c.Encrypt(plain)
	require.NoError(t, err)
	b, err := c.Encrypt(plain)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
}

func TestTamperDetection(t *testing.T) {
	c := New(randomKey(t))
	sealed, err := c.Encrypt([]byte("endpoint secret"))
	require.NoError(t, err)

	for i := 0; i < len(sealed); i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), sealed...)
			mutated[i] ^= 1 << bit
			_, err := c.Decrypt(mutated)
			require.ErrorIs(t, err, ErrDecryption, "byte %d bit %d", i, bit)
		}
	}
}

func TestDecryptRejectsShortInput(t *testing.T) {
	c := New(randomKey(t))
	for _, n := range []int{0, 1, NonceSize - 1, NonceSize} {
		_, err := c.Decrypt(make([]byte, n))
		assert.ErrorIs(t, err, ErrDecryption, "len %d", n)
		assert.ErrorIs(t, err, apierr.ErrEncryption)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	sealed, err := New(randomKey(t)).Encrypt([]byte("value"))
	require.NoError(t, err)

	_, err = New(randomKey(t)).Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestFromBase64(t *testing.T) {
	c, err := FromBase64("")
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	key := randomKey(t)
	c, err = FromBase64(base64.StdEncoding.EncodeToString(key[:]))
	require.NoError(t, err)
	assert.True(t, c.Enabled())

	_, err = FromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)

	_, err = FromBase64("%%%")
	assert.Error(t, err)
}

func TestConcurrentUse(t *testing.T) {
	c := New(randomKey(t))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plain := bytes.Repeat([]byte{byte(i)}, 100)
			for j := 0; j < 50; j++ {
				sealed, err := c.Encrypt(plain)
				if !assert.NoError(t, err) {
					return
				}
				opened, err := c.Decrypt(sealed)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, plain, opened)
			}
		}(i)
	}
	wg.Wait()
}

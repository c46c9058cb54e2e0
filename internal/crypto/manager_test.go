// ABOUTME: Tests for item key wrapping and authenticated content encryption
// ABOUTME: Covers round trips, tamper detection, public records and key splitting

package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sealnote/internal/keys"
	"github.com/2389/sealnote/internal/models"
)

// newTestManager derives a master key the same way a login does.
func newTestManager(t *testing.T, password string) *Manager {
	t.Helper()
	creds, err := keys.DeriveCredentials(password, keys.AuthParams{
		Func:    keys.FuncPBKDF2,
		Alg:     keys.AlgSHA512,
		Salt:    keys.SaltFor("a@b.com", "nonce"),
		Cost:    1000,
		KeySize: 512,
	})
	require.NoError(t, err)

	m, err := NewManager(creds.MasterKey)
	require.NoError(t, err)
	return m
}

func newNote(title, text string) *models.Item {
	item := models.NewItem(models.ContentTypeNote)
	models.Note{Title: title, Text: text}.Apply(item)
	return item
}

func TestNewManager_RejectsBadKeys(t *testing.T) {
	_, err := NewManager("zz")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewManager(hex.EncodeToString(make([]byte, 20)))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCBC_RoundTrip(t *testing.T) {
	ek := make([]byte, 32)
	_, err := rand.Read(ek)
	require.NoError(t, err)
	iv := make([]byte, 16)

	messages := []string{"", "a", "exactly sixteen!", "Hello, 世界 🌍", string(make([]byte, 1000))}
	for _, msg := range messages {
		ct, err := encryptCBC(ek, iv, []byte(msg))
		require.NoError(t, err)
		pt, err := decryptCBC(ek, iv, ct)
		require.NoError(t, err)
		assert.Equal(t, msg, string(pt))
	}
}

func TestEnsureItemKey(t *testing.T) {
	m := newTestManager(t, "pw")
	item := newNote("t", "x")

	require.NoError(t, m.EnsureItemKey(item))
	require.NotEmpty(t, item.EncItemKey)

	first := item.EncItemKey
	require.NoError(t, m.EnsureItemKey(item))
	assert.Equal(t, first, item.EncItemKey, "existing key must be kept")

	pair, err := m.UnwrapItemKey(item)
	require.NoError(t, err)
	assert.Len(t, pair.EK, 64)
	assert.Len(t, pair.AK, 64)
	assert.NotEqual(t, pair.EK, pair.AK)
}

func TestEnsureItemKey_FollowsKeySize(t *testing.T) {
	for _, size := range []int{256, 384, 512} {
		creds, err := keys.DeriveCredentials("pw", keys.AuthParams{
			Func:    keys.FuncPBKDF2,
			Alg:     keys.AlgSHA512,
			Salt:    keys.SaltFor("a@b.com", "nonce"),
			Cost:    1000,
			KeySize: size,
		})
		require.NoError(t, err)
		m, err := NewManager(creds.MasterKey)
		require.NoError(t, err)

		item := newNote("t", "x")
		require.NoError(t, m.EnsureItemKey(item))
		pair, err := m.UnwrapItemKey(item)
		require.NoError(t, err)
		assert.Equal(t, size, (len(pair.EK)+len(pair.AK))*4, "pw_key_size %d", size)

		rec, err := m.EncryptContent(item)
		require.NoError(t, err)
		_, err = m.OpenRecord(&rec)
		assert.NoError(t, err, "pw_key_size %d", size)
	}
}

func TestEnsureItemKey_Fresh(t *testing.T) {
	m := newTestManager(t, "pw")
	a := newNote("a", "")
	b := newNote("b", "")
	require.NoError(t, m.EnsureItemKey(a))
	require.NoError(t, m.EnsureItemKey(b))
	assert.NotEqual(t, a.EncItemKey, b.EncItemKey)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	m := newTestManager(t, "pw")

	for _, text := range []string{"", "Hello", "multi\nline ✓ text"} {
		item := newNote("title", text)
		item.SetReferences([]models.Reference{{UUID: "tag-1", ContentType: models.ContentTypeTag}})

		rec, err := m.SealItem(item, false)
		require.NoError(t, err)
		assert.Equal(t, models.TagEncrypted, rec.ContentTag())
		require.NotNil(t, rec.EncItemKey)
		require.NotNil(t, rec.AuthHash)

		content, err := m.DecryptContent(&rec)
		require.NoError(t, err)
		assert.Equal(t, text, content["text"])
		assert.Equal(t, "title", content["title"])
	}
}

func TestEncryptContent_RequiresKey(t *testing.T) {
	m := newTestManager(t, "pw")
	_, err := m.EncryptContent(newNote("t", "x"))
	assert.ErrorIs(t, err, ErrMissingItemKey)
}

func TestCanonicalJSON_Deterministic(t *testing.T) {
	a := map[string]any{"title": "t", "text": "x", "references": []any{}}
	b := map[string]any{"references": []any{}, "text": "x", "title": "t"}

	ja, err := canonicalJSON(a)
	require.NoError(t, err)
	jb, err := canonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestAuthHash_Reproducible(t *testing.T) {
	m := newTestManager(t, "pw")
	item := newNote("t", "x")
	rec, err := m.SealItem(item, false)
	require.NoError(t, err)

	pair, err := m.UnwrapItemKey(item)
	require.NoError(t, err)
	ak, _ := hex.DecodeString(pair.AK)
	assert.Equal(t, hmacHex(ak, rec.Content), *rec.AuthHash)
}

// flipBit flips one bit of the i-th byte of s, keeping it printable.
func flipBit(s string, i int) string {
	b := []byte(s)
	b[i] ^= 0x01
	return string(b)
}

func TestDecryptContent_TamperedContent(t *testing.T) {
	m := newTestManager(t, "pw")
	item := newNote("t", "secret")
	rec, err := m.SealItem(item, false)
	require.NoError(t, err)

	for _, i := range []int{0, 3, len(rec.Content) / 2, len(rec.Content) - 1} {
		tampered := rec
		tampered.Content = flipBit(rec.Content, i)

		content, err := m.DecryptContent(&tampered)
		assert.ErrorIs(t, err, ErrTamperedContent, "byte %d", i)
		assert.Nil(t, content)
	}
}

func TestDecryptContent_TamperedAuthHash(t *testing.T) {
	m := newTestManager(t, "pw")
	rec, err := m.SealItem(newNote("t", "secret"), false)
	require.NoError(t, err)

	for i := 0; i < len(*rec.AuthHash); i += 7 {
		tampered := rec
		tampered.AuthHash = models.StringPtr(flipBit(*rec.AuthHash, i))

		_, err := m.DecryptContent(&tampered)
		assert.ErrorIs(t, err, ErrTamperedContent, "byte %d", i)
	}
}

func TestDecryptContent_WrongMasterKey(t *testing.T) {
	alice := newTestManager(t, "alice")
	mallory := newTestManager(t, "mallory")

	rec, err := alice.SealItem(newNote("t", "secret"), false)
	require.NoError(t, err)

	_, err = mallory.DecryptContent(&rec)
	assert.ErrorIs(t, err, ErrTamperedContent)
}

func TestDecryptContent_MalformedAfterAuth(t *testing.T) {
	m := newTestManager(t, "pw")
	item := newNote("t", "x")
	require.NoError(t, m.EnsureItemKey(item))
	pair, err := m.UnwrapItemKey(item)
	require.NoError(t, err)
	ek, _ := hex.DecodeString(pair.EK)
	ak, _ := hex.DecodeString(pair.AK)

	// Valid ciphertext and hash over something that is not JSON.
	iv := make([]byte, 16)
	ct, err := encryptCBC(ek, iv, []byte("not json"))
	require.NoError(t, err)
	content := models.TagEncrypted + base64.StdEncoding.EncodeToString(append(iv, ct...))

	rec := models.MetadataRecord(item)
	rec.Content = content
	rec.EncItemKey = models.StringPtr(item.EncItemKey)
	rec.AuthHash = models.StringPtr(hmacHex(ak, content))

	_, err = m.DecryptContent(&rec)
	assert.ErrorIs(t, err, ErrMalformedContent)
	assert.False(t, errors.Is(err, ErrTamperedContent))
}

func TestPublicContent(t *testing.T) {
	item := newNote("shared", "hello")
	item.PresentationName = "my-note"

	rec, err := PublicContent(item)
	require.NoError(t, err)

	assert.Equal(t, models.TagPublic, rec.ContentTag())
	assert.Nil(t, rec.EncItemKey)
	assert.Nil(t, rec.AuthHash)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"enc_item_key":null`)
	assert.Contains(t, string(data), `"auth_hash":null`)

	m := newTestManager(t, "pw")
	content, err := m.OpenRecord(&rec)
	require.NoError(t, err)
	assert.Equal(t, "hello", content["text"])
}

func TestOpenRecord_RejectsMixed(t *testing.T) {
	m := newTestManager(t, "pw")

	pub, err := PublicContent(newNote("t", "x"))
	require.NoError(t, err)
	pub.AuthHash = models.StringPtr("abc")
	_, err = m.OpenRecord(&pub)
	assert.ErrorIs(t, err, ErrTamperedContent)

	priv, err := m.SealItem(newNote("t", "x"), false)
	require.NoError(t, err)
	priv.EncItemKey = nil
	_, err = m.OpenRecord(&priv)
	assert.ErrorIs(t, err, ErrTamperedContent)

	unknown := priv
	unknown.Content = "002abc"
	_, err = m.OpenRecord(&unknown)
	assert.ErrorIs(t, err, ErrMalformedContent)
}

func TestSealItem_Tombstone(t *testing.T) {
	m := newTestManager(t, "pw")
	item := newNote("t", "x")
	item.Deleted = true

	rec, err := m.SealItem(item, false)
	require.NoError(t, err)
	assert.True(t, rec.Deleted)
	assert.Empty(t, rec.Content)
	assert.Empty(t, item.EncItemKey, "tombstones need no key")
}

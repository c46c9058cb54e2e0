// ABOUTME: Per-item key wrapping and authenticated content encryption
// ABOUTME: Verifies auth_hash before any ciphertext is decrypted or parsed

package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/sealnote/internal/models"
)

// Content errors. Both are per-item and recoverable: the item keeps its previous content.
var (
	ErrTamperedContent  = errors.New("content failed authentication")
	ErrMalformedContent = errors.New("content is malformed")
	ErrMissingItemKey   = errors.New("item has no enc_item_key")
	ErrInvalidKey       = errors.New("invalid key material")
)

// ItemKeyPair holds the hex encoded encryption and authentication keys of one item.
type ItemKeyPair struct {
	EK string
	AK string
}

// Manager wraps item keys under the session master key and seals item content.
// It holds no per-item state and is safe for concurrent use.
type Manager struct {
	masterKey []byte
	// itemKeyBits is the size of a fresh item key. The master key is the second half
	// of a pw_key_size derivation, so this equals pw_key_size.
	itemKeyBits int
}

// NewManager creates a manager for a hex encoded master key.
func NewManager(masterKeyHex string) (*Manager, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: master key is not hex: %v", ErrInvalidKey, err)
	}
	if !validAESKey(len(key)) {
		return nil, fmt.Errorf("%w: master key must be 128, 192 or 256 bits, got %d", ErrInvalidKey, len(key)*8)
	}
	return &Manager{masterKey: key, itemKeyBits: 2 * len(key) * 8}, nil
}

// EnsureItemKey generates and wraps a fresh item key when the item has none.
// The key is encrypted under the master key with a zero IV: each item key is random
// and only ever used as a key, never as plaintext elsewhere.
func (m *Manager) EnsureItemKey(item *models.Item) error {
	if item.EncItemKey != "" {
		return nil
	}

	secret := make([]byte, m.itemKeyBits/8)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating item key: %w", err)
	}

	wrapped, err := encryptCBC(m.masterKey, zeroIV, []byte(hex.EncodeToString(secret)))
	if err != nil {
		return fmt.Errorf("wrapping item key: %w", err)
	}
	item.EncItemKey = base64.StdEncoding.EncodeToString(wrapped)
	return nil
}

// UnwrapItemKey decrypts the item's enc_item_key and splits it into ek and ak.
func (m *Manager) UnwrapItemKey(item *models.Item) (ItemKeyPair, error) {
	return m.unwrap(item.EncItemKey)
}

func (m *Manager) unwrap(encItemKey string) (ItemKeyPair, error) {
	if encItemKey == "" {
		return ItemKeyPair{}, ErrMissingItemKey
	}
	wrapped, err := base64.StdEncoding.DecodeString(encItemKey)
	if err != nil {
		return ItemKeyPair{}, fmt.Errorf("%w: enc_item_key is not base64", ErrInvalidKey)
	}
	plain, err := decryptCBC(m.masterKey, zeroIV, wrapped)
	if err != nil {
		return ItemKeyPair{}, fmt.Errorf("%w: unwrapping item key: %v", ErrInvalidKey, err)
	}

	keyHex := string(plain)
	if len(keyHex) == 0 || len(keyHex)%2 != 0 {
		return ItemKeyPair{}, fmt.Errorf("%w: item key has odd length", ErrInvalidKey)
	}
	if _, err := hex.DecodeString(keyHex); err != nil {
		return ItemKeyPair{}, fmt.Errorf("%w: item key is not hex", ErrInvalidKey)
	}

	half := len(keyHex) / 2
	pair := ItemKeyPair{EK: keyHex[:half], AK: keyHex[half:]}
	if !validAESKey(len(pair.EK) / 2) {
		return ItemKeyPair{}, fmt.Errorf("%w: encryption key is %d bits", ErrInvalidKey, len(pair.EK)*4)
	}
	return pair, nil
}

// EncryptContent seals the item's content with its item key.
// The item must already carry an enc_item_key (see EnsureItemKey).
func (m *Manager) EncryptContent(item *models.Item) (models.ItemRecord, error) {
	pair, err := m.UnwrapItemKey(item)
	if err != nil {
		return models.ItemRecord{}, err
	}

	plain, err := canonicalJSON(item.Content)
	if err != nil {
		return models.ItemRecord{}, err
	}

	ek, _ := hex.DecodeString(pair.EK)
	ak, _ := hex.DecodeString(pair.AK)

	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return models.ItemRecord{}, fmt.Errorf("generating iv: %w", err)
	}
	ct, err := encryptCBC(ek, iv, plain)
	if err != nil {
		return models.ItemRecord{}, fmt.Errorf("encrypting content: %w", err)
	}

	tagged := models.TagEncrypted + base64.StdEncoding.EncodeToString(append(iv, ct...))

	rec := models.MetadataRecord(item)
	rec.Content = tagged
	rec.EncItemKey = models.StringPtr(item.EncItemKey)
	rec.AuthHash = models.StringPtr(hmacHex(ak, tagged))
	return rec, nil
}

// DecryptContent authenticates and decrypts a private record.
// auth_hash is checked before the ciphertext is touched; on mismatch ErrTamperedContent
// is returned and nothing is decrypted.
func (m *Manager) DecryptContent(rec *models.ItemRecord) (map[string]any, error) {
	if rec.EncItemKey == nil || rec.AuthHash == nil || *rec.EncItemKey == "" || *rec.AuthHash == "" {
		return nil, fmt.Errorf("%w: private record without key material", ErrTamperedContent)
	}

	pair, err := m.unwrap(*rec.EncItemKey)
	if err != nil {
		// A key we cannot unwrap cannot authenticate anything.
		return nil, fmt.Errorf("%w: %v", ErrTamperedContent, err)
	}
	ak, _ := hex.DecodeString(pair.AK)

	expected := hmacHex(ak, rec.Content)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(*rec.AuthHash))) {
		return nil, ErrTamperedContent
	}

	if rec.ContentTag() != models.TagEncrypted {
		return nil, fmt.Errorf("%w: unexpected content tag %q", ErrMalformedContent, rec.ContentTag())
	}
	raw, err := base64.StdEncoding.DecodeString(rec.Content[3:])
	if err != nil {
		return nil, fmt.Errorf("%w: content is not base64", ErrMalformedContent)
	}
	if len(raw) < 32 {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrMalformedContent)
	}

	ek, _ := hex.DecodeString(pair.EK)
	plain, err := decryptCBC(ek, raw[:16], raw[16:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return parseContent(plain)
}

// PublicContent builds the wire record of a public item: "000" + base64(json) with
// enc_item_key and auth_hash explicitly null.
func (m *Manager) PublicContent(item *models.Item) (models.ItemRecord, error) {
	return PublicContent(item)
}

// PublicContent is the key-free form of Manager.PublicContent.
func PublicContent(item *models.Item) (models.ItemRecord, error) {
	plain, err := canonicalJSON(item.Content)
	if err != nil {
		return models.ItemRecord{}, err
	}
	rec := models.MetadataRecord(item)
	rec.Content = models.TagPublic + base64.StdEncoding.EncodeToString(plain)
	rec.EncItemKey = nil
	rec.AuthHash = nil
	return rec, nil
}

// OpenRecord returns the content of a record of either kind.
// A record mixing public and private markers is rejected as tampered.
func (m *Manager) OpenRecord(rec *models.ItemRecord) (map[string]any, error) {
	switch rec.ContentTag() {
	case models.TagPublic:
		if rec.EncItemKey != nil || rec.AuthHash != nil {
			return nil, fmt.Errorf("%w: public content with key material", ErrTamperedContent)
		}
		raw, err := base64.StdEncoding.DecodeString(rec.Content[3:])
		if err != nil {
			return nil, fmt.Errorf("%w: content is not base64", ErrMalformedContent)
		}
		return parseContent(raw)
	case models.TagEncrypted:
		return m.DecryptContent(rec)
	default:
		return nil, fmt.Errorf("%w: unknown content tag %q", ErrMalformedContent, rec.ContentTag())
	}
}

// SealItem builds the wire record for item, public or private.
// Private items get an item key first; the caller owns item and sees the new key.
func (m *Manager) SealItem(item *models.Item, public bool) (models.ItemRecord, error) {
	if item.Deleted {
		return models.TombstoneRecord(item), nil
	}
	if public {
		return PublicContent(item)
	}
	if err := m.EnsureItemKey(item); err != nil {
		return models.ItemRecord{}, err
	}
	return m.EncryptContent(item)
}

// canonicalJSON serializes content deterministically. encoding/json sorts map keys,
// so equal content always produces the same string.
func canonicalJSON(content map[string]any) ([]byte, error) {
	if content == nil {
		content = map[string]any{}
	}
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("serializing content: %w", err)
	}
	return data, nil
}

func parseContent(data []byte) (map[string]any, error) {
	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: content is not an object", ErrMalformedContent)
	}
	return content, nil
}

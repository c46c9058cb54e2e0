// ABOUTME: Password-based credential derivation using PBKDF2
// ABOUTME: Splits the derived key into a server password and a local master key

package keys

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Supported key derivation identifiers.
const (
	FuncPBKDF2 = "pbkdf2"
	AlgSHA256  = "sha256"
	AlgSHA512  = "sha512"
)

// Derivation errors
var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidParams        = errors.New("invalid auth params")
)

// AuthParams are the public key derivation parameters for an account.
// The server issues them at login; the client chooses them at registration.
type AuthParams struct {
	Func    string `json:"pw_func"`
	Alg     string `json:"pw_alg"`
	Salt    string `json:"pw_salt"`
	Cost    int    `json:"pw_cost"`
	KeySize int    `json:"pw_key_size"`
	Nonce   string `json:"pw_nonce,omitempty"` // only sent at registration
}

// Credentials are the two halves of the derived key, hex encoded.
type Credentials struct {
	ServerPassword string
	MasterKey      string
}

// Defaults holds the parameters used when registering a new account.
type Defaults struct {
	Func    string
	Alg     string
	Cost    int
	KeySize int
}

// DefaultParams returns the registration defaults.
func DefaultParams() Defaults {
	return Defaults{
		Func:    FuncPBKDF2,
		Alg:     AlgSHA512,
		Cost:    60000,
		KeySize: 512,
	}
}

// Validate checks that the params name supported primitives and sane sizes.
// Unknown function or hash names are a hard failure, never a fallback.
func (p AuthParams) Validate() error {
	if !strings.EqualFold(p.Func, FuncPBKDF2) {
		return fmt.Errorf("%w: pw_func %q", ErrUnsupportedAlgorithm, p.Func)
	}
	if _, err := hashFunc(p.Alg); err != nil {
		return err
	}
	if p.Cost <= 0 {
		return fmt.Errorf("%w: pw_cost must be positive, got %d", ErrInvalidParams, p.Cost)
	}
	// Each half must be a whole number of bytes.
	if p.KeySize <= 0 || p.KeySize%16 != 0 {
		return fmt.Errorf("%w: pw_key_size must be a positive multiple of 16, got %d", ErrInvalidParams, p.KeySize)
	}
	if p.Salt == "" {
		return fmt.Errorf("%w: pw_salt is required", ErrInvalidParams)
	}
	return nil
}

// hashFunc maps a pw_alg name to its hash constructor.
func hashFunc(alg string) (func() hash.Hash, error) {
	switch strings.ToLower(alg) {
	case AlgSHA256:
		return sha256.New, nil
	case AlgSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: pw_alg %q", ErrUnsupportedAlgorithm, alg)
	}
}

// DeriveCredentials runs the key derivation named by params over password.
// The derived pw_key_size bits are hex encoded and split in half: the first half is the
// server password, the second the master key.
func DeriveCredentials(password string, params AuthParams) (Credentials, error) {
	if err := params.Validate(); err != nil {
		return Credentials{}, err
	}

	h, err := hashFunc(params.Alg)
	if err != nil {
		return Credentials{}, err
	}

	derived := pbkdf2.Key([]byte(password), []byte(params.Salt), params.Cost, params.KeySize/8, h)
	encoded := hex.EncodeToString(derived)
	half := len(encoded) / 2

	return Credentials{
		ServerPassword: encoded[:half],
		MasterKey:      encoded[half:],
	}, nil
}

// GenerateRegistrationSalt creates a random nonce and the salt derived from it.
// salt = hex(SHA1(email + "SN" + nonce)).
func GenerateRegistrationSalt(email string) (salt, nonce string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating nonce: %w", err)
	}
	nonce = hex.EncodeToString(buf)
	return SaltFor(email, nonce), nonce, nil
}

// SaltFor computes the registration salt for an email and nonce.
func SaltFor(email, nonce string) string {
	sum := sha1.Sum([]byte(email + "SN" + nonce))
	return hex.EncodeToString(sum[:])
}

// NewRegistrationParams builds params for a new account from defaults and a fresh salt.
func NewRegistrationParams(email string, d Defaults) (AuthParams, error) {
	salt, nonce, err := GenerateRegistrationSalt(email)
	if err != nil {
		return AuthParams{}, err
	}

	params := AuthParams{
		Func:    d.Func,
		Alg:     d.Alg,
		Salt:    salt,
		Cost:    d.Cost,
		KeySize: d.KeySize,
		Nonce:   nonce,
	}
	if err := params.Validate(); err != nil {
		return AuthParams{}, err
	}
	return params, nil
}

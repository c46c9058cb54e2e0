// ABOUTME: Tests for PBKDF2 credential derivation and registration salts
// ABOUTME: Covers determinism, half splitting, and unsupported algorithm rejection

package keys

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() AuthParams {
	return AuthParams{
		Func:    "pbkdf2",
		Alg:     "sha512",
		Salt:    SaltFor("a@b.com", "nonce"),
		Cost:    1000,
		KeySize: 512,
	}
}

func TestDeriveCredentials_Deterministic(t *testing.T) {
	params := testParams()

	first, err := DeriveCredentials("hunter2", params)
	require.NoError(t, err)
	second, err := DeriveCredentials("hunter2", params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeriveCredentials_SplitsHalves(t *testing.T) {
	creds, err := DeriveCredentials("hunter2", testParams())
	require.NoError(t, err)

	// 512 bits -> 128 hex chars -> 64 per half
	assert.Len(t, creds.ServerPassword, 64)
	assert.Len(t, creds.MasterKey, 64)
	assert.NotEqual(t, creds.ServerPassword, creds.MasterKey)
}

func TestDeriveCredentials_DifferentPasswords(t *testing.T) {
	a, err := DeriveCredentials("one", testParams())
	require.NoError(t, err)
	b, err := DeriveCredentials("two", testParams())
	require.NoError(t, err)

	assert.NotEqual(t, a.MasterKey, b.MasterKey)
	assert.NotEqual(t, a.ServerPassword, b.ServerPassword)
}

func TestDeriveCredentials_CaseInsensitiveNames(t *testing.T) {
	lower := testParams()
	upper := testParams()
	upper.Func = "PBKDF2"
	upper.Alg = "SHA512"

	a, err := DeriveCredentials("pw", lower)
	require.NoError(t, err)
	b, err := DeriveCredentials("pw", upper)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveCredentials_SHA256(t *testing.T) {
	params := testParams()
	params.Alg = "sha256"
	params.KeySize = 256

	creds, err := DeriveCredentials("pw", params)
	require.NoError(t, err)
	assert.Len(t, creds.MasterKey, 32)
}

func TestDeriveCredentials_RegistrationScenario(t *testing.T) {
	salt, nonce, err := GenerateRegistrationSalt("a@b.com")
	require.NoError(t, err)
	assert.Equal(t, SaltFor("a@b.com", nonce), salt)

	params := AuthParams{
		Func:    "PBKDF2",
		Alg:     "SHA512",
		Salt:    salt,
		Cost:    60000,
		KeySize: 512,
	}

	first, err := DeriveCredentials("correct horse", params)
	require.NoError(t, err)
	second, err := DeriveCredentials("correct horse", params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first.ServerPassword, first.MasterKey)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AuthParams)
		wantErr error
	}{
		{"unknown func", func(p *AuthParams) { p.Func = "scrypt" }, ErrUnsupportedAlgorithm},
		{"empty func", func(p *AuthParams) { p.Func = "" }, ErrUnsupportedAlgorithm},
		{"unknown alg", func(p *AuthParams) { p.Alg = "md5" }, ErrUnsupportedAlgorithm},
		{"zero cost", func(p *AuthParams) { p.Cost = 0 }, ErrInvalidParams},
		{"odd key size", func(p *AuthParams) { p.KeySize = 100 }, ErrInvalidParams},
		{"missing salt", func(p *AuthParams) { p.Salt = "" }, ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.mutate(&params)

			_, err := DeriveCredentials("pw", params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DeriveCredentials() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateRegistrationSalt_Random(t *testing.T) {
	s1, n1, err := GenerateRegistrationSalt("a@b.com")
	require.NoError(t, err)
	s2, n2, err := GenerateRegistrationSalt("a@b.com")
	require.NoError(t, err)

	assert.NotEqual(t, n1, n2)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 40) // hex SHA1
}

func TestNewRegistrationParams(t *testing.T) {
	params, err := NewRegistrationParams("a@b.com", DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, FuncPBKDF2, params.Func)
	assert.Equal(t, AlgSHA512, params.Alg)
	assert.Equal(t, 60000, params.Cost)
	assert.Equal(t, 512, params.KeySize)
	assert.NotEmpty(t, params.Nonce)
	assert.Equal(t, SaltFor("a@b.com", params.Nonce), params.Salt)

	bad := DefaultParams()
	bad.Alg = "whirlpool"
	_, err = NewRegistrationParams("a@b.com", bad)
	assert.True(t, strings.Contains(err.Error(), "whirlpool"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

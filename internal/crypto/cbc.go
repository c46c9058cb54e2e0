// ABOUTME: AES-CBC with PKCS7 padding and HMAC-SHA256 primitives
// ABOUTME: Low-level helpers used by the item key manager

package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	errBadPadding   = errors.New("crypto: invalid padding")
	errBadBlockSize = errors.New("crypto: ciphertext is not a multiple of the block size")
	errShortCipher  = errors.New("crypto: ciphertext too short")
	zeroIV          = make([]byte, aes.BlockSize)
)

func pkcs7Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-n], nil
}

// encryptCBC encrypts plaintext with key under iv. The plaintext is padded first.
func encryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(append([]byte(nil), plaintext...))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// decryptCBC reverses encryptCBC.
func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 {
		return nil, errShortCipher
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errBadBlockSize
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

// hmacHex returns hex(HMAC-SHA256(message, key)).
func hmacHex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// validAESKey reports whether n is an AES key length.
func validAESKey(n int) bool {
	return n == 16 || n == 24 || n == 32
}

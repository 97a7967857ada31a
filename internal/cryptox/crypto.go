// Package cryptox implements the symmetric cipher engine: AES-256-GCM over
// opaque byte blobs. A blob is nonce ‖ ciphertext ‖ tag, treated as a single
// byte string everywhere above this package.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/avoronov/planvault/internal/common"
	"golang.org/x/crypto/argon2"
)

// NonceSize is the GCM nonce length embedded at the front of every blob.
const NonceSize = 12

// GenerateKey returns a fresh random 256-bit symmetric key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(common.KeySize)
}

// MakeVerifier returns a hash of the master key suitable for server-side
// login verification without revealing the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey derives the 256-bit workspace master key from a password
// and salt using argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, common.KeySize)
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh random
// nonce. The returned blob is nonce ‖ ciphertext ‖ tag.
//
// Encrypt is a pure function over key and bytes: no shared state, safe to
// call concurrently.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. It fails closed: a short or
// tampered blob yields common.ErrAuthenticationFailure, never partial
// plaintext.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(blob) < common.MinBlobSize {
		return nil, common.ErrAuthenticationFailure
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, common.ErrAuthenticationFailure
	}
	return plaintext, nil
}

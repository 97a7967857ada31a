// Package keywrap implements the asymmetric key-wrap engine for share DEKs.
//
// A DEK is never encrypted with the raw Diffie-Hellman output: the X25519
// agreement is fed through HKDF-SHA256 to derive a wrapping key, and the
// actual wrapping delegates to cryptox. This keeps the same AEAD machinery
// and test vectors covering both workspace blobs and wrapped DEKs.
package keywrap

import (
	"crypto/sha256"
	"io"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/cryptox"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds derived wrapping keys to this protocol version.
var hkdfInfo = []byte("planvault/dek-wrap/v1")

// KeyPair is an X25519 sharing key pair. The private scalar stays on the
// device that generated it; only the public half is registered server-side.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKeyPair returns a fresh X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv := common.GenerateRandByteArray(curve25519.ScalarSize)
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// deriveWrappingKey agrees on a shared secret between privateKey and
// peerPublicKey, then derives a 256-bit wrapping key via HKDF-SHA256.
// The agreement is symmetric: DH(a, B) == DH(b, A), so both sides derive
// the same wrapping key from their own private half and the peer's public.
func deriveWrappingKey(privateKey, peerPublicKey []byte) ([]byte, error) {
	secret, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(secret)

	kek := make([]byte, common.KeySize)
	r := hkdf.New(sha256.New, secret, nil, hkdfInfo)
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, err
	}
	return kek, nil
}

// Wrap encrypts dek for the holder of recipientPublicKey. The sender's
// private key participates in the agreement; the recipient unwraps with
// their private key and the sender's public key.
func Wrap(dek, recipientPublicKey, senderPrivateKey []byte) ([]byte, error) {
	kek, err := deriveWrappingKey(senderPrivateKey, recipientPublicKey)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(kek)

	return cryptox.Encrypt(kek, dek)
}

// Unwrap recovers a DEK wrapped by Wrap. It fails closed with
// common.ErrUnwrapFailure on any agreement or authentication failure.
func Unwrap(wrapped, senderPublicKey, recipientPrivateKey []byte) ([]byte, error) {
	kek, err := deriveWrappingKey(recipientPrivateKey, senderPublicKey)
	if err != nil {
		return nil, common.ErrUnwrapFailure
	}
	defer common.WipeByteArray(kek)

	dek, err := cryptox.Decrypt(kek, wrapped)
	if err != nil {
		return nil, common.ErrUnwrapFailure
	}
	return dek, nil
}

// WrapForOwner wraps a DEK under the owner's workspace master key, used
// directly as a symmetric KEK. No asymmetric agreement is involved, so the
// owner can reconstruct the DEK later without their sharing private key.
func WrapForOwner(dek, masterKey []byte) ([]byte, error) {
	return cryptox.Encrypt(masterKey, dek)
}

// UnwrapForOwner recovers a DEK wrapped by WrapForOwner.
func UnwrapForOwner(wrapped, masterKey []byte) ([]byte, error) {
	dek, err := cryptox.Decrypt(masterKey, wrapped)
	if err != nil {
		return nil, common.ErrUnwrapFailure
	}
	return dek, nil
}

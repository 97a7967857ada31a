// Package keystore holds the client's key material: the master key derived
// from the passphrase and the X25519 sharing key pair. Secrets live only in
// process memory while unlocked; the private sharing key is the single
// secret persisted to local state.
package keystore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/avoronov/planvault/internal/client/repositories/localstate"
	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/cryptox"
	"github.com/avoronov/planvault/internal/keywrap"
)

const saltSize = 16

// Registrar publishes public sharing keys to the backend. Satisfied by
// transport.Client.
type Registrar interface {
	RegisterSharingKey(ctx context.Context, publicKey []byte) error
}

type Keyring struct {
	state localstate.Repository
	api   Registrar

	mu        sync.Mutex
	masterKey []byte
	pair      *keywrap.KeyPair
}

func NewKeyring(state localstate.Repository, api Registrar) *Keyring {
	return &Keyring{state: state, api: api}
}

// Unlock derives the master key from the passphrase. On first unlock a fresh
// salt and verifier are stored; afterwards the verifier detects a wrong
// passphrase before any decryption is attempted.
func (k *Keyring) Unlock(ctx context.Context, passphrase []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	salt, err := k.state.Get(ctx, localstate.KeyKeySalt)
	if err != nil {
		return err
	}
	firstUnlock := salt == nil
	if firstUnlock {
		salt = common.GenerateRandByteArray(saltSize)
		if err := k.state.Set(ctx, localstate.KeyKeySalt, salt); err != nil {
			return err
		}
	}

	masterKey := cryptox.DeriveMasterKey(passphrase, salt)
	verifier := cryptox.MakeVerifier(masterKey)

	stored, err := k.state.Get(ctx, localstate.KeyVerifier)
	if err != nil {
		return err
	}
	if stored == nil {
		if err := k.state.Set(ctx, localstate.KeyVerifier, verifier); err != nil {
			return err
		}
	} else if !bytes.Equal(stored, verifier) {
		common.WipeByteArray(masterKey)
		return common.ErrAuthenticationFailure
	}

	k.masterKey = masterKey
	return nil
}

// Clear wipes all key material from memory. Local state is untouched.
func (k *Keyring) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()

	common.WipeByteArray(k.masterKey)
	k.masterKey = nil
	if k.pair != nil {
		common.WipeByteArray(k.pair.PrivateKey)
		k.pair = nil
	}
}

// MasterKey returns the unlocked master key or common.ErrMissingKeys.
func (k *Keyring) MasterKey() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.masterKey == nil {
		return nil, common.ErrMissingKeys
	}
	return k.masterKey, nil
}

// EnsureSharingKeyPair returns the sharing key pair, loading it from local
// state or generating and registering a fresh one. Registration with the
// server is idempotent, repeating it after a half-finished previous run is
// harmless.
func (k *Keyring) EnsureSharingKeyPair(ctx context.Context) (*keywrap.KeyPair, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.pair != nil {
		return k.pair, nil
	}

	priv, err := k.state.Get(ctx, localstate.KeyPrivateSharingKey)
	if err != nil {
		return nil, err
	}
	pub, err := k.state.Get(ctx, localstate.KeyPublicSharingKey)
	if err != nil {
		return nil, err
	}

	if priv != nil && pub != nil {
		k.pair = &keywrap.KeyPair{PublicKey: pub, PrivateKey: priv}
		return k.pair, nil
	}

	pair, err := keywrap.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating sharing key pair: %w", err)
	}

	if err := k.state.Set(ctx, localstate.KeyPrivateSharingKey, pair.PrivateKey); err != nil {
		return nil, err
	}
	if err := k.state.Set(ctx, localstate.KeyPublicSharingKey, pair.PublicKey); err != nil {
		return nil, err
	}
	if err := k.api.RegisterSharingKey(ctx, pair.PublicKey); err != nil {
		return nil, err
	}

	k.pair = pair
	return pair, nil
}

// RotateSharingKeyPair generates and registers a new sharing key pair,
// replacing the stored one. The previous pair is returned so callers can
// re-wrap DEKs of existing shares before discarding it.
func (k *Keyring) RotateSharingKeyPair(ctx context.Context) (old, fresh *keywrap.KeyPair, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	priv, err := k.state.Get(ctx, localstate.KeyPrivateSharingKey)
	if err != nil {
		return nil, nil, err
	}
	pub, err := k.state.Get(ctx, localstate.KeyPublicSharingKey)
	if err != nil {
		return nil, nil, err
	}
	if priv == nil || pub == nil {
		return nil, nil, common.ErrMissingKeys
	}
	old = &keywrap.KeyPair{PublicKey: pub, PrivateKey: priv}

	fresh, err = keywrap.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generating sharing key pair: %w", err)
	}

	if err := k.state.Set(ctx, localstate.KeyPrivateSharingKey, fresh.PrivateKey); err != nil {
		return nil, nil, err
	}
	if err := k.state.Set(ctx, localstate.KeyPublicSharingKey, fresh.PublicKey); err != nil {
		return nil, nil, err
	}
	if err := k.api.RegisterSharingKey(ctx, fresh.PublicKey); err != nil {
		return nil, nil, err
	}

	k.pair = fresh
	return old, fresh, nil
}

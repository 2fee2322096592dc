// Package secrets seals per-backup data encryption keys under the service
// master key. Sealed keys are stored separately from backup metadata so a
// leaked metadata table does not expose usable key material.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const dataKeySize = 32

//nolint:gochecknoglobals // sentinel error
var ErrInvalidMasterKey = errors.New("secrets: master key must be 32 bytes")

// Keybox seals and unseals 256-bit data keys with AES-256-GCM under the
// master key. Each sealed blob is nonce || ciphertext.
type Keybox struct {
	aead cipher.AEAD
}

func NewKeybox(masterKey []byte) (*Keybox, error) {
	if len(masterKey) != dataKeySize {
		return nil, fmt.Errorf("secrets.NewKeybox: %w", ErrInvalidMasterKey)
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewKeybox: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewKeybox: %w", err)
	}

	return &Keybox{aead: aead}, nil
}

// GenerateDataKey returns a fresh random 256-bit key for encrypting one
// backup's artifacts.
func (k *Keybox) GenerateDataKey() ([]byte, error) {
	key := make([]byte, dataKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secrets.Keybox.GenerateDataKey: %w", err)
	}
	return key, nil
}

func (k *Keybox) Seal(dataKey []byte) ([]byte, error) {
	if len(dataKey) != dataKeySize {
		return nil, fmt.Errorf("secrets.Keybox.Seal: data key must be %d bytes", dataKeySize)
	}

	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets.Keybox.Seal: nonce: %w", err)
	}

	return k.aead.Seal(nonce, nonce, dataKey, nil), nil
}

func (k *Keybox) Unseal(sealed []byte) ([]byte, error) {
	if len(sealed) < k.aead.NonceSize() {
		return nil, fmt.Errorf("secrets.Keybox.Unseal: sealed key too short")
	}

	nonce, ciphertext := sealed[:k.aead.NonceSize()], sealed[k.aead.NonceSize():]

	dataKey, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets.Keybox.Unseal: %w", err)
	}

	return dataKey, nil
}

package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyDerivationInfo = "workspace-gateway credential store v1"

// Cipher seals credential records with XChaCha20-Poly1305. The account key is
// bound as additional data so a sealed blob cannot be replayed under another account.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the record key from the master key with HKDF-SHA256.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) < chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be at least %d bytes, got %d", chacha20poly1305.KeySize, len(masterKey))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(keyDerivationInfo)), key); err != nil {
		return nil, apperrors.Wrapf(err, "deriving record key")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperrors.Wrapf(err, "creating aead")
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext.
func (c *Cipher) Seal(account string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperrors.Wrapf(err, "generating nonce")
	}
	return c.aead.Seal(nonce, nonce, plaintext, []byte(account)), nil
}

// Open reverses Seal.
func (c *Cipher) Open(account string, sealed []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, apperrors.ErrDecryptFailed
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(account))
	if err != nil {
		return nil, apperrors.ErrDecryptFailed
	}
	return plaintext, nil
}

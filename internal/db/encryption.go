package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/go-faster/errors"
)

var encryptionKey []byte

// SetEncryptionKey installs the base64-encoded 32-byte token encryption key.
// Must be called at startup before any token is saved or read.
func SetEncryptionKey(raw string) error {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return errors.Wrap(err, "decode CREDENTIAL_ENCRYPTION_KEY")
	}
	if len(key) != 32 {
		return errors.Errorf("CREDENTIAL_ENCRYPTION_KEY must be 32 bytes base64-encoded (got %d bytes)", len(key))
	}
	encryptionKey = key
	return nil
}

const (
	encryptionVersion = "v1"
	currentKeyVersion = 1
)

// encrypt seals plaintext with AES-256-GCM.
// Returns "v1:" + base64(nonce || ciphertext || tag).
func encrypt(plaintext []byte) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return encryptionVersion + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt opens a versioned ciphertext string. Unprefixed input is read as v1.
func decrypt(ciphertext string) ([]byte, error) {
	data := strings.TrimPrefix(ciphertext, encryptionVersion+":")

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode ciphertext")
	}
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
}

func newGCM() (cipher.AEAD, error) {
	if len(encryptionKey) == 0 {
		return nil, errors.New("encryption key not initialised")
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

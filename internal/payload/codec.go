// Package payload encrypts and decrypts message bodies with a key derived
// from the conversation id. The derivation is deterministic: every member
// of a conversation computes the same key from the public id. That is a
// known weakness of the scheme, kept for wire compatibility.
package payload

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

// Placeholder is returned by Decrypt when a payload cannot be recovered.
const Placeholder = "encrypted message — unavailable"

var keySalt = []byte("michatapp.payload.v1")

const keyIterations = 4096

// Codec performs symmetric encrypt/decrypt of message text.
type Codec struct {
	logger *zap.Logger
}

// NewCodec creates a codec. A nil logger disables failure logging.
func NewCodec(logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{logger: logger}
}

// Encrypt returns the base64 AES-GCM ciphertext of plaintext under the
// conversation's derived key. It never fails.
func (c *Codec) Encrypt(plaintext, conversationID string) string {
	gcm := c.aead(conversationID)
	nonce := make([]byte, gcm.NonceSize())
	rand.Read(nonce)
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// Decrypt recovers the plaintext of ciphertext. On any failure (malformed
// input, wrong key, empty result) it returns Placeholder; decryption
// problems are never fatal to message delivery.
func (c *Codec) Decrypt(ciphertext, conversationID string) string {
	plaintext, err := c.open(ciphertext, conversationID)
	if err != nil {
		c.logger.Warn("payload decrypt failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return Placeholder
	}
	return plaintext
}

func (c *Codec) open(ciphertext, conversationID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	gcm := c.aead(conversationID)
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	if len(plaintext) == 0 {
		return "", errors.New("empty plaintext")
	}
	return string(plaintext), nil
}

// aead builds the AES-GCM instance for a conversation. The key material is
// PBKDF2-SHA256 over the conversation id with a fixed salt, so it is
// recomputed on demand and never persisted.
func (c *Codec) aead(conversationID string) cipher.AEAD {
	key := pbkdf2.Key([]byte(conversationID), keySalt, keyIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err) // unreachable: key is always 32 bytes
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return gcm
}

// Package vault implements the realm secrets subsystem: lockers of
// encrypted key/value pairs, sealed with a caller-supplied token that
// Ozwald never persists, and their materialization into short-lived
// runtime artifacts with guaranteed destruction.
package vault

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// ErrTokenMismatch is the only failure signal the vault ever gives for a
// read: wrong token, tampered blob and missing locker are deliberately
// indistinguishable so callers cannot probe which lockers exist.
var ErrTokenMismatch = errors.New("locker token mismatch")

// scrypt cost parameters. Interactive-grade: sealing happens once per
// secret update, opening once per activation attempt.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	saltSize = 16
)

// envelope is the serialized sealed locker. The salt is stored with the
// blob and is not secret; the key cannot be derived without the token.
type envelope struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func deriveKey(token string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(token), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
}

// Seal encrypts a plaintext secret map under the given token. Each seal
// uses a fresh per-locker salt and nonce; losing the token makes the
// blob permanently unrecoverable.
func Seal(plaintext map[string]string, token string) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("locker token must not be empty")
	}

	payload, err := json.Marshal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encode secrets: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(token, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	env := envelope{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, payload, nil),
	}
	return json.Marshal(env)
}

// Open decrypts a sealed locker blob. Any integrity failure, malformed
// envelope included, surfaces as ErrTokenMismatch.
func Open(blob []byte, token string) (map[string]string, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, ErrTokenMismatch
	}

	key, err := deriveKey(token, env.Salt)
	if err != nil {
		return nil, ErrTokenMismatch
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrTokenMismatch
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrTokenMismatch
	}

	payload, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrTokenMismatch
	}

	var plaintext map[string]string
	if err := json.Unmarshal(payload, &plaintext); err != nil {
		return nil, ErrTokenMismatch
	}
	return plaintext, nil
}

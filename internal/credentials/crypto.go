package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// ParseMasterKey decodes a base64 master key into the fixed-size array
// secretbox requires.
func ParseMasterKey(encoded string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", keySize, len(raw))
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

// Seal encrypts material for storage, returning nonce and ciphertext.
func Seal(key *[keySize]byte, m *Material) (nonce, ciphertext []byte, err error) {
	plaintext, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling material: %w", err)
	}

	var n [24]byte
	if _, err := rand.Read(n[:]); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	return n[:], secretbox.Seal(nil, plaintext, &n, key), nil
}

// Open decrypts a stored row back into material.
func Open(key *[keySize]byte, nonce, ciphertext []byte) (*Material, error) {
	if len(nonce) != 24 {
		return nil, fmt.Errorf("nonce must be 24 bytes, got %d", len(nonce))
	}
	var n [24]byte
	copy(n[:], nonce)

	plaintext, ok := secretbox.Open(nil, ciphertext, &n, key)
	if !ok {
		return nil, fmt.Errorf("credential ciphertext failed authentication")
	}

	var m Material
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling material: %w", err)
	}
	return &m, nil
}

// Package secretbox cifra payloads con AES-256-GCM usando una clave explícita.
// El IV lo genera el llamador (NewIV) para poder persistirlo junto a la fila
// que respalda el ciphertext.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// IVSize es el tamaño de nonce GCM recomendado (96 bits).
	IVSize = 12
	// KeySize => AES-256.
	KeySize = 32
)

// ErrOpen se devuelve ante cualquier falla de autenticación/descifrado.
var ErrOpen = errors.New("secretbox: open failed")

// Box es seguro para uso concurrente.
type Box struct {
	aead cipher.AEAD
}

// New construye un Box con una clave de 32 bytes.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("secretbox: clave inválida: %d bytes (requiere %d)", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// ParseKey acepta la clave en base64 (std o raw) o hex de 64 caracteres.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("secretbox: clave vacía; genere una con: openssl rand -base64 32")
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if len(s) == 2*KeySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secretbox: la clave debe decodificar a %d bytes (base64 o hex)", KeySize)
}

// NewIV genera un IV aleatorio.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("iv random: %w", err)
	}
	return iv, nil
}

// Seal cifra plaintext con el IV dado. aad queda autenticado pero no cifrado.
func (b *Box) Seal(iv, plaintext, aad []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("secretbox: iv inválido: %d bytes", len(iv))
	}
	return b.aead.Seal(nil, iv, plaintext, aad), nil
}

// Open descifra y autentica. Cualquier falla devuelve ErrOpen.
func (b *Box) Open(iv, ciphertext, aad []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, ErrOpen
	}
	pt, err := b.aead.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

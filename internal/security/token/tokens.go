// Package tokens genera identificadores y códigos aleatorios con crypto/rand.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateAlphanumeric devuelve n caracteres [A-Za-z0-9] uniformes.
func GenerateAlphanumeric(n int) (string, error) {
	return pick(alphanumeric, n)
}

// GenerateNumericCode devuelve un código de n dígitos (con ceros a la izquierda).
func GenerateNumericCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("tokens: invalid code length %d", n)
	}
	return pick("0123456789", n)
}

func pick(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// IsAlphanumeric reporta si s tiene exactamente n caracteres [A-Za-z0-9].
func IsAlphanumeric(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

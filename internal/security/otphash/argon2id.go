// Package otphash hashea códigos OTP con argon2id. El código se pasa primero
// por HMAC con un pepper de servidor: un dump de la tabla otp no alcanza para
// un ataque de diccionario sobre los 10^6 códigos posibles.
package otphash

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// Default es más liviano que el de passwords: el código vive minutos y el
// verify recorre hasta otpCountLimit hashes por intento.
var Default = Params{Memory: 19 * 1024, Time: 2, Parallelism: 1, KeyLen: 32}

// Hasher hashea y verifica códigos con un pepper fijo.
type Hasher struct {
	params Params
	pepper []byte
}

// New crea un Hasher. pepper no puede estar vacío.
func New(p Params, pepper []byte) (*Hasher, error) {
	if len(pepper) == 0 {
		return nil, fmt.Errorf("otphash: empty pepper")
	}
	if p.KeyLen == 0 {
		p = Default
	}
	return &Hasher{params: p, pepper: append([]byte(nil), pepper...)}, nil
}

func (h *Hasher) keyed(code string) []byte {
	m := hmac.New(sha256.New, h.pepper)
	m.Write([]byte(code))
	return m.Sum(nil)
}

// Hash devuelve un PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func (h *Hasher) Hash(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("otphash: empty code")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := h.params
	dk := argon2.IDKey(h.keyed(code), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// maxMemoryKiB acota lo que un PHC almacenado puede pedir (4 GiB).
const maxMemoryKiB = 4 << 20

// Verify compara en tiempo constante. Un PHC malformado nunca matchea.
func (h *Hasher) Verify(code, phc string) bool {
	var v, m, t, p int
	var saltB64, dkB64 string
	// %s corta en espacios, no en '$': se separan salt y dk a mano.
	n, _ := fmt.Sscanf(phc, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s", &v, &m, &t, &p, &saltB64)
	if n != 5 || v != argon2.Version {
		return false
	}
	// argon2.IDKey entra en pánico con t o p en cero.
	if t < 1 || p < 1 || p > 255 || m < 8*p || m > maxMemoryKiB {
		return false
	}
	for i := 0; i < len(saltB64); i++ {
		if saltB64[i] == '$' {
			saltB64, dkB64 = saltB64[:i], saltB64[i+1:]
			break
		}
	}
	if dkB64 == "" {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	dkStored, err := base64.RawStdEncoding.DecodeString(dkB64)
	if err != nil || len(dkStored) == 0 {
		return false
	}
	key := argon2.IDKey(h.keyed(code), salt, uint32(t), uint32(m), uint8(p), uint32(len(dkStored)))
	return subtle.ConstantTimeCompare(key, dkStored) == 1
}

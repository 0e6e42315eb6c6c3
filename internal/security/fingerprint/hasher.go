// Package fingerprint deriva la identidad pseudónima de un teléfono E.164.
//
//	H0 = HMAC(secret, salt1 ‖ phone ‖ salt2)
//	Hi = HMAC(secret, H(i-1) ‖ salt2)   i impar
//	Hi = HMAC(secret, salt1 ‖ H(i-1))   i par
//
// El resultado es hex de HN. Cada esquema tiene versión; el actual se usa para
// identidades nuevas y los anteriores siguen disponibles para lookups.
package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
)

// Scheme es una versión del algoritmo con su material.
type Scheme struct {
	Version int
	Secret  []byte
	Salt1   []byte
	Salt2   []byte
	Repeat  int
}

func (s Scheme) validate() error {
	if s.Version <= 0 {
		return fmt.Errorf("fingerprint: version must be > 0 (got %d)", s.Version)
	}
	if len(s.Secret) == 0 {
		return fmt.Errorf("fingerprint: v%d: empty secret", s.Version)
	}
	if s.Repeat < 0 {
		return fmt.Errorf("fingerprint: v%d: negative repeat", s.Version)
	}
	return nil
}

// Result es un fingerprint con la versión que lo produjo.
type Result struct {
	Value   string
	Version int
}

// ErrUnknownVersion se devuelve al pedir una versión no configurada.
var ErrUnknownVersion = errors.New("fingerprint: unknown version")

// Hasher es inmutable y seguro para uso concurrente.
type Hasher struct {
	current Scheme
	byVer   map[int]Scheme
}

// New crea un Hasher con el esquema actual y los legacy.
func New(current Scheme, legacy ...Scheme) (*Hasher, error) {
	if err := current.validate(); err != nil {
		return nil, err
	}
	h := &Hasher{current: current, byVer: map[int]Scheme{current.Version: current}}
	for _, s := range legacy {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := h.byVer[s.Version]; dup {
			return nil, fmt.Errorf("fingerprint: duplicated version %d", s.Version)
		}
		h.byVer[s.Version] = s
	}
	return h, nil
}

// CurrentVersion devuelve la versión usada para identidades nuevas.
func (h *Hasher) CurrentVersion() int { return h.current.Version }

// Fingerprint calcula el fingerprint con el esquema actual.
func (h *Hasher) Fingerprint(phoneE164 string) Result {
	return Result{Value: compute(h.current, phoneE164), Version: h.current.Version}
}

// FingerprintVersion calcula el fingerprint con una versión específica.
func (h *Hasher) FingerprintVersion(phoneE164 string, version int) (Result, error) {
	s, ok := h.byVer[version]
	if !ok {
		return Result{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	return Result{Value: compute(s, phoneE164), Version: version}, nil
}

// Candidates devuelve el fingerprint en todas las versiones, la actual primero
// y luego las legacy de más nueva a más vieja.
func (h *Hasher) Candidates(phoneE164 string) []Result {
	out := []Result{h.Fingerprint(phoneE164)}
	vers := make([]int, 0, len(h.byVer))
	for v := range h.byVer {
		if v != h.current.Version {
			vers = append(vers, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(vers)))
	for _, v := range vers {
		out = append(out, Result{Value: compute(h.byVer[v], phoneE164), Version: v})
	}
	return out
}

func compute(s Scheme, phone string) string {
	m := hmac.New(sha256.New, s.Secret)
	m.Write(s.Salt1)
	m.Write([]byte(phone))
	m.Write(s.Salt2)
	sum := m.Sum(nil)

	for i := 1; i <= s.Repeat; i++ {
		m.Reset()
		if i%2 == 1 {
			m.Write(sum)
			m.Write(s.Salt2)
		} else {
			m.Write(s.Salt1)
			m.Write(sum)
		}
		sum = m.Sum(sum[:0])
	}
	return hex.EncodeToString(sum)
}

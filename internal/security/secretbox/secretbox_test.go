package secretbox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func testKey() []byte {
	raw := make([]byte, KeySize)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	b, err := New(testKey())
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	iv, err := NewIV()
	if err != nil {
		t.Fatalf("NewIV err: %v", err)
	}

	msg := []byte(`{"externalId":"abc"}`)
	ct, err := b.Seal(iv, msg, []byte("abc"))
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	pt, err := b.Open(iv, ct, []byte("abc"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if !bytes.Equal(pt, msg) {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	b, _ := New(testKey())
	iv, _ := NewIV()
	ct, _ := b.Seal(iv, []byte("top secret"), nil)

	ct[0] ^= 0x01
	if _, err := b.Open(iv, ct, nil); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen on tamper, got %v", err)
	}
}

func TestOpen_RejectsWrongAAD(t *testing.T) {
	b, _ := New(testKey())
	iv, _ := NewIV()
	ct, _ := b.Seal(iv, []byte("payload"), []byte("session-a"))

	if _, err := b.Open(iv, ct, []byte("session-b")); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen with foreign aad, got %v", err)
	}
}

func TestNew_RejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestParseKey_Formats(t *testing.T) {
	raw := testKey()
	for name, in := range map[string]string{
		"std":    base64.StdEncoding.EncodeToString(raw),
		"rawstd": base64.RawStdEncoding.EncodeToString(raw),
		"hex":    hex.EncodeToString(raw),
	} {
		got, err := ParseKey(in)
		if err != nil {
			t.Fatalf("%s: ParseKey err: %v", name, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("%s: key mismatch", name)
		}
	}
	if _, err := ParseKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

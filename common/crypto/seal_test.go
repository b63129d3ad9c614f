package crypto_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/HrishitaRaj/smriti-ai/common/crypto"
)

func newSealer(t *testing.T, seed byte) *crypto.Sealer {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i) + seed
	}
	s, err := crypto.NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return s
}

func TestSealOpen_Roundtrip(t *testing.T) {
	s := newSealer(t, 0)
	plaintext := []byte(`[{"text":"tea with Meena","timestamp":"2024-02-10T08:30:00Z"}]`)

	sealed, err := s.Seal(plaintext, "smriti_local_memories")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("Meena")) {
		t.Fatal("sealed blob leaks plaintext")
	}

	got, err := s.Open(sealed, "smriti_local_memories")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("recovered %q, want %q", got, plaintext)
	}
}

func TestSeal_NonDeterministic(t *testing.T) {
	s := newSealer(t, 0)
	c1, _ := s.Seal([]byte("same"), "k")
	c2, _ := s.Seal([]byte("same"), "k")
	if bytes.Equal(c1, c2) {
		t.Error("two seals of the same plaintext are identical (nonce not random)")
	}
}

func TestOpen_WrongLabel(t *testing.T) {
	s := newSealer(t, 0)
	sealed, _ := s.Seal([]byte("memory"), "a")
	if _, err := s.Open(sealed, "b"); err == nil {
		t.Error("expected error opening under a different label")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	sealed, _ := newSealer(t, 0).Seal([]byte("memory"), "k")
	if _, err := newSealer(t, 1).Open(sealed, "k"); err == nil {
		t.Error("expected error opening with a different key")
	}
}

func TestOpen_Tampered(t *testing.T) {
	s := newSealer(t, 0)
	sealed, _ := s.Seal([]byte("memory"), "k")
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := s.Open(sealed, "k"); err == nil {
		t.Error("expected error for tampered blob")
	}
}

func TestOpen_TooShort(t *testing.T) {
	s := newSealer(t, 0)
	if _, err := s.Open([]byte{1, 2, 3}, "k"); !errors.Is(err, crypto.ErrCiphertextTooShort) {
		t.Errorf("err = %v, want ErrCiphertextTooShort", err)
	}
}

func TestNewSealer_InvalidKeySize(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		if _, err := crypto.NewSealer(make([]byte, n)); !errors.Is(err, crypto.ErrInvalidKeySize) {
			t.Errorf("key len %d: err = %v, want ErrInvalidKeySize", n, err)
		}
	}
}

func TestParseKey(t *testing.T) {
	valid := strings.Repeat("ab", crypto.KeySize)
	key, err := crypto.ParseKey("  " + valid + "\n")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if len(key) != crypto.KeySize {
		t.Errorf("len = %d", len(key))
	}

	for _, bad := range []string{"", "zz", strings.Repeat("ab", 16)} {
		if _, err := crypto.ParseKey(bad); err == nil {
			t.Errorf("ParseKey(%q): expected error", bad)
		}
	}
}

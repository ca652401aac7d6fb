package testing

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/stash"
)

func TestTestKey(t *testing.T) {
	key := TestKey(t)
	if len(key) != 32 {
		t.Errorf("TestKey() length = %d, want 32", len(key))
	}
}

func TestTestEncryptor(t *testing.T) {
	enc := TestEncryptor(t)
	if enc == nil {
		t.Fatal("TestEncryptor() should not return nil")
	}

	plaintext := []byte("test")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}

	if string(decrypted) != string(plaintext) {
		t.Errorf("round-trip failed")
	}
}

func TestWriteKeyFile(t *testing.T) {
	path := WriteKeyFile(t, stash.EncryptChaCha20)

	enc, err := stash.FileKeyLoader{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if enc.Algorithm() != stash.EncryptChaCha20 {
		t.Errorf("Algorithm() = %s, want %s", enc.Algorithm(), stash.EncryptChaCha20)
	}
}

func TestEnabledContext(t *testing.T) {
	c := EnabledContext(t)
	if c.State() != stash.StateEnabled {
		t.Errorf("State() = %s, want enabled", c.State())
	}
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(Epoch)
	if !c.Now().Equal(Epoch) {
		t.Errorf("Now() = %v, want %v", c.Now(), Epoch)
	}
	c.Advance(time.Minute)
	if want := Epoch.Add(time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", c.Now(), want)
	}
}

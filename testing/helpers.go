// Package testing provides test utilities for stash.
package testing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/stash"
)

// Epoch is the instant FixedClock starts at by default.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// TestKey returns a valid 32-byte key for testing.
func TestKey(tb testing.TB) []byte {
	tb.Helper()
	return []byte("32-byte-key-for-aes-256-encrypt!")
}

// TestEncryptor returns an AES encryptor configured for testing.
func TestEncryptor(tb testing.TB) stash.Encryptor {
	tb.Helper()
	enc, err := stash.AES(TestKey(tb))
	if err != nil {
		tb.Fatalf("AES() error: %v", err)
	}
	return enc
}

// WriteKeyFile writes a key document for algo using TestKey into a temporary
// directory and returns its path. The file is readable by the owner only.
func WriteKeyFile(tb testing.TB, algo stash.EncryptAlgo) string {
	tb.Helper()
	data, err := json.Marshal(stash.KeyDocument{
		Algorithm: algo,
		Key:       base64.StdEncoding.EncodeToString(TestKey(tb)),
	})
	if err != nil {
		tb.Fatalf("marshal key document: %v", err)
	}
	return WriteFile(tb, "key.json", data)
}

// WriteFile writes data to name inside a temporary directory with mode 0600.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
	return path
}

// EnabledContext returns a resolved crypto context holding an AES key.
func EnabledContext(tb testing.TB) *stash.CryptoContext {
	tb.Helper()
	c := stash.NewCryptoContext(stash.Config{
		EnableEncryption:  true,
		EncryptionKeyPath: WriteKeyFile(tb, stash.EncryptAES),
	})
	if err := c.EnsureInitialized(context.Background()); err != nil {
		tb.Fatalf("EnsureInitialized() error: %v", err)
	}
	return c
}

// DisabledContext returns a crypto context with encryption turned off.
func DisabledContext() *stash.CryptoContext {
	return stash.NewCryptoContext(stash.Config{})
}

// FixedClock is a stash.Clock that only moves when told to.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a clock reading t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now implements stash.Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewProcessor returns a processor over crypto reading clock.
func NewProcessor(tb testing.TB, crypto *stash.CryptoContext, clock stash.Clock) *stash.Processor {
	tb.Helper()
	proc, err := stash.NewProcessor(crypto, stash.WithClock(clock))
	if err != nil {
		tb.Fatalf("NewProcessor() error: %v", err)
	}
	return proc
}

package stash

import (
	"context"
	"errors"
	"io/fs"
	"sync"
)

// State is the resolution state of a CryptoContext.
type State int

const (
	// StateUninitialized means the context has not looked at its configuration yet.
	StateUninitialized State = iota

	// StateDisabled means secrets cannot be stored or unmasked.
	StateDisabled

	// StateEnabled means a key is loaded.
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// CryptoContext decides whether encryption is available and holds the key.
//
// A context resolves exactly once, on the first EnsureInitialized call, and
// is immutable afterwards. A missing key file resolves to StateDisabled and is
// not looked for again; an unusable key file is a CryptoInitializationFailure
// that every later call reports without touching the file. Only Reset allows
// the context to resolve again.
//
// CryptoContexts are safe for concurrent use.
type CryptoContext struct {
	cfg    Config
	loader KeyLoader

	mu       sync.RWMutex
	resolved bool
	state    State
	enc      Encryptor
	initErr  error
}

// CryptoOption configures a CryptoContext.
type CryptoOption func(*CryptoContext)

// WithKeyLoader replaces the default FileKeyLoader.
func WithKeyLoader(l KeyLoader) CryptoOption {
	return func(c *CryptoContext) {
		c.loader = l
	}
}

// NewCryptoContext returns an unresolved context for cfg.
func NewCryptoContext(cfg Config, opts ...CryptoOption) *CryptoContext {
	c := &CryptoContext{
		cfg:    cfg,
		loader: FileKeyLoader{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the configuration the context was built with.
func (c *CryptoContext) Config() Config {
	return c.cfg
}

// EnsureInitialized resolves the context on first call and returns the
// initialization error, if any, on every call.
func (c *CryptoContext) EnsureInitialized(ctx context.Context) error {
	// Fast path: already resolved
	c.mu.RLock()
	if c.resolved {
		err := c.initErr
		c.mu.RUnlock()
		return err
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check pattern
	if c.resolved {
		return c.initErr
	}

	c.state, c.enc, c.initErr = c.resolve(ctx)
	c.resolved = true
	return c.initErr
}

// resolve reads the configuration and loads the key. Called with mu held.
func (c *CryptoContext) resolve(ctx context.Context) (State, Encryptor, error) {
	path := c.cfg.EncryptionKeyPath

	if !c.cfg.EnableEncryption {
		emitCryptoDisabled(ctx, false, path, "encryption disabled by configuration")
		return StateDisabled, nil, nil
	}

	if path == "" {
		emitCryptoDisabled(ctx, true, path, "no encryption key path configured")
		return StateDisabled, nil, nil
	}

	enc, err := c.loader.Load(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			emitCryptoDisabled(ctx, true, path, "encryption key file does not exist")
			return StateDisabled, nil, nil
		}
		initErr := newCryptoError(ErrCryptoInitialization, "initialize", "", path, err)
		emitCryptoFailed(ctx, path, initErr)
		return StateUninitialized, nil, initErr
	}

	emitCryptoResolved(ctx, path, enc.Algorithm())
	return StateEnabled, enc, nil
}

// State returns the current resolution state.
// A context whose initialization failed stays StateUninitialized.
func (c *CryptoContext) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Enabled reports whether a key is loaded.
func (c *CryptoContext) Enabled() bool {
	return c.State() == StateEnabled
}

// Encryptor returns the loaded key's cipher, or ErrCryptoKeyNotConfigured.
func (c *CryptoContext) Encryptor() (Encryptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateEnabled || c.enc == nil {
		return nil, ErrCryptoKeyNotConfigured
	}
	return c.enc, nil
}

// Reset returns the context to StateUninitialized so the next
// EnsureInitialized call resolves it again.
func (c *CryptoContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = false
	c.state = StateUninitialized
	c.enc = nil
	c.initErr = nil
}

package stash

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Processor converts between the API representation and the persisted record.
// Use Receive/ToModel for ingress and FromModel/Send for egress.
//
// Processors are safe for concurrent use. The crypto context is shared and
// resolves once, on the first conversion.
type Processor struct {
	crypto    *CryptoContext
	validator *Validator
	clock     Clock
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithClock replaces the system clock used to resolve TTLs.
func WithClock(c Clock) ProcessorOption {
	return func(p *Processor) {
		p.clock = c
	}
}

// NewProcessor creates a Processor bound to crypto.
func NewProcessor(crypto *CryptoContext, opts ...ProcessorOption) (*Processor, error) {
	if crypto == nil {
		return nil, fmt.Errorf("stash: nil crypto context")
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	p := &Processor{
		crypto:    crypto,
		validator: validator,
		clock:     SystemClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Crypto returns the processor's crypto context.
func (p *Processor) Crypto() *CryptoContext {
	return p.crypto
}

// Validator returns the processor's schema validator.
func (p *Processor) Validator() *Validator {
	return p.validator
}

// Now returns the current instant according to the processor's clock.
func (p *Processor) Now() time.Time {
	return p.clock.Now()
}

// Receive decodes data with codec, validates it, applies defaults and binds
// the result. Nothing is encrypted or persisted.
func (p *Processor) Receive(ctx context.Context, codec Codec, data []byte) (*KeyValuePair, error) {
	var doc map[string]any
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, newCodecError(ErrUnmarshal, err)
	}

	if err := p.validator.Validate(ctx, doc); err != nil {
		return nil, err
	}
	p.validator.ApplyDefaults(doc)

	return bindPair(doc)
}

// Send encodes the sparse document of pair with codec.
func (p *Processor) Send(_ context.Context, codec Codec, pair *KeyValuePair) ([]byte, error) {
	if pair == nil {
		return nil, newCodecError(ErrMarshal, fmt.Errorf("nil key-value pair"))
	}
	data, err := codec.Marshal(pair.Document())
	if err != nil {
		return nil, newCodecError(ErrMarshal, err)
	}
	return data, nil
}

// ToModel builds the record to persist for pair.
//
// A TTL is resolved against a single clock sample. Secret values are
// encrypted with the loaded key; without one the write fails with
// ErrCryptoKeyNotConfigured. The input expire_timestamp is not used.
func (p *Processor) ToModel(ctx context.Context, pair *KeyValuePair) (*Record, error) {
	if pair == nil {
		return nil, newValidationError("(root)", "key-value pair is required")
	}
	if pair.TTL != nil {
		if *pair.TTL < 1 {
			return nil, newValidationError(AttrTTL, "must be greater than or equal to 1")
		}
		if *pair.TTL > MaxTTL {
			return nil, newValidationError(AttrTTL, "must be less than or equal to "+strconv.FormatInt(MaxTTL, 10))
		}
	}

	if err := p.crypto.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	name := pair.GetName()
	start := time.Now()
	emitToModelStart(ctx, name, pair.Secret)

	var retErr error
	var expiresAt string
	defer func() {
		emitToModelComplete(ctx, name, expiresAt, time.Since(start), retErr)
	}()

	rec := &Record{
		ID:              uuid.New().String(),
		Name:            name,
		Value:           pair.Value,
		ExpireTimestamp: ResolveExpiry(p.clock.Now(), pair.TTL),
	}
	if pair.Description != nil {
		rec.Description = ptr(*pair.Description)
	}
	if rec.ExpireTimestamp != nil {
		expiresAt = FormatUTC(*rec.ExpireTimestamp)
	}

	if pair.Secret {
		ciphertext, err := p.encrypt(name, pair.Value)
		if err != nil {
			retErr = err
			return nil, retErr
		}
		rec.Value = ciphertext
		rec.Secret = true
	}

	return rec, nil
}

// FromModel builds the API representation of rec.
//
// Secret values stay encrypted under MaskSecrets and are reported with
// encrypted=true. UnmaskSecrets decrypts them, which requires a loaded key.
// The internal identifier is never copied.
func (p *Processor) FromModel(ctx context.Context, rec *Record, mask Mask) (*KeyValuePair, error) {
	if rec == nil {
		return nil, ErrNotFound
	}

	if err := p.crypto.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	emitFromModelStart(ctx, rec.Name, mask)

	var retErr error
	defer func() {
		emitFromModelComplete(ctx, rec.Name, mask, time.Since(start), retErr)
	}()

	pair := &KeyValuePair{
		Value:  rec.Value,
		Secret: rec.Secret,
	}
	if rec.Name != "" {
		pair.Name = ptr(rec.Name)
		pair.UID = ptr(PairUID(rec.Name))
	}
	if rec.Description != nil {
		pair.Description = ptr(*rec.Description)
	}
	if rec.ExpireTimestamp != nil {
		pair.ExpireTimestamp = ptr(FormatUTC(*rec.ExpireTimestamp))
	}

	if rec.Secret {
		if mask.masked() {
			pair.Encrypted = true
			return pair, nil
		}
		plaintext, err := p.decrypt(rec.Name, rec.Value)
		if err != nil {
			retErr = err
			return nil, retErr
		}
		pair.Value = plaintext
	}

	return pair, nil
}

func (p *Processor) encrypt(name, plaintext string) (string, error) {
	keyPath := p.crypto.Config().EncryptionKeyPath

	enc, err := p.crypto.Encryptor()
	if err != nil {
		return "", newCryptoError(ErrCryptoKeyNotConfigured, "encrypt", name, keyPath, nil)
	}

	ciphertext, err := enc.Encrypt([]byte(plaintext))
	if err != nil {
		return "", newCryptoError(ErrCryptoOperation, "encrypt", name, keyPath, err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (p *Processor) decrypt(name, ciphertext string) (string, error) {
	keyPath := p.crypto.Config().EncryptionKeyPath

	enc, err := p.crypto.Encryptor()
	if err != nil {
		return "", newCryptoError(ErrCryptoKeyNotConfigured, "decrypt", name, keyPath, nil)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", newCryptoError(ErrCryptoOperation, "decrypt", name, keyPath, err)
	}

	plaintext, err := enc.Decrypt(raw)
	if err != nil {
		return "", newCryptoError(ErrCryptoOperation, "decrypt", name, keyPath, err)
	}
	return string(plaintext), nil
}

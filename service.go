package stash

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service is the key-value API: decode and validate input, convert it to a
// record, persist it, and render stored records under a Mask.
type Service struct {
	proc  *Processor
	store Store
}

// NewService creates a Service over store.
func NewService(proc *Processor, store Store) *Service {
	return &Service{proc: proc, store: store}
}

// Processor returns the service's processor.
func (s *Service) Processor() *Processor {
	return s.proc
}

// Set decodes data with codec and stores it under name.
// A name in the body must match name. The stored pair is returned masked.
func (s *Service) Set(ctx context.Context, name string, codec Codec, data []byte) (*KeyValuePair, error) {
	pair, err := s.proc.Receive(ctx, codec, data)
	if err != nil {
		return nil, err
	}
	return s.Put(ctx, name, pair)
}

// Put stores an already validated pair under name.
func (s *Service) Put(ctx context.Context, name string, pair *KeyValuePair) (*KeyValuePair, error) {
	if name == "" {
		return nil, newValidationError(AttrName, "name is required")
	}
	if pair == nil {
		return nil, newValidationError("(root)", "key-value pair is required")
	}
	if pair.Name != nil && *pair.Name != name {
		return nil, newValidationError(AttrName, fmt.Sprintf("%q does not match %q", *pair.Name, name))
	}

	in := *pair
	in.Name = ptr(name)

	rec, err := s.proc.ToModel(ctx, &in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("put %q: %w", name, err)
	}
	return s.proc.FromModel(ctx, rec, MaskSecrets)
}

// Get returns the live pair stored under name.
func (s *Service) Get(ctx context.Context, name string, mask Mask) (*KeyValuePair, error) {
	if name == "" {
		return nil, newValidationError(AttrName, "name is required")
	}
	rec, err := s.store.Get(ctx, name, s.proc.Now())
	if err != nil {
		return nil, err
	}
	return s.proc.FromModel(ctx, rec, mask)
}

// List returns every live pair ordered by name.
// One undecryptable record fails the whole listing when unmasking.
func (s *Service) List(ctx context.Context, mask Mask) ([]*KeyValuePair, error) {
	recs, err := s.store.List(ctx, s.proc.Now())
	if err != nil {
		return nil, err
	}
	out := make([]*KeyValuePair, 0, len(recs))
	for _, rec := range recs {
		pair, err := s.proc.FromModel(ctx, rec, mask)
		if err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, nil
}

// Delete removes the pair stored under name.
func (s *Service) Delete(ctx context.Context, name string) error {
	if name == "" {
		return newValidationError(AttrName, "name is required")
	}
	return s.store.Delete(ctx, name)
}

// Sweep removes every record whose expiry has passed and returns how many
// were removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	removed, err := s.store.DeleteExpired(ctx, s.proc.Now())
	emitSweepComplete(ctx, removed, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return removed, nil
}

// IsNotFound reports whether err means the pair does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

package stash

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrSchemaValidation indicates an input representation was rejected by the schema.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrCryptoKeyNotConfigured indicates a secret was written, or explicitly
	// unmasked, while no encryption key is loaded.
	ErrCryptoKeyNotConfigured = errors.New("crypto key not configured")

	// ErrCryptoOperation indicates the cipher itself failed.
	ErrCryptoOperation = errors.New("crypto operation failed")

	// ErrCryptoInitialization indicates the key file exists but could not be used.
	ErrCryptoInitialization = errors.New("crypto initialization failed")

	// ErrNotFound indicates no live record exists for the requested name.
	ErrNotFound = errors.New("key-value pair not found")

	// ErrUnmarshal indicates the codec failed to unmarshal input data.
	ErrUnmarshal = errors.New("unmarshal failed")

	// ErrMarshal indicates the codec failed to marshal output data.
	ErrMarshal = errors.New("marshal failed")

	// ErrInvalidKey indicates an encryption key has invalid size or format.
	ErrInvalidKey = errors.New("invalid key")
)

// FieldError describes one schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every schema violation found in one representation.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return ErrSchemaValidation.Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return fmt.Sprintf("%s: %s", ErrSchemaValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrSchemaValidation
}

// CryptoError represents a crypto configuration or cipher failure.
// It wraps a sentinel error with the operation, pair name and key path involved.
type CryptoError struct {
	Err       error  // Underlying sentinel error (ErrCryptoKeyNotConfigured, etc.)
	Operation string // encrypt, decrypt or initialize
	Name      string // Key-value pair name, if known
	KeyPath   string // Configured key file path, if any
	Cause     error  // Original error from the underlying operation
}

func (e *CryptoError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Operation != "" {
		fmt.Fprintf(&b, " (%s", e.Operation)
		if e.Name != "" {
			fmt.Fprintf(&b, " key %q", e.Name)
		}
		b.WriteString(")")
	}
	if e.KeyPath != "" {
		fmt.Fprintf(&b, ": key path %s", e.KeyPath)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// CodecError represents a marshal/unmarshal error.
type CodecError struct {
	Err   error // Underlying sentinel error (ErrMarshal, ErrUnmarshal)
	Cause error // Original error from the codec
}

func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Err.Error(), e.Cause)
	}
	return e.Err.Error()
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// newCryptoError creates a CryptoError.
func newCryptoError(sentinel error, operation, name, keyPath string, cause error) error {
	return &CryptoError{
		Err:       sentinel,
		Operation: operation,
		Name:      name,
		KeyPath:   keyPath,
		Cause:     cause,
	}
}

// newCodecError creates a CodecError for marshal/unmarshal failures.
func newCodecError(sentinel error, cause error) error {
	return &CodecError{
		Err:   sentinel,
		Cause: cause,
	}
}

// newValidationError creates a ValidationError for a single field.
func newValidationError(field, message string) error {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

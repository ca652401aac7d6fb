package stash

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"slices"
)

// rsaKeyBits is the modulus size used by GenerateKey for RSA keys.
const rsaKeyBits = 2048

// KeyLoader loads key material from a file path.
//
// When the file does not exist, Load must return an error for which
// errors.Is(err, fs.ErrNotExist) holds. Any other error means the file is
// present but unusable.
type KeyLoader interface {
	Load(ctx context.Context, path string) (Encryptor, error)
}

// KeyDocument is the on-disk format for symmetric keys.
//
//	{"algorithm": "aes", "key": "<base64>"}
type KeyDocument struct {
	Algorithm EncryptAlgo `json:"algorithm"`
	Key       string      `json:"key"`
}

// FileKeyLoader reads key documents and PEM encoded RSA private keys.
// An RSA key bounds secret values to RSAMaxPlaintext bytes.
type FileKeyLoader struct{}

// Load implements KeyLoader.
func (FileKeyLoader) Load(ctx context.Context, path string) (Encryptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidKey, path)
	}

	if perm := info.Mode().Perm(); perm&0o004 != 0 {
		emitKeyPermissive(ctx, path, perm.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	return ParseKey(data)
}

// ParseKey builds an Encryptor from key file contents.
func ParseKey(data []byte) (Encryptor, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty key file", ErrInvalidKey)
	}

	if bytes.HasPrefix(data, []byte("-----BEGIN")) {
		return parsePEMKey(data)
	}

	var doc KeyDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: key document: %w", ErrInvalidKey, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after key document", ErrInvalidKey)
	}

	return doc.Encryptor()
}

// Encryptor decodes the key and builds the matching cipher.
func (d KeyDocument) Encryptor() (Encryptor, error) {
	if !IsSymmetric(d.Algorithm) {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidKey, d.Algorithm)
	}

	raw, err := base64.StdEncoding.DecodeString(d.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not base64: %w", ErrInvalidKey, err)
	}
	if !slices.Contains(symmetricKeySizes[d.Algorithm], len(raw)) {
		return nil, fmt.Errorf("%w: %s key of %d bytes", ErrInvalidKey, d.Algorithm, len(raw))
	}

	switch d.Algorithm {
	case EncryptEnvelope:
		return Envelope(raw)
	case EncryptChaCha20:
		return ChaCha20Poly1305(raw)
	default:
		return AES(raw)
	}
}

func parsePEMKey(data []byte) (Encryptor, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: invalid PEM block", ErrInvalidKey)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		return RSA(&priv.PublicKey, priv), nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: PKCS#8 key is %T, want RSA", ErrInvalidKey, key)
		}
		return RSA(&priv.PublicKey, priv), nil
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", ErrInvalidKey, block.Type)
	}
}

// GenerateKey returns the contents of a new key file for algo.
// Symmetric algorithms produce a 32-byte key document; RSA produces a PKCS#1 PEM.
func GenerateKey(algo EncryptAlgo) ([]byte, error) {
	return generateKey(rand.Reader, algo)
}

func generateKey(r io.Reader, algo EncryptAlgo) ([]byte, error) {
	if algo == EncryptRSA {
		priv, err := rsa.GenerateKey(r, rsaKeyBits)
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(priv),
		}), nil
	}

	if !IsSymmetric(algo) {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidKey, algo)
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	out, err := json.MarshalIndent(KeyDocument{
		Algorithm: algo,
		Key:       base64.StdEncoding.EncodeToString(raw),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

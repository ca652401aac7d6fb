package stash

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher errors.
var (
	ErrInvalidKeySize   = errors.New("invalid key size")
	ErrCiphertextShort  = errors.New("ciphertext too short")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrPlaintextTooLong = errors.New("plaintext too long")
)

// Encryptor is the symmetric cipher primitive used for secret values.
// Decrypt(Encrypt(x)) must equal x for the same key.
type Encryptor interface {
	// Algorithm identifies the cipher.
	Algorithm() EncryptAlgo

	// Encrypt encrypts plaintext and returns ciphertext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext and returns plaintext.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// aeadEncryptor implements nonce-prefixed AEAD encryption.
type aeadEncryptor struct {
	algo EncryptAlgo
	aead cipher.AEAD
}

// AES returns an AES-GCM encryptor.
// Key must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256.
func AES(key []byte) (Encryptor, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &aeadEncryptor{algo: EncryptAES, aead: gcm}, nil
}

// ChaCha20Poly1305 returns a ChaCha20-Poly1305 encryptor.
// Key must be 32 bytes.
func ChaCha20Poly1305(key []byte) (Encryptor, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidKeySize, chacha20poly1305.KeySize, len(key))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	return &aeadEncryptor{algo: EncryptChaCha20, aead: aead}, nil
}

func (e *aeadEncryptor) Algorithm() EncryptAlgo {
	return e.algo
}

func (e *aeadEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	return seal(e.aead, plaintext)
}

func (e *aeadEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	return open(e.aead, ciphertext)
}

// newGCM validates an AES key and builds its GCM mode.
func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("%w: must be 16, 24, or 32 bytes, got %d", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}

// seal encrypts plaintext with a fresh random nonce prepended to the output.
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open splits the nonce prefix off ciphertext and decrypts the rest.
func open(aead cipher.AEAD, ciphertext []byte) ([]byte, error) {
	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextShort
	}

	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	return plaintext, nil
}

// rsaEncryptor implements RSA-OAEP encryption.
type rsaEncryptor struct {
	pub  *rsa.PublicKey
	priv *rsa.PrivateKey
}

// RSA returns an RSA-OAEP encryptor.
// pub is required for encryption; priv is required for decryption.
// Either can be nil if only one operation is needed.
//
// OAEP with SHA-256 encrypts at most RSAMaxPlaintext(pub) bytes per value,
// 190 bytes for a 2048-bit key. Longer values fail with ErrPlaintextTooLong;
// use the envelope algorithm for them.
func RSA(pub *rsa.PublicKey, priv *rsa.PrivateKey) Encryptor {
	return &rsaEncryptor{pub: pub, priv: priv}
}

func (e *rsaEncryptor) Algorithm() EncryptAlgo {
	return EncryptRSA
}

func (e *rsaEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if e.pub == nil {
		return nil, errors.New("public key required for encryption")
	}
	if limit := RSAMaxPlaintext(e.pub); len(plaintext) > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d for a %d-bit key", ErrPlaintextTooLong, len(plaintext), limit, e.pub.N.BitLen())
	}

	return rsa.EncryptOAEP(sha256.New(), rand.Reader, e.pub, plaintext, nil)
}

// RSAMaxPlaintext returns the longest plaintext pub can encrypt with OAEP SHA-256.
func RSAMaxPlaintext(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

func (e *rsaEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if e.priv == nil {
		return nil, errors.New("private key required for decryption")
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, e.priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// envelopeEncryptor implements envelope encryption.
// A random data key is generated per operation, encrypted with the master key,
// and prepended to the ciphertext.
type envelopeEncryptor struct {
	master      cipher.AEAD
	dataKeySize int
}

// Envelope returns an envelope encryptor using a master key.
// Master key must be 16, 24, or 32 bytes.
func Envelope(masterKey []byte) (Encryptor, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	return &envelopeEncryptor{
		master:      gcm,
		dataKeySize: 32, // AES-256 data keys
	}, nil
}

func (e *envelopeEncryptor) Algorithm() EncryptAlgo {
	return EncryptEnvelope
}

func (e *envelopeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	dataKey := make([]byte, e.dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, err
	}

	dataGCM, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}

	encryptedData, err := seal(dataGCM, plaintext)
	if err != nil {
		return nil, err
	}

	encryptedKey, err := seal(e.master, dataKey)
	if err != nil {
		return nil, err
	}

	// Format: [2 bytes key len][encrypted key][encrypted data]
	if len(encryptedKey) > 65535 {
		return nil, errors.New("encrypted key exceeds maximum length")
	}
	keyLen := uint16(len(encryptedKey)) // #nosec G115 -- bounds checked above
	result := make([]byte, 2+len(encryptedKey)+len(encryptedData))
	result[0] = byte(keyLen >> 8)
	result[1] = byte(keyLen)
	copy(result[2:], encryptedKey)
	copy(result[2+len(encryptedKey):], encryptedData)

	return result, nil
}

func (e *envelopeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 2 {
		return nil, ErrCiphertextShort
	}

	keyLen := int(uint16(ciphertext[0])<<8 | uint16(ciphertext[1]))
	if len(ciphertext) < 2+keyLen {
		return nil, ErrCiphertextShort
	}

	dataKey, err := open(e.master, ciphertext[2:2+keyLen])
	if err != nil {
		return nil, fmt.Errorf("data key: %w", err)
	}

	dataGCM, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := open(dataGCM, ciphertext[2+keyLen:])
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	return plaintext, nil
}

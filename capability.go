package stash

// EncryptAlgo represents a supported encryption algorithm.
// Use these constants in key documents: {"algorithm": "aes", ...}
type EncryptAlgo string

const (
	// EncryptAES uses AES-GCM symmetric encryption.
	EncryptAES EncryptAlgo = "aes"

	// EncryptRSA uses RSA-OAEP asymmetric encryption.
	// RSA keys are loaded from PEM files rather than key documents.
	EncryptRSA EncryptAlgo = "rsa"

	// EncryptEnvelope uses envelope encryption with per-message data keys.
	EncryptEnvelope EncryptAlgo = "envelope"

	// EncryptChaCha20 uses ChaCha20-Poly1305 symmetric encryption.
	EncryptChaCha20 EncryptAlgo = "chacha20poly1305"
)

// validEncryptAlgos contains all valid encryption algorithms.
var validEncryptAlgos = map[EncryptAlgo]bool{
	EncryptAES:      true,
	EncryptRSA:      true,
	EncryptEnvelope: true,
	EncryptChaCha20: true,
}

// symmetricKeySizes lists the accepted raw key sizes per symmetric algorithm.
var symmetricKeySizes = map[EncryptAlgo][]int{
	EncryptAES:      {16, 24, 32},
	EncryptEnvelope: {16, 24, 32},
	EncryptChaCha20: {32},
}

// IsValidEncryptAlgo returns true if the algorithm is a known encryption algorithm.
func IsValidEncryptAlgo(algo EncryptAlgo) bool {
	return validEncryptAlgos[algo]
}

// IsSymmetric returns true if keys for the algorithm are raw symmetric bytes.
func IsSymmetric(algo EncryptAlgo) bool {
	_, ok := symmetricKeySizes[algo]
	return ok
}

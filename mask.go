package stash

import (
	"strconv"
	"strings"
)

// Mask decides whether secret values leave the store as ciphertext or plaintext.
//
// The zero value is MaskSecrets, so any read path that does not explicitly ask
// for plaintext returns ciphertext.
type Mask int

const (
	// MaskSecrets returns secret values as ciphertext with encrypted=true.
	MaskSecrets Mask = iota

	// UnmaskSecrets decrypts secret values. Requires a loaded key.
	UnmaskSecrets
)

func (m Mask) String() string {
	switch m {
	case MaskSecrets:
		return "masked"
	case UnmaskSecrets:
		return "unmasked"
	default:
		return "mask(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMask maps a request's decrypt flag onto a Mask.
// An empty flag keeps secrets masked.
func ParseMask(decrypt string) (Mask, error) {
	decrypt = strings.TrimSpace(decrypt)
	if decrypt == "" {
		return MaskSecrets, nil
	}

	unmask, err := strconv.ParseBool(decrypt)
	if err != nil {
		return MaskSecrets, newValidationError("decrypt", "must be a boolean, got "+strconv.Quote(decrypt))
	}
	if unmask {
		return UnmaskSecrets, nil
	}
	return MaskSecrets, nil
}

// masked reports whether m keeps ciphertext. Unknown values mask.
func (m Mask) masked() bool {
	return m != UnmaskSecrets
}

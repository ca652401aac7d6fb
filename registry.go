package stash

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownCodec indicates no codec is registered for a format.
var ErrUnknownCodec = errors.New("unknown codec")

var (
	codecs   = make(map[string]Codec)
	codecsMu sync.RWMutex
)

// RegisterCodec makes c available to LookupCodec under its content type.
// Codec packages register themselves when imported.
func RegisterCodec(c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[c.ContentType()] = c
}

// LookupCodec returns the codec for a content type or a short format name
// such as "json", which is read as "application/json".
func LookupCodec(format string) (Codec, error) {
	contentType := strings.ToLower(strings.TrimSpace(format))
	if !strings.Contains(contentType, "/") {
		contentType = "application/" + contentType
	}

	codecsMu.RLock()
	defer codecsMu.RUnlock()
	if c, ok := codecs[contentType]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, format)
}

// Formats returns the short names of the registered codecs, sorted.
func Formats() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	names := make([]string, 0, len(codecs))
	for ct := range codecs {
		names = append(names, strings.TrimPrefix(ct, "application/"))
	}
	sort.Strings(names)
	return names
}

// resetCodecs clears the registry. Used by tests.
func resetCodecs() {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs = make(map[string]Codec)
}

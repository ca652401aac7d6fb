// Package json provides a JSON codec for key-value pair documents.
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/zoobzio/stash"
)

func init() {
	stash.RegisterCodec(New())
}

// jsonCodec implements stash.Codec for JSON.
type jsonCodec struct{}

// New returns a JSON codec.
func New() stash.Codec {
	return &jsonCodec{}
}

// ContentType returns the MIME type for JSON.
func (c *jsonCodec) ContentType() string {
	return "application/json"
}

// Marshal encodes v as JSON.
func (c *jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes a single JSON value into v.
// Numbers are kept as json.Number so integer attributes keep their precision.
func (c *jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("json: trailing data after document")
	}
	return nil
}

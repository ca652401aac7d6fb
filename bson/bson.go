// Package bson provides a BSON codec for key-value pair documents.
package bson

import (
	"fmt"

	"github.com/zoobzio/stash"
	"go.mongodb.org/mongo-driver/bson"
)

func init() {
	stash.RegisterCodec(New())
}

// bsonCodec implements stash.Codec for BSON.
type bsonCodec struct{}

// New returns a BSON codec.
func New() stash.Codec {
	return &bsonCodec{}
}

// ContentType returns the MIME type for BSON.
func (c *bsonCodec) ContentType() string {
	return "application/bson"
}

// Marshal encodes v as a BSON document.
// A nil value has no document form and is rejected.
func (c *bsonCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("bson: cannot marshal nil document")
	}
	return bson.Marshal(v)
}

// Unmarshal decodes a BSON document into v.
func (c *bsonCodec) Unmarshal(data []byte, v any) error {
	if err := bson.Raw(data).Validate(); err != nil {
		return err
	}
	return bson.Unmarshal(data, v)
}

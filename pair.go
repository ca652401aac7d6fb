package stash

import (
	"encoding/json"
	"time"
)

// Attribute names of the API representation.
const (
	AttrID              = "id"
	AttrUID             = "uid"
	AttrName            = "name"
	AttrDescription     = "description"
	AttrValue           = "value"
	AttrSecret          = "secret"
	AttrEncrypted       = "encrypted"
	AttrExpireTimestamp = "expire_timestamp"
	AttrTTL             = "ttl"
)

// UIDPrefix prefixes the uid of every key-value pair.
const UIDPrefix = "key_value_pair:"

// PairUID returns the uid of the pair named name.
func PairUID(name string) string {
	return UIDPrefix + name
}

// KeyValuePair is the API representation of a key-value entry.
//
// Optional attributes are pointers so that absence can be told apart from a
// zero value. The uid is derived from the name on output; an input uid is
// accepted but not stored. The schema tag declares the attribute name, JSON type and
// constraints checked by the Validator.
type KeyValuePair struct {
	ID              *string `json:"id,omitempty" schema:"id,string"`
	UID             *string `json:"uid,omitempty" schema:"uid,string"`
	Name            *string `json:"name,omitempty" schema:"name,string"`
	Description     *string `json:"description,omitempty" schema:"description,string"`
	Value           string  `json:"value" schema:"value,string,required"`
	Secret          bool    `json:"secret" schema:"secret,boolean,default=false"`
	Encrypted       bool    `json:"encrypted" schema:"encrypted,boolean,default=false"`
	ExpireTimestamp *string `json:"expire_timestamp,omitempty" schema:"expire_timestamp,string,pattern=iso8601"`

	// TTL is write-only: it is resolved into an expiry by ToModel and never emitted.
	TTL *int64 `json:"ttl,omitempty" schema:"ttl,integer,minimum=1,maximum=9223372036"`
}

// Document renders the sparse attribute map for output.
// Absent attributes are omitted; id and ttl are never emitted.
func (p *KeyValuePair) Document() map[string]any {
	doc := map[string]any{
		AttrValue:     p.Value,
		AttrSecret:    p.Secret,
		AttrEncrypted: p.Encrypted,
	}
	if p.UID != nil {
		doc[AttrUID] = *p.UID
	}
	if p.Name != nil {
		doc[AttrName] = *p.Name
	}
	if p.Description != nil {
		doc[AttrDescription] = *p.Description
	}
	if p.ExpireTimestamp != nil {
		doc[AttrExpireTimestamp] = *p.ExpireTimestamp
	}
	return doc
}

// GetName returns the name or an empty string.
func (p *KeyValuePair) GetName() string {
	if p == nil || p.Name == nil {
		return ""
	}
	return *p.Name
}

// bindPair converts a validated attribute map into a KeyValuePair.
func bindPair(doc map[string]any) (*KeyValuePair, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, newCodecError(ErrUnmarshal, err)
	}
	var pair KeyValuePair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, newCodecError(ErrUnmarshal, err)
	}
	return &pair, nil
}

// Record is the persisted form of a key-value entry.
//
// When Secret is true, Value holds base64 ciphertext produced by the loaded
// key; otherwise it holds the caller's plaintext unchanged.
type Record struct {
	ID              string     // Internal identifier, never emitted
	Name            string     // Unique key
	Description     *string    // Optional text
	Value           string     // Plaintext or base64 ciphertext
	Secret          bool       // True iff Value is ciphertext
	ExpireTimestamp *time.Time // Absolute UTC expiry, if any
}

// Expired reports whether the record's expiry is at or before now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpireTimestamp != nil && !r.ExpireTimestamp.After(now)
}

// Clone returns a copy that shares no pointers with r.
func (r *Record) Clone() *Record {
	c := *r
	if r.Description != nil {
		d := *r.Description
		c.Description = &d
	}
	if r.ExpireTimestamp != nil {
		t := *r.ExpireTimestamp
		c.ExpireTimestamp = &t
	}
	return &c
}

func ptr[T any](v T) *T {
	return &v
}

// Package stash stores key-value pairs whose values may be secrets.
//
// A pair crosses two boundaries. Ingress turns an API representation into a
// persisted record; egress turns a record back into a representation under a
// Mask that decides whether secrets leave as ciphertext or plaintext.
//
// # Boundaries
//
//   - Receive: decode with a Codec, validate against the schema, apply defaults
//   - ToModel: resolve the TTL and encrypt secret values
//   - FromModel: render a record, decrypting secrets only when unmasked
//   - Send: encode the sparse representation with a Codec
//
// # Schema
//
// Permitted attributes are declared on KeyValuePair with schema tags:
//
//	Value string `json:"value" schema:"value,string,required"`
//	TTL   *int64 `json:"ttl,omitempty" schema:"ttl,integer,minimum=1,maximum=9223372036"`
//
// Any attribute not declared is rejected.
//
// # Encryption
//
// A CryptoContext resolves once, on first use:
//
//	crypto := stash.NewCryptoContext(stash.Config{
//	    EnableEncryption:  true,
//	    EncryptionKeyPath: "/etc/stash/key.json",
//	})
//	proc, _ := stash.NewProcessor(crypto)
//
// A missing key file disables secrets. A present but unusable key file is a
// CryptoInitializationFailure reported by every later conversion.
//
// Key files are either a JSON key document or a PEM encoded RSA private key:
//
//	{"algorithm": "aes", "key": "<base64 32 bytes>"}
//
// Supported algorithms:
//
//   - aes - AES-GCM
//   - chacha20poly1305 - ChaCha20-Poly1305
//   - envelope - AES-GCM with a per-message data key
//   - rsa - RSA-OAEP (PEM only)
//
// # Codec Providers
//
// The following codecs register themselves when imported:
//
//   - json - JSON encoding (application/json)
//   - yaml - YAML encoding (application/yaml)
//   - msgpack - MessagePack encoding (application/msgpack)
//   - bson - BSON encoding (application/bson)
//
// # Storage
//
// A Service ties a Processor to a Store. MemoryStore ships with the package;
// the sqlite subpackage provides a persistent Store.
package stash

// Codec provides content-type aware marshaling.
type Codec interface {
	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Marshal encodes v into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error
}

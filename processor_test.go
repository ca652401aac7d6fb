package stash

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// testCodec is a simple JSON codec for testing without importing stash/json.
type testCodec struct{}

func (c *testCodec) ContentType() string { return "application/json" }

func (c *testCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *testCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// writeKey writes a 32-byte key document for algo and returns its path.
func writeKey(t *testing.T, algo EncryptAlgo) string {
	t.Helper()
	data, err := json.Marshal(KeyDocument{
		Algorithm: algo,
		Key:       base64.StdEncoding.EncodeToString(testKey),
	})
	if err != nil {
		t.Fatalf("marshal key document: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func enabledCrypto(t *testing.T) *CryptoContext {
	t.Helper()
	return NewCryptoContext(Config{EnableEncryption: true, EncryptionKeyPath: writeKey(t, EncryptAES)})
}

func newTestProcessor(t *testing.T, crypto *CryptoContext) (*Processor, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: testEpoch}
	proc, err := NewProcessor(crypto, WithClock(clock))
	if err != nil {
		t.Fatalf("NewProcessor() error: %v", err)
	}
	return proc, clock
}

func TestNewProcessor(t *testing.T) {
	proc, err := NewProcessor(NewCryptoContext(Config{}))
	if err != nil {
		t.Fatalf("NewProcessor() error: %v", err)
	}
	if proc.Validator() == nil {
		t.Error("Validator() should not be nil")
	}
	if proc.Crypto().State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", proc.Crypto().State())
	}
}

func TestNewProcessor_NilCrypto(t *testing.T) {
	if _, err := NewProcessor(nil); err == nil {
		t.Error("NewProcessor(nil) should fail")
	}
}

func TestProcessor_Receive(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	pair, err := proc.Receive(context.Background(), &testCodec{}, []byte(`{"value":"v1","ttl":60,"description":"d"}`))
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if pair.Value != "v1" || pair.Secret || pair.Encrypted {
		t.Errorf("pair = %+v", pair)
	}
	if pair.TTL == nil || *pair.TTL != 60 {
		t.Errorf("TTL = %v, want 60", pair.TTL)
	}
	if pair.Description == nil || *pair.Description != "d" {
		t.Errorf("Description = %v, want d", pair.Description)
	}
	if pair.Name != nil {
		t.Errorf("Name = %q, want nil", *pair.Name)
	}
}

func TestProcessor_Receive_Errors(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"malformed", `{"value":`, ErrUnmarshal},
		{"missing value", `{"secret":true}`, ErrSchemaValidation},
		{"unknown attribute", `{"value":"v","owner":"me"}`, ErrSchemaValidation},
		{"wrong type", `{"value":"v","secret":"yes"}`, ErrSchemaValidation},
		{"zero ttl", `{"value":"v","ttl":0}`, ErrSchemaValidation},
		{"fractional ttl", `{"value":"v","ttl":1.5}`, ErrSchemaValidation},
		{"ttl above max", `{"value":"v","ttl":9223372037}`, ErrSchemaValidation},
		{"ttl beyond int64", `{"value":"v","ttl":99999999999999999999}`, ErrSchemaValidation},
		{"bad expiry", `{"value":"v","expire_timestamp":"tomorrow"}`, ErrSchemaValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := proc.Receive(context.Background(), &testCodec{}, []byte(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("Receive() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProcessor_Receive_DoesNotResolveCrypto(t *testing.T) {
	crypto := enabledCrypto(t)
	proc, _ := newTestProcessor(t, crypto)

	if _, err := proc.Receive(context.Background(), &testCodec{}, []byte(`{"value":"v","secret":true}`)); err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if crypto.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", crypto.State())
	}
}

func TestProcessor_ToModel_Plain(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	pair := &KeyValuePair{Name: ptr("k1"), Value: "v1", Description: ptr("d")}
	rec, err := proc.ToModel(context.Background(), pair)
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	if rec.ID == "" {
		t.Error("ID should be assigned")
	}
	if rec.Name != "k1" || rec.Value != "v1" || rec.Secret {
		t.Errorf("record = %+v", rec)
	}
	if rec.ExpireTimestamp != nil {
		t.Errorf("ExpireTimestamp = %v, want nil", rec.ExpireTimestamp)
	}

	*pair.Description = "changed"
	if *rec.Description != "d" {
		t.Error("record shares description with the input pair")
	}
}

func TestProcessor_ToModel_ResolvesTTL(t *testing.T) {
	proc, clock := newTestProcessor(t, NewCryptoContext(Config{}))
	clock.Advance(500 * time.Millisecond)

	ttl := int64(60)
	rec, err := proc.ToModel(context.Background(), &KeyValuePair{Name: ptr("k1"), Value: "v1", TTL: &ttl})
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	want := testEpoch.Add(60*time.Second + 500*time.Millisecond)
	if rec.ExpireTimestamp == nil || !rec.ExpireTimestamp.Equal(want) {
		t.Errorf("ExpireTimestamp = %v, want %v", rec.ExpireTimestamp, want)
	}
}

func TestProcessor_ToModel_IgnoresInputExpiry(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	rec, err := proc.ToModel(context.Background(), &KeyValuePair{
		Name:            ptr("k1"),
		Value:           "v1",
		ExpireTimestamp: ptr("2030-01-01T00:00:00Z"),
	})
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	if rec.ExpireTimestamp != nil {
		t.Errorf("ExpireTimestamp = %v, want nil", rec.ExpireTimestamp)
	}
}

func TestProcessor_ToModel_RejectsBadTTL(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	for _, ttl := range []int64{0, -5, MaxTTL + 1, 10_000_000_000} {
		_, err := proc.ToModel(context.Background(), &KeyValuePair{Value: "v", TTL: &ttl})
		if !errors.Is(err, ErrSchemaValidation) {
			t.Errorf("ToModel(ttl=%d) error = %v, want ErrSchemaValidation", ttl, err)
		}
	}
	if _, err := proc.ToModel(context.Background(), nil); !errors.Is(err, ErrSchemaValidation) {
		t.Errorf("ToModel(nil) error = %v, want ErrSchemaValidation", err)
	}
}

func TestProcessor_ToModel_MaxTTL(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	ttl := MaxTTL
	rec, err := proc.ToModel(context.Background(), &KeyValuePair{Name: ptr("k1"), Value: "v", TTL: &ttl})
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	if rec.Expired(testEpoch) {
		t.Errorf("record with ttl %d expired at write: %v", ttl, rec.ExpireTimestamp)
	}
}

func TestProcessor_ToModel_EncryptsSecret(t *testing.T) {
	proc, _ := newTestProcessor(t, enabledCrypto(t))
	ctx := context.Background()

	rec, err := proc.ToModel(ctx, &KeyValuePair{Name: ptr("k1"), Value: "s3cr3t", Secret: true})
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	if !rec.Secret {
		t.Error("Secret should be true")
	}
	if rec.Value == "s3cr3t" {
		t.Error("secret value stored as plaintext")
	}
	if _, err := base64.StdEncoding.DecodeString(rec.Value); err != nil {
		t.Errorf("ciphertext is not base64: %v", err)
	}

	// Two writes of the same value produce different ciphertext.
	again, err := proc.ToModel(ctx, &KeyValuePair{Name: ptr("k1"), Value: "s3cr3t", Secret: true})
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	if again.Value == rec.Value {
		t.Error("ciphertext should differ between writes")
	}
}

func TestProcessor_ToModel_SecretWithoutKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{EncryptionKeyPath: writeKey(t, EncryptAES)}},
		{"no path", Config{EnableEncryption: true}},
		{"missing file", Config{EnableEncryption: true, EncryptionKeyPath: filepath.Join(t.TempDir(), "missing.json")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, _ := newTestProcessor(t, NewCryptoContext(tt.cfg))
			_, err := proc.ToModel(context.Background(), &KeyValuePair{Name: ptr("k1"), Value: "s3cr3t", Secret: true})
			if !errors.Is(err, ErrCryptoKeyNotConfigured) {
				t.Fatalf("ToModel() error = %v, want ErrCryptoKeyNotConfigured", err)
			}
			var cerr *CryptoError
			if !errors.As(err, &cerr) || cerr.Operation != "encrypt" || cerr.Name != "k1" {
				t.Errorf("CryptoError = %+v", cerr)
			}
			if proc.Crypto().State() != StateDisabled {
				t.Errorf("State() = %s, want disabled", proc.Crypto().State())
			}
		})
	}
}

func TestProcessor_ToModel_InitializationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{EnableEncryption: true, EncryptionKeyPath: path}))

	// Non-secret writes fail as well: the context cannot resolve.
	_, err := proc.ToModel(context.Background(), &KeyValuePair{Name: ptr("k1"), Value: "plain"})
	if !errors.Is(err, ErrCryptoInitialization) {
		t.Errorf("ToModel() error = %v, want ErrCryptoInitialization", err)
	}
}

func TestProcessor_ToModel_RSAPlaintextLimit(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.pem")
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{EnableEncryption: true, EncryptionKeyPath: path}))
	ctx := context.Background()

	if _, err := proc.ToModel(ctx, &KeyValuePair{Name: ptr("short"), Value: string(make([]byte, 190)), Secret: true}); err != nil {
		t.Fatalf("ToModel(190 bytes) error: %v", err)
	}

	_, err = proc.ToModel(ctx, &KeyValuePair{Name: ptr("long"), Value: string(make([]byte, 300)), Secret: true})
	if !errors.Is(err, ErrCryptoOperation) {
		t.Fatalf("ToModel(300 bytes) error = %v, want ErrCryptoOperation", err)
	}
	var cerr *CryptoError
	if !errors.As(err, &cerr) || !errors.Is(cerr.Cause, ErrPlaintextTooLong) {
		t.Errorf("cause = %v, want ErrPlaintextTooLong", err)
	}
}

func TestProcessor_FromModel_Plain(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	expiry := testEpoch.Add(time.Minute)
	rec := &Record{ID: "internal", Name: "k1", Value: "v1", Description: ptr("d"), ExpireTimestamp: &expiry}

	for _, mask := range []Mask{MaskSecrets, UnmaskSecrets} {
		pair, err := proc.FromModel(context.Background(), rec, mask)
		if err != nil {
			t.Fatalf("FromModel(%s) error: %v", mask, err)
		}
		if pair.ID != nil {
			t.Error("ID must not be copied")
		}
		if pair.UID == nil || *pair.UID != "key_value_pair:k1" {
			t.Errorf("UID = %v, want key_value_pair:k1", pair.UID)
		}
		if pair.Value != "v1" || pair.Encrypted || pair.GetName() != "k1" {
			t.Errorf("FromModel(%s) = %+v", mask, pair)
		}
		if pair.ExpireTimestamp == nil || *pair.ExpireTimestamp != "2024-01-01T00:01:00Z" {
			t.Errorf("ExpireTimestamp = %v", pair.ExpireTimestamp)
		}
	}
}

func TestProcessor_UIDFollowsName(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))
	ctx := context.Background()

	pair, err := proc.Receive(ctx, &testCodec{}, []byte(`{"name":"k1","uid":"key_value_pair:other","value":"v"}`))
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	rec, err := proc.ToModel(ctx, pair)
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	out, err := proc.FromModel(ctx, rec, MaskSecrets)
	if err != nil {
		t.Fatalf("FromModel() error: %v", err)
	}
	if out.UID == nil || *out.UID != PairUID("k1") {
		t.Errorf("UID = %v, want %s", out.UID, PairUID("k1"))
	}

	unnamed, err := proc.FromModel(ctx, &Record{Value: "v"}, MaskSecrets)
	if err != nil {
		t.Fatalf("FromModel() error: %v", err)
	}
	if unnamed.UID != nil {
		t.Errorf("UID = %q, want nil without a name", *unnamed.UID)
	}
}

func TestProcessor_FromModel_Secret(t *testing.T) {
	proc, _ := newTestProcessor(t, enabledCrypto(t))
	ctx := context.Background()

	rec, err := proc.ToModel(ctx, &KeyValuePair{Name: ptr("k1"), Value: "s3cr3t", Secret: true})
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}

	masked, err := proc.FromModel(ctx, rec, MaskSecrets)
	if err != nil {
		t.Fatalf("FromModel(masked) error: %v", err)
	}
	if masked.Value != rec.Value || !masked.Encrypted || !masked.Secret {
		t.Errorf("masked = %+v", masked)
	}

	unmasked, err := proc.FromModel(ctx, rec, UnmaskSecrets)
	if err != nil {
		t.Fatalf("FromModel(unmasked) error: %v", err)
	}
	if unmasked.Value != "s3cr3t" || unmasked.Encrypted || !unmasked.Secret {
		t.Errorf("unmasked = %+v", unmasked)
	}

	// Unknown mask values keep secrets masked.
	other, err := proc.FromModel(ctx, rec, Mask(7))
	if err != nil {
		t.Fatalf("FromModel(7) error: %v", err)
	}
	if !other.Encrypted {
		t.Error("unknown mask should keep secrets encrypted")
	}
}

func TestProcessor_FromModel_SecretWithoutKey(t *testing.T) {
	writer, _ := newTestProcessor(t, enabledCrypto(t))
	ctx := context.Background()
	rec, err := writer.ToModel(ctx, &KeyValuePair{Name: ptr("k1"), Value: "s3cr3t", Secret: true})
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}

	reader, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	masked, err := reader.FromModel(ctx, rec, MaskSecrets)
	if err != nil {
		t.Fatalf("FromModel(masked) error: %v", err)
	}
	if !masked.Encrypted || masked.Value != rec.Value {
		t.Errorf("masked = %+v", masked)
	}

	if _, err := reader.FromModel(ctx, rec, UnmaskSecrets); !errors.Is(err, ErrCryptoKeyNotConfigured) {
		t.Errorf("FromModel(unmasked) error = %v, want ErrCryptoKeyNotConfigured", err)
	}
}

func TestProcessor_FromModel_CorruptCiphertext(t *testing.T) {
	proc, _ := newTestProcessor(t, enabledCrypto(t))

	tests := []struct {
		name  string
		value string
	}{
		{"not base64", "%%%"},
		{"tampered", base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{Name: "k1", Value: tt.value, Secret: true}
			_, err := proc.FromModel(context.Background(), rec, UnmaskSecrets)
			if !errors.Is(err, ErrCryptoOperation) {
				t.Errorf("FromModel() error = %v, want ErrCryptoOperation", err)
			}
		})
	}
}

func TestProcessor_FromModel_Nil(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))
	if _, err := proc.FromModel(context.Background(), nil, MaskSecrets); !errors.Is(err, ErrNotFound) {
		t.Errorf("FromModel(nil) error = %v, want ErrNotFound", err)
	}
}

func TestProcessor_Send(t *testing.T) {
	proc, _ := newTestProcessor(t, NewCryptoContext(Config{}))

	data, err := proc.Send(context.Background(), &testCodec{}, &KeyValuePair{ID: ptr("x"), Value: "v", TTL: ptr(int64(5))})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	want := map[string]any{"value": "v", "secret": false, "encrypted": false}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("Send() = %v, want %v", doc, want)
	}

	if _, err := proc.Send(context.Background(), &testCodec{}, nil); !errors.Is(err, ErrMarshal) {
		t.Errorf("Send(nil) error = %v, want ErrMarshal", err)
	}
}

// End to end: a secret with a 60 second TTL written at the epoch.
func TestProcessor_RoundTrip(t *testing.T) {
	proc, _ := newTestProcessor(t, enabledCrypto(t))
	ctx := context.Background()
	codec := &testCodec{}

	pair, err := proc.Receive(ctx, codec, []byte(`{"value":"s3cr3t","secret":true,"ttl":60}`))
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	rec, err := proc.ToModel(ctx, pair)
	if err != nil {
		t.Fatalf("ToModel() error: %v", err)
	}
	out, err := proc.FromModel(ctx, rec, UnmaskSecrets)
	if err != nil {
		t.Fatalf("FromModel() error: %v", err)
	}
	data, err := proc.Send(ctx, codec, out)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	want := map[string]any{
		"value":            "s3cr3t",
		"secret":           true,
		"encrypted":        false,
		"expire_timestamp": "2024-01-01T00:01:00Z",
	}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("round trip = %v, want %v", doc, want)
	}
}

func TestProcessor_ConcurrentFirstUse(t *testing.T) {
	proc, _ := newTestProcessor(t, enabledCrypto(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := proc.ToModel(ctx, &KeyValuePair{Name: ptr("k"), Value: "s", Secret: true})
			if err != nil {
				errs <- err
				return
			}
			if _, err := proc.FromModel(ctx, rec, UnmaskSecrets); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent conversion error: %v", err)
	}
}

package stash

// Config holds the key-value store crypto settings.
// It is read once at process startup and handed to NewCryptoContext.
type Config struct {
	// EnableEncryption allows secret values to be stored.
	EnableEncryption bool `mapstructure:"enable_encryption" yaml:"enable_encryption"`

	// EncryptionKeyPath points at the key file loaded on first use.
	EncryptionKeyPath string `mapstructure:"encryption_key_path" yaml:"encryption_key_path"`
}

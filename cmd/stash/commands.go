package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/stash"
	_ "github.com/zoobzio/stash/bson"
	"github.com/zoobzio/stash/json"
	_ "github.com/zoobzio/stash/msgpack"
	"github.com/zoobzio/stash/sqlite"
	_ "github.com/zoobzio/stash/yaml"
)

// app holds the state shared by every command of one root command instance.
type app struct {
	v       *viper.Viper
	cfgFile string

	settings *settings
	logger   *slog.Logger
	store    *sqlite.Store
	svc      *stash.Service
	observer *capitan.Observer
}

// newRootCmd creates the root command. Each call returns an independent
// command tree with its own configuration, so tests can run commands in
// isolation.
func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	setDefaults(a.v)

	cmd := &cobra.Command{
		Use:   "stash",
		Short: "stash is a key-value store with encrypted secrets.",
		Long: `stash keeps named values in a SQLite database.

Values written with --secret are encrypted with the configured key and are
returned as ciphertext unless --decrypt is given. Values written with --ttl
expire after the given number of seconds.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.close,
	}
	cmd.Version = version

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./stash.yaml or $XDG_CONFIG_HOME/stash/stash.yaml)")
	cmd.PersistentFlags().String("db", "./stash.db", "SQLite database path or DSN")
	cmd.PersistentFlags().String("log-level", "info", `log level ("debug", "info", "warn", "error")`)
	cmd.PersistentFlags().Bool("enable-encryption", false, "allow secret values")
	cmd.PersistentFlags().String("key-path", "", "encryption key file")

	_ = a.v.BindPFlag("database.dsn", cmd.PersistentFlags().Lookup("db"))
	_ = a.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("keyvalue.enable_encryption", cmd.PersistentFlags().Lookup("enable-encryption"))
	_ = a.v.BindPFlag("keyvalue.encryption_key_path", cmd.PersistentFlags().Lookup("key-path"))

	cmd.AddCommand(
		a.newSetCmd(),
		a.newGetCmd(),
		a.newListCmd(),
		a.newDeleteCmd(),
		a.newSweepCmd(),
		a.newKeygenCmd(),
	)
	return cmd
}

// configure loads settings and the logger.
func (a *app) configure(cmd *cobra.Command) error {
	s, err := loadSettings(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = newLogger(cmd.ErrOrStderr(), s.Log.Level, s.Log.Format)
	return nil
}

// open resolves the crypto context and opens the store. The crypto context
// is resolved here, once, before any command touches a record. Crypto and
// transform events reach the logger through an observer.
func (a *app) open(cmd *cobra.Command, _ []string) (err error) {
	if err := a.configure(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()
	a.observer = observeEvents(a.logger)
	defer func() {
		if err != nil {
			_ = a.close(cmd, nil)
		}
	}()

	crypto := stash.NewCryptoContext(a.settings.KeyValue)
	if err := crypto.EnsureInitialized(ctx); err != nil {
		return err
	}

	proc, err := stash.NewProcessor(crypto)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(ctx, a.settings.Database.DSN)
	if err != nil {
		return err
	}
	a.store = store
	a.svc = stash.NewService(proc, store)
	a.logger.Debug("database opened", "dsn", a.settings.Database.DSN)
	return nil
}

// close flushes pending events to the logger and closes the store.
func (a *app) close(cmd *cobra.Command, _ []string) error {
	var errs []error
	if a.observer != nil {
		errs = append(errs, a.observer.Drain(cmd.Context()))
		a.observer.Close()
		a.observer = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

// runE wraps a command body. Cobra skips post-run hooks when RunE fails, so
// the app is closed here on error.
func (a *app) runE(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			_ = a.close(cmd, args)
			return err
		}
		return nil
	}
}

func (a *app) newSetCmd() *cobra.Command {
	var (
		secret      bool
		ttl         int64
		description string
		file        string
		format      string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Store a value under NAME",
		Long: `Store a value under NAME, replacing any existing value.

The value is taken from the VALUE argument, or read as a full document from
--file in the format given by --format.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := cmd.Context()

			codec, data, err := setInput(cmd, args, file, format, secret, ttl, description)
			if err != nil {
				return err
			}

			pair, err := a.svc.Set(ctx, name, codec, data)
			if err != nil {
				return err
			}
			a.logger.Info("stored key-value pair", "name", name, "secret", pair.Secret)
			return a.write(ctx, cmd.OutOrStdout(), output, pair)
		}),
	}

	cmd.Flags().BoolVar(&secret, "secret", false, "encrypt the value")
	cmd.Flags().Int64Var(&ttl, "ttl", 0, "expire the value after this many seconds")
	cmd.Flags().StringVar(&description, "description", "", "description of the value")
	cmd.Flags().StringVarP(&file, "file", "f", "", `read the document from a file ("-" for stdin)`)
	cmd.Flags().StringVar(&format, "format", "json", "format of --file")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format")
	return cmd
}

// setInput builds the encoded document for a set command.
func setInput(cmd *cobra.Command, args []string, file, format string, secret bool, ttl int64, description string) (stash.Codec, []byte, error) {
	if file != "" {
		if len(args) > 1 {
			return nil, nil, fmt.Errorf("VALUE and --file are mutually exclusive")
		}
		codec, err := stash.LookupCodec(format)
		if err != nil {
			return nil, nil, err
		}
		var data []byte
		if file == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		return codec, data, nil
	}

	if len(args) < 2 {
		return nil, nil, fmt.Errorf("VALUE is required without --file")
	}

	doc := map[string]any{
		stash.AttrValue:  args[1],
		stash.AttrSecret: secret,
	}
	if cmd.Flags().Changed("ttl") {
		doc[stash.AttrTTL] = ttl
	}
	if cmd.Flags().Changed("description") {
		doc[stash.AttrDescription] = description
	}

	codec := json.New()
	data, err := codec.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	return codec, data, nil
}

// addDecryptFlag registers --decrypt. A bare --decrypt means true.
func addDecryptFlag(cmd *cobra.Command, decrypt *string) {
	cmd.Flags().StringVar(decrypt, "decrypt", "", "return secret values as plaintext")
	cmd.Flags().Lookup("decrypt").NoOptDefVal = "true"
}

func (a *app) newGetCmd() *cobra.Command {
	var decrypt, output string

	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print the value stored under NAME",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			mask, err := stash.ParseMask(decrypt)
			if err != nil {
				return err
			}
			pair, err := a.svc.Get(cmd.Context(), args[0], mask)
			if err != nil {
				return err
			}
			return a.write(cmd.Context(), cmd.OutOrStdout(), output, pair)
		}),
	}
	addDecryptFlag(cmd, &decrypt)
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format")
	return cmd
}

func (a *app) newListCmd() *cobra.Command {
	var decrypt, output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every live key-value pair",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			mask, err := stash.ParseMask(decrypt)
			if err != nil {
				return err
			}
			pairs, err := a.svc.List(cmd.Context(), mask)
			if err != nil {
				return err
			}
			for _, pair := range pairs {
				if err := a.write(cmd.Context(), cmd.OutOrStdout(), output, pair); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	addDecryptFlag(cmd, &decrypt)
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format")
	return cmd
}

func (a *app) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove the value stored under NAME",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if err := a.svc.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.logger.Info("deleted key-value pair", "name", args[0])
			return nil
		}),
	}
}

func (a *app) newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired key-value pairs",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			n, err := a.svc.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("swept expired key-value pairs", "removed", n)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", n)
			return nil
		}),
	}
}

func (a *app) newKeygenCmd() *cobra.Command {
	var (
		algorithm string
		out       string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encryption key file",
		Args:  cobra.NoArgs,
		// keygen needs neither the database nor an existing key.
		PersistentPreRunE:  func(cmd *cobra.Command, _ []string) error { return a.configure(cmd) },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			algo := stash.EncryptAlgo(strings.ToLower(algorithm))
			if !stash.IsValidEncryptAlgo(algo) {
				return fmt.Errorf("%w: unsupported algorithm %q", stash.ErrInvalidKey, algorithm)
			}

			data, err := stash.GenerateKey(algo)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(out, flags, 0o600)
			if err != nil {
				return fmt.Errorf("failed to create key file: %w", err)
			}
			if _, err := f.Write(data); err != nil {
				_ = f.Close()
				return fmt.Errorf("failed to write key file: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.logger.Info("generated key file", "path", out, "algorithm", string(algo))
			return nil
		}),
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", string(stash.EncryptAES), "key algorithm (aes, envelope, chacha20poly1305, rsa)")
	cmd.Flags().StringVar(&out, "out", "", "write the key to this file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

// write encodes pair in the output format. Text formats end with a newline.
func (a *app) write(ctx context.Context, w io.Writer, output string, pair *stash.KeyValuePair) error {
	codec, err := stash.LookupCodec(output)
	if err != nil {
		return err
	}
	data, err := a.svc.Processor().Send(ctx, codec, pair)
	if err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' && isText(codec) {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}

func isText(c stash.Codec) bool {
	switch c.ContentType() {
	case "application/json", "application/yaml":
		return true
	default:
		return false
	}
}

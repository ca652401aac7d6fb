package stash

import (
	"context"
	"strconv"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for store events.
var (
	SignalCryptoResolved    = capitan.NewSignal("stash.crypto.resolved", "Crypto context resolved with a loaded key")
	SignalCryptoDisabled    = capitan.NewSignal("stash.crypto.disabled", "Crypto context resolved without a key")
	SignalCryptoFailed      = capitan.NewSignal("stash.crypto.failed", "Crypto context could not load its key file")
	SignalKeyPermissive     = capitan.NewSignal("stash.crypto.key.permissive", "Key file is readable by other users")
	SignalToModelStart      = capitan.NewSignal("stash.tomodel.start", "Representation to record transform beginning")
	SignalToModelComplete   = capitan.NewSignal("stash.tomodel.complete", "Representation to record transform finished")
	SignalFromModelStart    = capitan.NewSignal("stash.frommodel.start", "Record to representation transform beginning")
	SignalFromModelComplete = capitan.NewSignal("stash.frommodel.complete", "Record to representation transform finished")
	SignalValidationFailed  = capitan.NewSignal("stash.validation.failed", "Representation rejected by schema")
	SignalSweepComplete     = capitan.NewSignal("stash.sweep.complete", "Expired records removed")
)

// Keys for typed event data.
var (
	KeyName       = capitan.NewStringKey("name")
	KeyState      = capitan.NewStringKey("state")
	KeyKeyPath    = capitan.NewStringKey("key_path")
	KeyAlgorithm  = capitan.NewStringKey("algorithm")
	KeyReason     = capitan.NewStringKey("reason")
	KeyMask       = capitan.NewStringKey("mask")
	KeySecret     = capitan.NewStringKey("secret")
	KeyExpiresAt  = capitan.NewStringKey("expires_at")
	KeyDuration   = capitan.NewDurationKey("duration")
	KeyError      = capitan.NewErrorKey("error")
	KeyErrorCount = capitan.NewIntKey("error_count")
	KeyCount      = capitan.NewIntKey("count")
)

// emitCryptoResolved emits an event when a key was loaded.
func emitCryptoResolved(ctx context.Context, keyPath string, algo EncryptAlgo) {
	capitan.Info(ctx, SignalCryptoResolved,
		KeyState.Field(StateEnabled.String()),
		KeyKeyPath.Field(keyPath),
		KeyAlgorithm.Field(string(algo)),
	)
}

// emitCryptoDisabled emits an event when the context resolved without a key.
// It is a warning when encryption was requested.
func emitCryptoDisabled(ctx context.Context, requested bool, keyPath, reason string) {
	emit := capitan.Info
	if requested {
		emit = capitan.Warn
	}
	emit(ctx, SignalCryptoDisabled,
		KeyState.Field(StateDisabled.String()),
		KeyKeyPath.Field(keyPath),
		KeyReason.Field(reason),
	)
}

// emitCryptoFailed emits an error event when the key file is unusable.
func emitCryptoFailed(ctx context.Context, keyPath string, err error) {
	capitan.Error(ctx, SignalCryptoFailed,
		KeyKeyPath.Field(keyPath),
		KeyError.Field(err),
	)
}

// emitKeyPermissive emits an event for a world-readable key file.
func emitKeyPermissive(ctx context.Context, keyPath, perm string) {
	capitan.Warn(ctx, SignalKeyPermissive,
		KeyKeyPath.Field(keyPath),
		KeyReason.Field("permissions "+perm),
	)
}

// emitToModelStart emits an event when a write transform begins.
func emitToModelStart(ctx context.Context, name string, secret bool) {
	capitan.Debug(ctx, SignalToModelStart,
		KeyName.Field(name),
		KeySecret.Field(strconv.FormatBool(secret)),
	)
}

// emitToModelComplete emits an event when a write transform finishes.
func emitToModelComplete(ctx context.Context, name string, expiresAt string, duration time.Duration, err error) {
	fields := []capitan.Field{
		KeyName.Field(name),
		KeyExpiresAt.Field(expiresAt),
		KeyDuration.Field(duration),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalToModelComplete, fields...)
	} else {
		capitan.Debug(ctx, SignalToModelComplete, fields...)
	}
}

// emitFromModelStart emits an event when a read transform begins.
func emitFromModelStart(ctx context.Context, name string, mask Mask) {
	capitan.Debug(ctx, SignalFromModelStart,
		KeyName.Field(name),
		KeyMask.Field(mask.String()),
	)
}

// emitFromModelComplete emits an event when a read transform finishes.
func emitFromModelComplete(ctx context.Context, name string, mask Mask, duration time.Duration, err error) {
	fields := []capitan.Field{
		KeyName.Field(name),
		KeyMask.Field(mask.String()),
		KeyDuration.Field(duration),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalFromModelComplete, fields...)
	} else {
		capitan.Debug(ctx, SignalFromModelComplete, fields...)
	}
}

// emitValidationFailed emits an event when the schema rejects input.
func emitValidationFailed(ctx context.Context, count int, err error) {
	capitan.Error(ctx, SignalValidationFailed,
		KeyErrorCount.Field(count),
		KeyError.Field(err),
	)
}

// emitSweepComplete emits an event after expired records were removed.
func emitSweepComplete(ctx context.Context, removed int, duration time.Duration, err error) {
	fields := []capitan.Field{
		KeyCount.Field(removed),
		KeyDuration.Field(duration),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalSweepComplete, fields...)
	} else {
		capitan.Info(ctx, SignalSweepComplete, fields...)
	}
}

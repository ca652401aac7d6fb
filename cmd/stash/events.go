package main

import (
	"context"
	"log/slog"
	"sort"

	"github.com/zoobzio/capitan"
)

// observeEvents forwards every stash event to logger at the level matching
// its severity. The caller closes the returned observer.
func observeEvents(logger *slog.Logger) *capitan.Observer {
	return capitan.Observe(func(ctx context.Context, e *capitan.Event) {
		level := eventLevel(e.Severity())
		if !logger.Enabled(ctx, level) {
			return
		}
		logger.LogAttrs(ctx, level, e.Signal().Description(), eventAttrs(e)...)
	})
}

func eventLevel(s capitan.Severity) slog.Level {
	switch s {
	case capitan.SeverityDebug:
		return slog.LevelDebug
	case capitan.SeverityWarn:
		return slog.LevelWarn
	case capitan.SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// eventAttrs returns the signal name followed by the event fields sorted by key.
func eventAttrs(e *capitan.Event) []slog.Attr {
	fields := e.Fields()
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Key().Name() < fields[j].Key().Name()
	})
	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("signal", e.Signal().Name()))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key().Name(), f.Value()))
	}
	return attrs
}

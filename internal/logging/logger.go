// Package logging is the project's structured-logging seam: a small
// context-aware interface with an slog-backed implementation behind it.
package logging

import "context"

// Logger is what the rest of the code logs through. The variadic args are
// slog-style key-value pairs:
//
//	log.Info(ctx, "server started", "addr", addr)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)

	// Warn records unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that stamps every record with the given
	// key-value pairs.
	With(args ...any) Logger
}

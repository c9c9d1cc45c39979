package logging

import "github.com/arloliu/slotpool/types"

// NopLogger implements types.Logger and discards all output.
//
// Used as the default when no logger is configured, eliminating nil checks
// throughout the codebase.
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop creates a new no-op logger.
//
// Returns:
//   - *NopLogger: A logger that discards all messages
func NewNop() *NopLogger {
	return &NopLogger{}
}

// Debug discards the message.
func (l *NopLogger) Debug(_ string, _ ...any) {}

// Info discards the message.
func (l *NopLogger) Info(_ string, _ ...any) {}

// Warn discards the message.
func (l *NopLogger) Warn(_ string, _ ...any) {}

// Error discards the message.
func (l *NopLogger) Error(_ string, _ ...any) {}

// Fatal discards the message and does not exit; the no-op logger is meant
// for tests and default wiring where terminating the process is never wanted.
func (l *NopLogger) Fatal(_ string, _ ...any) {}

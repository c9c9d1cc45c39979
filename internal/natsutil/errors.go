// Package natsutil provides NATS error classification helpers.
//
// Kept separate from types/ so that package stays free of NATS imports.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/slotpool/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This covers NATS timeouts, refused or closed connections and missing
// stream responses. The transport treats these as transient: the publish
// scheduler retries, and replicas keep serving their last applied
// snapshot in the meantime.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if the error indicates a connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// Package core defines the transport-facing contracts shared by the hub,
// the adapters and the client.
package core

import (
	"time"

	"github.com/mkoval/parley/internal/domain"
)

// Frame is a raw wire payload.
type Frame []byte

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// ClientSession binds one identity to one live transport connection.
// This is what the registry stores and the hub fans out to.
type ClientSession interface {
	Identity() domain.UserID
	Signal() SignalConnection
	CreatedAt() time.Time
}

package transport

import "errors"

var (
	// ErrPortClosed is returned by Exchange after Close.
	ErrPortClosed = errors.New("transport: port closed")
	// ErrPortBroken is returned by a WebSocket port after a failed read left
	// the connection unusable.
	ErrPortBroken = errors.New("transport: connection broken")
	// ErrUnknownKind is returned by Open for an unsupported transport kind.
	ErrUnknownKind = errors.New("transport: unknown transport kind")
)

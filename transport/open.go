package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/arloliu/go-fujibus/network"
)

// Port is a network.Port owning a physical medium.
type Port interface {
	network.Port
	io.Closer
	// Name returns the device path, address or URL of the medium.
	Name() string
	Metrics() *PortMetrics
}

var (
	_ Port = (*StreamPort)(nil)
	_ Port = (*WebSocketPort)(nil)
)

// Kind selects a transport medium.
type Kind string

const (
	KindSerial    Kind = "serial"
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "websocket"
)

// ParseKind parses a transport kind, case-insensitively. "ws" is accepted
// for websocket.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial":
		return KindSerial, nil
	case "tcp":
		return KindTCP, nil
	case "websocket", "ws":
		return KindWebSocket, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Open opens the medium of the given kind. target is a serial device path,
// a TCP host:port or a WebSocket URL.
func Open(ctx context.Context, kind Kind, target string, cfg *PortConfig) (Port, error) {
	var (
		port Port
		err  error
	)

	switch kind {
	case KindSerial:
		port, err = OpenSerial(target, cfg)
	case KindTCP:
		port, err = DialTCP(ctx, target, cfg)
	case KindWebSocket:
		port, err = DialWebSocket(ctx, target, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err != nil {
		return nil, err
	}

	return port, nil
}

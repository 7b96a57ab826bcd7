package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/logger"
	"github.com/arloliu/go-fujibus/slip"
)

// WebSocketPort exchanges SLIP frames with a device bridge over WebSocket,
// one complete frame per binary message.
//
// A read that times out leaves a gorilla connection unusable, so the port
// is marked broken after the first read failure and every later Exchange
// fails with ErrPortBroken. Only write timeouts are retried.
type WebSocketPort struct {
	cfg     *PortConfig
	logger  logger.Logger
	metrics PortMetrics
	url     string

	mu     sync.Mutex
	conn   *websocket.Conn
	broken bool
	closed atomic.Bool
}

// DialWebSocket connects to the WebSocket bridge at url (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string, cfg *PortConfig) (*WebSocketPort, error) {
	if cfg == nil {
		cfg = defaultPortConfig()
	}

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: cfg.timeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}

	p := NewWebSocketPort(conn, cfg)
	p.url = url
	p.logger.Info("connected", "url", url)

	return p, nil
}

// NewWebSocketPort wraps an established WebSocket connection. A nil cfg
// selects the defaults.
func NewWebSocketPort(conn *websocket.Conn, cfg *PortConfig) *WebSocketPort {
	if cfg == nil {
		cfg = defaultPortConfig()
	}

	return &WebSocketPort{
		cfg:    cfg,
		logger: cfg.logger.With("component", "websocket-port", "remote", conn.RemoteAddr().String()),
		url:    conn.RemoteAddr().String(),
		conn:   conn,
	}
}

// Name returns the URL or remote address of the port.
func (p *WebSocketPort) Name() string {
	return p.url
}

// Metrics returns the port metrics.
func (p *WebSocketPort) Metrics() *PortMetrics {
	return &p.metrics
}

// Exchange sends frame as one binary message and copies the next binary
// message into resp.
func (p *WebSocketPort) Exchange(ctx context.Context, frame []byte, resp []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return runExchange(ctx, p.cfg, &p.metrics, p.logger, func() (int, error) {
		return p.attempt(ctx, frame, resp)
	})
}

// Close sends a close message and closes the connection.
func (p *WebSocketPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.cfg.writeTimeout))

	return p.conn.Close()
}

func (p *WebSocketPort) attempt(ctx context.Context, frame []byte, resp []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrPortClosed
	}
	if p.broken {
		return 0, fmt.Errorf("%w: %w", fujibus.StatusIO, ErrPortBroken)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	_ = p.conn.SetWriteDeadline(time.Now().Add(p.cfg.writeTimeout))
	if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return 0, p.linkError(err)
	}
	p.metrics.incFrameSendCount()

	deadline := time.Now().Add(p.cfg.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = p.conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = p.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	limit := min(len(resp), p.cfg.maxFrameSize)
	for {
		mt, r, err := p.conn.NextReader()
		if err != nil {
			p.broken = true
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}

			return 0, fmt.Errorf("%w: %w", p.linkError(err), ErrPortBroken)
		}

		if mt != websocket.BinaryMessage {
			p.logger.Debug("ignoring non-binary message", "type", mt)
			continue
		}

		return readMessage(r, resp[:limit])
	}
}

// readMessage copies one whole message into dst.
func readMessage(r io.Reader, dst []byte) (int, error) {
	n, err := io.ReadFull(r, dst)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %w", fujibus.StatusIO, err)
	}

	var probe [1]byte
	if _, err := io.ReadFull(r, probe[:]); err == nil {
		_, _ = io.Copy(io.Discard, r)
		return 0, fmt.Errorf("%w: %w", fujibus.StatusIO, slip.ErrFrameTooLarge)
	}

	return n, nil
}

func (p *WebSocketPort) linkError(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", fujibus.StatusTimeout, err)
	}

	return fmt.Errorf("%w: %w", fujibus.StatusIO, err)
}

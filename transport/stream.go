package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/internal/pool"
	"github.com/arloliu/go-fujibus/logger"
	"github.com/arloliu/go-fujibus/slip"
)

// StreamPort exchanges SLIP frames over a byte stream: a serial line or a
// TCP connection to a device or bridge.
//
// Each Exchange writes the request, waits for the line to drain, discards
// pending input (serial adapters often echo), pauses for the settle delay and
// then reads until one complete frame arrives or the timeout expires. Requests
// that time out are re-sent up to the configured retry limit.
//
// StreamPort is safe for concurrent use; exchanges are serialized.
type StreamPort struct {
	cfg     *PortConfig
	logger  logger.Logger
	metrics PortMetrics
	name    string

	mu     sync.Mutex
	link   link
	reader *slip.Reader
	// dirty is set after an abandoned read; a late reply may still arrive.
	dirty  bool
	closed atomic.Bool
}

// NewStreamPort creates a port over an established connection. A nil cfg
// selects the defaults.
func NewStreamPort(conn net.Conn, cfg *PortConfig) *StreamPort {
	return newStreamPort(connLink{Conn: conn}, cfg, conn.RemoteAddr().String())
}

// DialTCP connects to a device or serial bridge listening at addr.
func DialTCP(ctx context.Context, addr string, cfg *PortConfig) (*StreamPort, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	p := NewStreamPort(conn, cfg)
	p.logger.Info("connected", "addr", addr)

	return p, nil
}

// OpenSerial opens the serial device at path in raw 8N1 mode at the
// configured baud rate.
func OpenSerial(path string, cfg *PortConfig) (*StreamPort, error) {
	if cfg == nil {
		cfg = defaultPortConfig()
	}

	mode := &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}

	// drop whatever the device sent before we were listening
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("transport: flush %s: %w", path, err)
	}

	p := newStreamPort(newSerialLink(port, cfg.pollInterval), cfg, path)
	p.logger.Info("serial port opened", "path", path, "baud", cfg.baudRate)

	return p, nil
}

// ListSerialPorts returns the serial devices present on the system.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

func newStreamPort(l link, cfg *PortConfig, name string) *StreamPort {
	if cfg == nil {
		cfg = defaultPortConfig()
	}

	return &StreamPort{
		cfg:    cfg,
		logger: cfg.logger.With("component", "stream-port", "port", name),
		name:   name,
		link:   l,
		reader: slip.NewReader(l),
	}
}

// Name returns the device path or remote address of the port.
func (p *StreamPort) Name() string {
	return p.name
}

// Metrics returns the port metrics.
func (p *StreamPort) Metrics() *PortMetrics {
	return &p.metrics
}

// Exchange sends frame and reads one complete SLIP frame into resp.
func (p *StreamPort) Exchange(ctx context.Context, frame []byte, resp []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return runExchange(ctx, p.cfg, &p.metrics, p.logger, func() (int, error) {
		return p.attempt(ctx, frame, resp)
	})
}

// Close closes the underlying connection. A pending Exchange fails.
func (p *StreamPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	return p.link.Close()
}

func (p *StreamPort) attempt(ctx context.Context, frame []byte, resp []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrPortClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if p.dirty {
		p.discardStale()
	}
	p.reader.Reset(p.link)

	_ = p.link.SetWriteDeadline(time.Now().Add(p.cfg.writeTimeout))
	if _, err := p.link.Write(frame); err != nil {
		return 0, p.linkError(err)
	}
	p.metrics.incFrameSendCount()

	if err := p.link.drain(); err != nil {
		return 0, p.linkError(err)
	}
	if err := p.link.resetInput(); err != nil {
		return 0, p.linkError(err)
	}

	if err := pool.Sleep(ctx, p.cfg.settleDelay); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(p.cfg.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = p.link.SetReadDeadline(deadline)
	defer func() { _ = p.link.SetReadDeadline(time.Time{}) }()

	stop := context.AfterFunc(ctx, func() {
		_ = p.link.SetReadDeadline(time.Now())
	})
	defer stop()

	limit := min(len(resp), p.cfg.maxFrameSize)
	n, err := p.reader.ReadFrame(resp[:limit])
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.dirty = true
			return 0, ctxErr
		}

		return 0, p.linkError(err)
	}

	return n, nil
}

// discardStale drops a reply that arrived after its request was abandoned.
func (p *StreamPort) discardStale() {
	p.dirty = false

	_ = p.link.SetReadDeadline(time.Now().Add(p.cfg.pollInterval))
	defer func() { _ = p.link.SetReadDeadline(time.Time{}) }()

	var buf [256]byte
	discarded := p.reader.Buffered()
	for {
		n, err := p.link.Read(buf[:])
		discarded += n
		if err != nil {
			break
		}
	}

	if discarded > 0 {
		p.logger.Debug("discarded stale input", "bytes", discarded)
	}
}

func (p *StreamPort) linkError(err error) error {
	if isTimeout(err) {
		p.dirty = true
		return fmt.Errorf("%w: %w", fujibus.StatusTimeout, err)
	}

	return fmt.Errorf("%w: %w", fujibus.StatusIO, err)
}

func defaultPortConfig() *PortConfig {
	cfg, _ := NewPortConfig() // defaults always validate

	return cfg
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// runExchange runs attempt, re-running it after timeouts up to the retry limit.
func runExchange(ctx context.Context, cfg *PortConfig, m *PortMetrics, l logger.Logger, attempt func() (int, error)) (int, error) {
	var err error
	for i := 0; i <= cfg.retryLimit; i++ {
		if i > 0 {
			m.incRetryCount()
			l.Debug("re-sending request", "attempt", i+1, "limit", cfg.retryLimit+1)
		}

		var n int
		n, err = attempt()
		if err == nil {
			m.incFrameRecvCount()
			return n, nil
		}

		if !errors.Is(err, fujibus.StatusTimeout) {
			break
		}
		m.incTimeoutCount()
		if ctx.Err() != nil || errors.Is(err, ErrPortBroken) {
			break
		}
	}

	if !errors.Is(err, fujibus.StatusTimeout) {
		m.incErrCount()
	}
	l.Debug("exchange failed", "error", err)

	return 0, err
}

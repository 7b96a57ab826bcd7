package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/internal/task"
	"github.com/arloliu/go-fujibus/logger"
)

// backend is the protocol-specific half of a session.
type backend interface {
	write(ctx context.Context, offset uint32, data []byte) (int, error)
	read(ctx context.Context, offset uint32, dst []byte) (int, fujibus.ReadFlags, error)
	info() (flags fujibus.InfoFlags, httpStatus uint16, contentLength uint64)
	close() error
}

type session struct {
	mu       sync.Mutex
	handle   fujibus.Handle
	url      string
	backend  backend
	lastUsed atomic.Int64
}

func (s *session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Device emulates the network device of a FujiNet: it answers Open, Read,
// Write, Info and Close requests by running HTTP requests and TCP
// connections on the host.
//
// A Device is safe for concurrent use. Requests on different handles run in
// parallel; requests on the same handle are serialized.
type Device struct {
	cfg     *config
	logger  logger.Logger
	metrics Metrics

	sessions   *xsync.MapOf[fujibus.Handle, *session]
	active     atomic.Int32
	nextHandle atomic.Uint32

	tasks *task.Manager
}

// New creates a Device.
func New(opts ...Option) (*Device, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:      cfg,
		logger:   cfg.logger.With("component", "fujibus-device"),
		sessions: xsync.NewMapOf[fujibus.Handle, *session](),
	}
	d.tasks = task.NewManager(context.Background(), d.logger)

	if cfg.idleTimeout > 0 {
		interval := max(cfg.idleTimeout/4, 10*time.Millisecond)
		if _, err := d.tasks.StartInterval("session-reaper", d.reapIdle, interval, false); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Metrics returns the device metrics.
func (d *Device) Metrics() *Metrics {
	return &d.metrics
}

// SessionCount returns the number of open sessions.
func (d *Device) SessionCount() int {
	return int(d.active.Load())
}

// Close closes every open session and stops background work.
func (d *Device) Close() error {
	d.tasks.Stop()
	d.tasks.Wait()

	d.sessions.Range(func(h fujibus.Handle, _ *session) bool {
		d.release(h)
		return true
	})

	return nil
}

// HandlePacket answers one request packet (not SLIP framed) and writes the
// response packet into resp, returning its length. Zero means no response:
// the request was too short to tell which device it addressed. resp should
// hold fujibus.MaxPacketSize bytes.
func (d *Device) HandlePacket(req []byte, resp []byte) int {
	return d.handle(context.Background(), req, resp)
}

func (d *Device) handle(ctx context.Context, pkt []byte, resp []byte) int {
	d.metrics.incRequestCount()

	req, err := fujibus.ParseRequest(pkt)
	if err != nil {
		if len(pkt) < 2 {
			d.logger.Debug("dropping runt packet", "len", len(pkt))
			return 0
		}
		d.logger.Debug("rejecting malformed request", "len", len(pkt), "error", err)

		return d.respond(resp, fujibus.DeviceID(pkt[0]), fujibus.Command(pkt[1]), fujibus.StatusOf(err), nil)
	}

	if req.Device != fujibus.DeviceNetwork {
		return d.respond(resp, req.Device, req.Command, fujibus.StatusUnsupported, nil)
	}

	var buf [fujibus.MaxPacketSize]byte
	status, payload := d.dispatch(ctx, req, buf[:0])

	d.logger.Debug("request handled", "cmd", req.Command, "status", status, "payload_len", len(payload))

	return d.respond(resp, req.Device, req.Command, status, payload)
}

func (d *Device) respond(resp []byte, dev fujibus.DeviceID, cmd fujibus.Command, status fujibus.Status, payload []byte) int {
	if status != fujibus.StatusOK {
		d.metrics.incStatusErrCount()
		payload = nil
	}

	n, err := fujibus.BuildResponse(resp, dev, cmd, status, payload)
	if err != nil {
		d.logger.Error("failed to build response", "cmd", cmd, "error", err)
		return 0
	}

	return n
}

func (d *Device) dispatch(ctx context.Context, req fujibus.Request, b []byte) (fujibus.Status, []byte) {
	switch req.Command {
	case fujibus.CmdOpen:
		return d.open(ctx, req.Payload, b)
	case fujibus.CmdRead:
		return d.read(ctx, req.Payload, b)
	case fujibus.CmdWrite:
		return d.write(ctx, req.Payload, b)
	case fujibus.CmdInfo:
		return d.info(req.Payload, b)
	case fujibus.CmdClose:
		return d.close(req.Payload)
	default:
		return fujibus.StatusUnsupported, nil
	}
}

func (d *Device) open(ctx context.Context, payload []byte, b []byte) (fujibus.Status, []byte) {
	r, err := fujibus.DecodeOpenRequest(payload)
	if err != nil {
		return fujibus.StatusOf(err), nil
	}

	if !d.reserve() {
		d.logger.Warn("no free handles", "max", d.cfg.maxHandles)
		return fujibus.StatusNoHandles, nil
	}

	var (
		be        backend
		needsBody bool
	)
	if isTCPURL(r.URL) {
		be, err = d.openTCP(ctx, r)
	} else {
		var hs *httpSession
		hs, err = d.openHTTP(ctx, r)
		if err == nil {
			be, needsBody = hs, hs.needsBody
		}
	}
	if err != nil {
		d.unreserve()
		d.logger.Debug("open failed", "url", r.URL, "error", err)

		return fujibus.StatusOf(err), nil
	}

	s := &session{url: r.URL, backend: be}
	s.touch()
	h := d.register(s)
	d.metrics.incOpenCount()
	d.logger.Info("session opened", "handle", h, "method", r.Method, "url", r.URL)

	flags := fujibus.OpenAccepted
	if needsBody {
		flags |= fujibus.OpenNeedsBody
	}

	return fujibus.StatusOK, fujibus.AppendOpenPayload(b, flags, h)
}

func (d *Device) read(ctx context.Context, payload []byte, b []byte) (fujibus.Status, []byte) {
	r, err := fujibus.DecodeReadRequest(payload)
	if err != nil {
		return fujibus.StatusOf(err), nil
	}

	s, ok := d.sessions.Load(r.Handle)
	if !ok {
		return fujibus.StatusNotFound, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	var data [fujibus.MaxChunkSize]byte
	limit := min(int(r.MaxBytes), len(data))

	n, flags, err := s.backend.read(ctx, r.Offset, data[:limit])
	if err != nil {
		return fujibus.StatusOf(err), nil
	}

	return fujibus.StatusOK, fujibus.AppendReadPayload(b, flags, r.Handle, r.Offset, data[:n])
}

func (d *Device) write(ctx context.Context, payload []byte, b []byte) (fujibus.Status, []byte) {
	r, err := fujibus.DecodeWriteRequest(payload)
	if err != nil {
		return fujibus.StatusOf(err), nil
	}

	s, ok := d.sessions.Load(r.Handle)
	if !ok {
		return fujibus.StatusNotFound, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	n, err := s.backend.write(ctx, r.Offset, r.Data)
	if err != nil {
		return fujibus.StatusOf(err), nil
	}

	return fujibus.StatusOK, fujibus.AppendWritePayload(b, r.Handle, r.Offset, uint16(n)) //nolint:gosec // bounded by MaxPacketSize
}

func (d *Device) info(payload []byte, b []byte) (fujibus.Status, []byte) {
	r, err := fujibus.DecodeHandleRequest(payload)
	if err != nil {
		return fujibus.StatusOf(err), nil
	}

	s, ok := d.sessions.Load(r.Handle)
	if !ok {
		return fujibus.StatusNotFound, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	flags, httpStatus, contentLength := s.backend.info()

	return fujibus.StatusOK, fujibus.AppendInfoPayload(b, flags, r.Handle, httpStatus, contentLength)
}

func (d *Device) close(payload []byte) (fujibus.Status, []byte) {
	r, err := fujibus.DecodeHandleRequest(payload)
	if err != nil {
		return fujibus.StatusOf(err), nil
	}

	if !d.release(r.Handle) {
		return fujibus.StatusNotFound, nil
	}
	d.logger.Info("session closed", "handle", r.Handle)

	return fujibus.StatusOK, nil
}

// reserve claims one of the session slots.
func (d *Device) reserve() bool {
	for {
		n := d.active.Load()
		if int(n) >= d.cfg.maxHandles {
			return false
		}
		if d.active.CompareAndSwap(n, n+1) {
			d.metrics.setSessionGauge(n + 1)
			return true
		}
	}
}

func (d *Device) unreserve() {
	d.metrics.setSessionGauge(d.active.Add(-1))
}

// register assigns s the next free non-zero handle.
func (d *Device) register(s *session) fujibus.Handle {
	for {
		h := fujibus.Handle(d.nextHandle.Add(1)) //nolint:gosec // handles wrap within 16 bits
		if h == fujibus.InvalidHandle {
			continue
		}

		s.handle = h
		if _, loaded := d.sessions.LoadOrStore(h, s); !loaded {
			return h
		}
	}
}

// release removes and closes the session for h.
func (d *Device) release(h fujibus.Handle) bool {
	s, ok := d.sessions.LoadAndDelete(h)
	if !ok {
		return false
	}
	d.unreserve()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.close(); err != nil {
		d.logger.Debug("session close error", "handle", h, "error", err)
	}

	return true
}

func (d *Device) reapIdle() bool {
	cutoff := time.Now().Add(-d.cfg.idleTimeout).UnixNano()

	d.sessions.Range(func(h fujibus.Handle, s *session) bool {
		if s.lastUsed.Load() < cutoff && d.release(h) {
			d.metrics.incReapCount()
			d.logger.Info("idle session reaped", "handle", h, "url", s.url)
		}

		return true
	})

	return true
}

func isTCPURL(url string) bool {
	return len(url) >= 6 && strings.EqualFold(url[:6], "tcp://")
}

func statusErr(status fujibus.Status, format string, args ...any) error {
	return fmt.Errorf("%w: %s", status, fmt.Sprintf(format, args...))
}

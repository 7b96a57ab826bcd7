package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/logger"
	"github.com/arloliu/go-fujibus/slip"
)

// Client drives FujiBus network sessions over a Port.
//
// Each operation performs at most one request/response exchange. The client
// never retries and never starts goroutines. It is not safe for concurrent
// use: callers sharing a Client must serialize access.
type Client struct {
	port              Port
	logger            logger.Logger
	untrackedOverflow bool

	table   SessionTable
	metrics ClientMetrics

	req   [fujibus.MaxPacketSize]byte
	frame [fujibus.MaxFrameSize]byte
	resp  [fujibus.MaxFrameSize]byte
	rpkt  [fujibus.MaxPacketSize]byte
}

// ReadResult describes the outcome of a Read.
type ReadResult struct {
	// N is the number of bytes copied into the caller buffer.
	N int
	// Length is the data length reported by the device. It exceeds N when
	// the caller buffer was too small.
	Length int
	// EOF is set when the device reached the end of the resource or stream.
	EOF bool
	// Truncated is set when the device or the copy dropped data.
	Truncated bool
}

// Info is the result of an Info call.
type Info = fujibus.InfoResponse

// NewClient creates a client exchanging frames over port.
func NewClient(port Port, opts ...ClientOption) (*Client, error) {
	if port == nil {
		return nil, errors.New("network: port must not be nil")
	}

	cfg := &clientConfig{logger: logger.GetLogger()}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Client{
		port:              port,
		logger:            cfg.logger.With("component", "fujibus-client"),
		untrackedOverflow: cfg.untrackedOverflow,
	}, nil
}

// Open opens a session for url and returns the device-assigned handle.
//
// URLs longer than fujibus.MaxURLLen fail with StatusURLTooLong and a full
// session table fails with StatusNoHandles, both without contacting the
// device. URLs starting with tcp:// open streaming sessions.
func (c *Client) Open(ctx context.Context, method fujibus.Method, url string, flags OpenFlag) (fujibus.Handle, error) {
	if len(url) > fujibus.MaxURLLen {
		return fujibus.InvalidHandle, c.reject(fmt.Errorf("%w: %d bytes exceeds %d", fujibus.StatusURLTooLong, len(url), fujibus.MaxURLLen))
	}
	if !method.Valid() {
		return fujibus.InvalidHandle, c.reject(fmt.Errorf("%w: method %d", fujibus.StatusInvalid, method))
	}

	sess, err := c.table.Allocate()
	if err != nil && !c.untrackedOverflow {
		return fujibus.InvalidHandle, c.reject(err)
	}

	fail := func(err error) (fujibus.Handle, error) {
		if sess != nil {
			c.table.release(sess)
		}

		return fujibus.InvalidHandle, err
	}

	n, err := fujibus.BuildOpen(c.req[:], method, flags.wire(), url)
	if err != nil {
		c.metrics.incLocalRejectCount()
		return fail(err)
	}

	hdr, err := c.exchange(ctx, fujibus.CmdOpen, n)
	if err != nil {
		return fail(err)
	}

	resp, err := fujibus.DecodeOpenPayload(hdr.Payload)
	if err != nil {
		return fail(err)
	}
	if resp.Handle == fujibus.InvalidHandle {
		return fail(fmt.Errorf("%w: device returned the invalid handle", fujibus.StatusInvalid))
	}

	if sess == nil {
		c.metrics.incUntrackedOpenCount()
		c.logger.Warn("session table full, handle not tracked",
			"handle", resp.Handle, "url", url, "max_sessions", MaxSessions)

		return resp.Handle, nil
	}

	if _, err := c.table.Find(resp.Handle); err == nil {
		c.logger.Warn("device reused an open handle, dropping stale session", "handle", resp.Handle)
		c.table.Free(resp.Handle)
	}

	sess.Class = classifyURL(url)
	sess.Method = method
	sess.toOpened(resp.Handle, resp.NeedsBody())
	c.metrics.setSessionGauge(c.table.Len())

	c.logger.Debug("session opened", "handle", resp.Handle, "class", sess.Class,
		"method", method, "needs_body", sess.NeedsBody)

	return resp.Handle, nil
}

// TCPOpen opens a raw TCP session to host:port.
func (c *Client) TCPOpen(ctx context.Context, host string, port uint16) (fujibus.Handle, error) {
	url := "tcp://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
	return c.Open(ctx, fujibus.MethodNone, url, 0)
}

// Write sends data at offset and returns the number of bytes the device
// accepted, which may be less than len(data).
//
// offset must equal the session's write cursor, otherwise Write fails with
// StatusInvalid without contacting the device. A zero-length write marks the
// end of the request body, or half-closes a TCP session.
func (c *Client) Write(ctx context.Context, h fujibus.Handle, offset uint32, data []byte) (int, error) {
	sess, err := c.lookup(h)
	if err != nil {
		return 0, err
	}

	if offset != sess.WriteOffset {
		return 0, c.reject(fmt.Errorf("%w: write offset %d, expected %d", fujibus.StatusInvalid, offset, sess.WriteOffset))
	}
	if len(data) > fujibus.MaxWriteData {
		return 0, c.reject(fmt.Errorf("%w: write of %d bytes exceeds %d", fujibus.StatusInvalid, len(data), fujibus.MaxWriteData))
	}
	if sess.WriteClosed {
		c.logger.Debug("write after half-close", "handle", h, "len", len(data))
	}

	n, err := fujibus.BuildWrite(c.req[:], h, offset, data)
	if err != nil {
		return 0, c.reject(err)
	}

	hdr, err := c.exchange(ctx, fujibus.CmdWrite, n)
	if err != nil {
		return 0, err
	}

	resp, err := fujibus.DecodeWritePayload(hdr.Payload)
	if err != nil {
		return 0, err
	}
	if int(resp.Written) > len(data) {
		return 0, fmt.Errorf("%w: device reports %d bytes written of %d", fujibus.StatusInvalid, resp.Written, len(data))
	}
	c.checkHandleEcho(fujibus.CmdWrite, h, resp.Handle)

	sess.advanceWrite(len(data), int(resp.Written))
	c.metrics.addBytesWritten(int(resp.Written))

	return int(resp.Written), nil
}

// Read reads up to min(len(buf), fujibus.MaxChunkSize) bytes at offset.
//
// For TCP sessions offset must equal the session's read cursor, which then
// advances by the device-reported length.
func (c *Client) Read(ctx context.Context, h fujibus.Handle, offset uint32, buf []byte) (ReadResult, error) {
	sess, err := c.lookup(h)
	if err != nil {
		return ReadResult{}, err
	}

	if len(buf) == 0 {
		return ReadResult{}, c.reject(fmt.Errorf("%w: empty read buffer", fujibus.StatusInvalid))
	}
	if sess.Class.Sequential() && offset != sess.ReadOffset {
		return ReadResult{}, c.reject(fmt.Errorf("%w: read offset %d, expected %d", fujibus.StatusInvalid, offset, sess.ReadOffset))
	}

	want := min(len(buf), fujibus.MaxChunkSize)
	n, err := fujibus.BuildRead(c.req[:], h, offset, uint16(want)) //nolint:gosec // bounded by MaxChunkSize
	if err != nil {
		return ReadResult{}, c.reject(err)
	}

	hdr, err := c.exchange(ctx, fujibus.CmdRead, n)
	if err != nil {
		return ReadResult{}, err
	}

	resp, err := fujibus.DecodeReadPayload(hdr.Payload, buf[:want])
	if err != nil {
		return ReadResult{}, err
	}
	c.checkHandleEcho(fujibus.CmdRead, h, resp.Handle)

	sess.advanceRead(int(resp.Length))
	c.metrics.addBytesRead(resp.Copied)

	return ReadResult{
		N:         resp.Copied,
		Length:    int(resp.Length),
		EOF:       resp.EOF(),
		Truncated: resp.Truncated(),
	}, nil
}

// Info queries the session status: HTTP status and content length for HTTP
// sessions, connection flags for TCP sessions.
func (c *Client) Info(ctx context.Context, h fujibus.Handle) (Info, error) {
	if _, err := c.lookup(h); err != nil {
		return Info{}, err
	}

	n, err := fujibus.BuildInfo(c.req[:], h)
	if err != nil {
		return Info{}, c.reject(err)
	}

	hdr, err := c.exchange(ctx, fujibus.CmdInfo, n)
	if err != nil {
		return Info{}, err
	}

	info, err := fujibus.DecodeInfoPayload(hdr.Payload)
	if err != nil {
		return Info{}, err
	}
	c.checkHandleEcho(fujibus.CmdInfo, h, info.Handle)

	return info, nil
}

// Close closes the session on the device and frees the local slot whatever
// the outcome of the exchange, which is returned for diagnostics. Untracked
// handles are still sent to the device.
func (c *Client) Close(ctx context.Context, h fujibus.Handle) error {
	if h == fujibus.InvalidHandle {
		return c.reject(fmt.Errorf("%w: invalid handle", fujibus.StatusInvalid))
	}

	if sess, err := c.table.Find(h); err == nil {
		sess.State = StateClosing
	}

	n, err := fujibus.BuildClose(c.req[:], h)
	if err == nil {
		_, err = c.exchange(ctx, fujibus.CmdClose, n)
	}

	c.table.Free(h)
	c.metrics.setSessionGauge(c.table.Len())

	if err != nil {
		c.logger.Debug("close exchange failed, slot freed", "handle", h, "error", err)
	}

	return err
}

// Sessions returns a snapshot of the tracked sessions.
func (c *Client) Sessions() []Session {
	return c.table.Sessions()
}

// Session returns a copy of the tracked session for h.
func (c *Client) Session(h fujibus.Handle) (Session, bool) {
	sess, err := c.table.Find(h)
	if err != nil {
		return Session{}, false
	}

	return *sess, true
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *ClientMetrics {
	return &c.metrics
}

func (c *Client) lookup(h fujibus.Handle) (*Session, error) {
	if h == fujibus.InvalidHandle {
		return nil, c.reject(fmt.Errorf("%w: invalid handle", fujibus.StatusInvalid))
	}

	sess, err := c.table.Find(h)
	if err != nil {
		return nil, c.reject(err)
	}

	return sess, nil
}

func (c *Client) reject(err error) error {
	c.metrics.incLocalRejectCount()
	return err
}

func (c *Client) checkHandleEcho(cmd fujibus.Command, want, got fujibus.Handle) {
	if want != got {
		c.logger.Warn("response handle mismatch", "cmd", cmd, "handle", want, "echo", got)
	}
}

// exchange frames the n-byte request in c.req, sends it through the port and
// validates the reply. Port errors are returned unchanged; a non-OK embedded
// status is returned as the Status itself.
func (c *Client) exchange(ctx context.Context, cmd fujibus.Command, n int) (fujibus.ResponseHeader, error) {
	var hdr fujibus.ResponseHeader

	fn, err := slip.Encode(c.frame[:], c.req[:n])
	if err != nil {
		return hdr, fmt.Errorf("%w: %w", fujibus.StatusInternal, err)
	}

	c.metrics.incExchangeCount()

	rn, err := c.port.Exchange(ctx, c.frame[:fn], c.resp[:])
	if err != nil {
		c.metrics.incExchangeErrCount()
		c.logger.Debug("exchange failed", "cmd", cmd, "error", err)

		return hdr, err
	}
	if rn < 0 || rn > len(c.resp) {
		c.metrics.incExchangeErrCount()
		return hdr, fmt.Errorf("%w: port returned %d bytes", fujibus.StatusIO, rn)
	}

	pn, err := slip.Decode(c.rpkt[:], c.resp[:rn])
	if err != nil {
		c.metrics.incExchangeErrCount()
		return hdr, fmt.Errorf("%w: %w", fujibus.StatusIO, err)
	}

	hdr, err = fujibus.ParseResponseHeader(c.rpkt[:pn])
	if err != nil {
		c.metrics.incExchangeErrCount()
		return hdr, err
	}

	if hdr.Device != fujibus.DeviceNetwork || hdr.Command != cmd {
		c.metrics.incExchangeErrCount()
		return hdr, fmt.Errorf("%w: %s/%s response to %s request", fujibus.StatusInvalid, hdr.Device, hdr.Command, cmd)
	}

	c.logger.Debug("exchange", "cmd", cmd, "req_len", n, "resp_len", pn, "status", hdr.Status)

	if hdr.Status != fujibus.StatusOK {
		c.metrics.incStatusErrCount()
		return hdr, hdr.Status
	}

	return hdr, nil
}

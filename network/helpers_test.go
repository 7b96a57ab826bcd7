package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/slip"
)

// deviceFunc answers a decoded request with a status and response payload.
type deviceFunc func(req fujibus.Request) (fujibus.Status, []byte)

// scriptPort is a Port that decodes each request frame, hands it to a
// deviceFunc and frames the reply. An optional mangle hook may alter the
// encoded response packet before it is SLIP framed.
type scriptPort struct {
	t      *testing.T
	calls  int
	device deviceFunc
	mangle func(pkt []byte) []byte
	err    error
}

func newScriptPort(t *testing.T, device deviceFunc) *scriptPort {
	t.Helper()
	return &scriptPort{t: t, device: device}
}

func (p *scriptPort) Exchange(_ context.Context, frame []byte, resp []byte) (int, error) {
	p.calls++
	if p.err != nil {
		return 0, p.err
	}

	pkt := make([]byte, fujibus.MaxPacketSize)
	n, err := slip.Decode(pkt, frame)
	require.NoError(p.t, err)

	req, err := fujibus.ParseRequest(pkt[:n])
	require.NoError(p.t, err)

	status, payload := p.device(req)

	out := make([]byte, fujibus.MaxPacketSize)
	m, err := fujibus.BuildResponse(out, fujibus.DeviceNetwork, req.Command, status, payload)
	require.NoError(p.t, err)

	rpkt := out[:m]
	if p.mangle != nil {
		rpkt = p.mangle(rpkt)
	}

	return slip.Encode(resp, rpkt)
}

// newTestClient creates a client over a scripted port.
func newTestClient(t *testing.T, device deviceFunc, opts ...ClientOption) (*Client, *scriptPort) {
	t.Helper()

	port := newScriptPort(t, device)
	c, err := NewClient(port, opts...)
	require.NoError(t, err)

	return c, port
}

// handleSeq hands out handles 1, 2, 3, ... to Open requests and answers
// every other command with a minimal successful payload.
func handleSeq() deviceFunc {
	next := fujibus.Handle(0)
	return func(req fujibus.Request) (fujibus.Status, []byte) {
		switch req.Command {
		case fujibus.CmdOpen:
			next++
			return fujibus.StatusOK, fujibus.AppendOpenPayload(nil, fujibus.OpenAccepted, next)
		case fujibus.CmdWrite:
			w, _ := fujibus.DecodeWriteRequest(req.Payload)
			return fujibus.StatusOK, fujibus.AppendWritePayload(nil, w.Handle, w.Offset, uint16(len(w.Data))) //nolint:gosec
		case fujibus.CmdRead:
			r, _ := fujibus.DecodeReadRequest(req.Payload)
			return fujibus.StatusOK, fujibus.AppendReadPayload(nil, 0, r.Handle, r.Offset, []byte("data"))
		case fujibus.CmdInfo:
			h, _ := fujibus.DecodeHandleRequest(req.Payload)
			return fujibus.StatusOK, fujibus.AppendInfoPayload(nil, fujibus.InfoConnected, h.Handle, 0, 0)
		default:
			return fujibus.StatusOK, nil
		}
	}
}

// openN opens n HTTP sessions and returns their handles.
func openN(t *testing.T, c *Client, n int) []fujibus.Handle {
	t.Helper()

	handles := make([]fujibus.Handle, 0, n)
	for range n {
		h, err := c.Open(context.Background(), fujibus.MethodGet, "http://x/", 0)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	return handles
}

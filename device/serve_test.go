package device_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fujibus/device"
	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/logger"
	"github.com/arloliu/go-fujibus/network"
	"github.com/arloliu/go-fujibus/slip"
	"github.com/arloliu/go-fujibus/transport"
)

func newDevice(t *testing.T, opts ...device.Option) (*device.Device, logger.Logger) {
	t.Helper()

	l := logger.NewMockLogger().AllowAll()
	dev, err := device.New(append([]device.Option{device.WithLogger(l)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	return dev, l
}

func newContentServer(t *testing.T, content string) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, content)
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}

// fetch runs a GET through client and returns the body.
func fetch(t *testing.T, client *network.Client, url string) string {
	t.Helper()
	ctx := context.Background()

	h, err := client.Open(ctx, fujibus.MethodGet, url, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close(ctx, h)) }()

	var body []byte
	buf := make([]byte, fujibus.MaxChunkSize)
	for {
		res, err := client.Read(ctx, h, uint32(len(body)), buf) //nolint:gosec // small
		require.NoError(t, err)
		body = append(body, buf[:res.N]...)
		if res.EOF {
			return string(body)
		}
	}
}

func TestServe_Pipe(t *testing.T) {
	dev, _ := newDevice(t)

	local, remote := net.Pipe()
	defer local.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Serve(ctx, remote) }()

	var pkt [fujibus.MaxPacketSize]byte
	var frame [fujibus.MaxFrameSize]byte

	n, err := fujibus.BuildInfo(pkt[:], 7)
	require.NoError(t, err)
	fn, err := slip.Encode(frame[:], pkt[:n])
	require.NoError(t, err)

	// garbage between frames is skipped
	_, err = local.Write([]byte{slip.End, slip.Esc, 0x01, slip.End})
	require.NoError(t, err)
	_, err = local.Write(frame[:fn])
	require.NoError(t, err)

	rd := slip.NewReader(local)
	rn, err := rd.ReadFrame(frame[:])
	require.NoError(t, err)
	pn, err := slip.Decode(pkt[:], frame[:rn])
	require.NoError(t, err)

	_, err = fujibus.ParseInfoResponse(pkt[:pn])
	require.ErrorIs(t, err, fujibus.StatusNotFound)
	assert.EqualValues(t, 1, dev.Metrics().FrameErrCount.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestServeListener_TCPTransport(t *testing.T) {
	content := strings.Repeat("abcdefgh", 200)
	url := newContentServer(t, content)
	dev, l := newDevice(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.ServeListener(ctx, ln) }()

	cfg, err := transport.NewPortConfig(transport.WithSettleDelay(0), transport.WithLogger(l))
	require.NoError(t, err)

	for range 2 { // concurrent connections
		port, err := transport.DialTCP(ctx, ln.Addr().String(), cfg)
		require.NoError(t, err)
		defer port.Close()

		client, err := network.NewClient(port, network.WithLogger(l))
		require.NoError(t, err)
		assert.Equal(t, content, fetch(t, client, url))
		assert.Positive(t, port.Metrics().FrameRecvCount.Load())
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeListener did not stop")
	}
}

func TestWebSocketHandler(t *testing.T) {
	content := "hello over websocket"
	url := newContentServer(t, content)
	dev, l := newDevice(t)

	srv := httptest.NewServer(dev.WebSocketHandler())
	defer srv.Close()

	cfg, err := transport.NewPortConfig(transport.WithLogger(l))
	require.NoError(t, err)

	port, err := transport.DialWebSocket(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), cfg)
	require.NoError(t, err)
	defer port.Close()

	client, err := network.NewClient(port, network.WithLogger(l))
	require.NoError(t, err)

	assert.Equal(t, content, fetch(t, client, url))
	assert.Zero(t, dev.SessionCount())
}

func TestLoopback_NoResponse(t *testing.T) {
	dev, _ := newDevice(t)

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err := dev.Loopback().Exchange(context.Background(), []byte{slip.End, slip.Esc, 0x00, slip.End}, resp)
	require.ErrorIs(t, err, fujibus.StatusTimeout)
}

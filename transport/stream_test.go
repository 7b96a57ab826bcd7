package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/slip"
)

var testFrame = []byte{slip.End, 0xFD, 0x01, 0x00, 0xFC, 0x00, 0x00, slip.End}

// replyFunc returns the reply to the i-th request frame, or nil to stay silent.
type replyFunc func(i int, frame []byte) []byte

func echoReply(_ int, frame []byte) []byte { return frame }

// newPipePort returns a StreamPort over one end of a net.Pipe whose other
// end is served by reply.
func newPipePort(t *testing.T, reply replyFunc, opts ...PortOption) *StreamPort {
	t.Helper()

	opts = append([]PortOption{WithSettleDelay(0), WithPollInterval(5 * time.Millisecond)}, opts...)
	cfg, err := NewPortConfig(opts...)
	require.NoError(t, err)

	local, remote := net.Pipe()
	port := NewStreamPort(local, cfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveFrames(remote, reply)
	}()

	t.Cleanup(func() {
		_ = port.Close()
		_ = remote.Close()
		wg.Wait()
	})

	return port
}

func serveFrames(conn net.Conn, reply replyFunc) {
	rd := slip.NewReader(conn)
	buf := make([]byte, fujibus.MaxFrameSize)
	for i := 0; ; i++ {
		n, err := rd.ReadFrame(buf)
		if err != nil {
			return
		}

		out := reply(i, append([]byte(nil), buf[:n]...))
		if out == nil {
			continue
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func TestStreamPort_Exchange(t *testing.T) {
	port := newPipePort(t, echoReply)

	resp := make([]byte, fujibus.MaxFrameSize)
	for range 3 {
		n, err := port.Exchange(context.Background(), testFrame, resp)
		require.NoError(t, err)
		assert.Equal(t, testFrame, resp[:n])
	}

	m := port.Metrics()
	assert.EqualValues(t, 3, m.FrameSendCount.Load())
	assert.EqualValues(t, 3, m.FrameRecvCount.Load())
	assert.Zero(t, m.TimeoutCount.Load())
	assert.Equal(t, "pipe", port.Name())
}

func TestStreamPort_Timeout(t *testing.T) {
	port := newPipePort(t, func(int, []byte) []byte { return nil },
		WithTimeout(30*time.Millisecond), WithRetryLimit(2))

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err := port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, fujibus.StatusTimeout)
	assert.Equal(t, fujibus.StatusTimeout, fujibus.StatusOf(err))

	m := port.Metrics()
	assert.EqualValues(t, 3, m.FrameSendCount.Load())
	assert.EqualValues(t, 2, m.RetryCount.Load())
	assert.EqualValues(t, 3, m.TimeoutCount.Load())
	assert.Zero(t, m.ErrCount.Load())
}

func TestStreamPort_RetrySucceeds(t *testing.T) {
	port := newPipePort(t, func(i int, frame []byte) []byte {
		if i == 0 {
			return nil
		}
		return frame
	}, WithTimeout(30*time.Millisecond), WithRetryLimit(1))

	resp := make([]byte, fujibus.MaxFrameSize)
	n, err := port.Exchange(context.Background(), testFrame, resp)
	require.NoError(t, err)
	assert.Equal(t, testFrame, resp[:n])
	assert.EqualValues(t, 1, port.Metrics().RetryCount.Load())
}

func TestStreamPort_LateReplyDiscarded(t *testing.T) {
	late := []byte{slip.End, 0x01, 0x02, slip.End}
	port := newPipePort(t, func(i int, frame []byte) []byte {
		if i == 0 {
			time.Sleep(50 * time.Millisecond)
			return late
		}
		return frame
	}, WithTimeout(20*time.Millisecond), WithPollInterval(100*time.Millisecond))

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err := port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, fujibus.StatusTimeout)

	n, err := port.Exchange(context.Background(), testFrame, resp)
	require.NoError(t, err)
	assert.Equal(t, testFrame, resp[:n], "reply to the abandoned request must not be returned")
}

func TestStreamPort_PeerClosed(t *testing.T) {
	cfg, err := NewPortConfig(WithSettleDelay(0))
	require.NoError(t, err)

	local, remote := net.Pipe()
	port := NewStreamPort(local, cfg)
	defer port.Close()

	go func() {
		rd := slip.NewReader(remote)
		buf := make([]byte, fujibus.MaxFrameSize)
		_, _ = rd.ReadFrame(buf)
		_ = remote.Close()
	}()

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err = port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, fujibus.StatusIO)
	require.ErrorIs(t, err, io.EOF)
	assert.EqualValues(t, 1, port.Metrics().ErrCount.Load())
}

func TestStreamPort_FrameTooLarge(t *testing.T) {
	big := make([]byte, 64)
	big[0], big[len(big)-1] = slip.End, slip.End
	for i := 1; i < len(big)-1; i++ {
		big[i] = 0x55
	}

	port := newPipePort(t, func(int, []byte) []byte { return big }, WithMaxFrameSize(16))

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err := port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, fujibus.StatusIO)
	require.ErrorIs(t, err, slip.ErrFrameTooLarge)
}

func TestStreamPort_ContextCanceled(t *testing.T) {
	port := newPipePort(t, func(int, []byte) []byte { return nil }, WithTimeout(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	begin := time.Now()
	resp := make([]byte, fujibus.MaxFrameSize)
	_, err := port.Exchange(ctx, testFrame, resp)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), 5*time.Second)
}

func TestStreamPort_ContextDeadline(t *testing.T) {
	port := newPipePort(t, func(int, []byte) []byte { return nil }, WithTimeout(10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err := port.Exchange(ctx, testFrame, resp)
	require.Error(t, err)
	assert.Equal(t, fujibus.StatusTimeout, fujibus.StatusOf(err))
}

func TestStreamPort_Closed(t *testing.T) {
	port := newPipePort(t, echoReply)
	require.NoError(t, port.Close())
	require.NoError(t, port.Close())

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err := port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, ErrPortClosed)
}

func TestDialTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serveFrames(conn, echoReply)
	}()

	cfg, err := NewPortConfig(WithSettleDelay(0))
	require.NoError(t, err)

	port, err := Open(context.Background(), KindTCP, ln.Addr().String(), cfg)
	require.NoError(t, err)
	defer port.Close()

	resp := make([]byte, fujibus.MaxFrameSize)
	n, err := port.Exchange(context.Background(), testFrame, resp)
	require.NoError(t, err)
	assert.Equal(t, testFrame, resp[:n])
	assert.Equal(t, ln.Addr().String(), port.Name())
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Kind("udp"), "x", nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}

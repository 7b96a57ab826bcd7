package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fujibus/fujibus"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer starts a bridge that answers every binary message through
// handle. A nil reply leaves the request unanswered.
func newWSServer(t *testing.T, handle func(msg []byte) [][]byte) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			for _, out := range handle(msg) {
				typ := websocket.BinaryMessage
				if len(out) > 0 && out[0] == '#' {
					typ = websocket.TextMessage
				}
				if err := conn.WriteMessage(typ, out); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketPort_Exchange(t *testing.T) {
	url := newWSServer(t, func(msg []byte) [][]byte {
		return [][]byte{[]byte("#hello"), msg}
	})

	port, err := Open(context.Background(), KindWebSocket, url, nil)
	require.NoError(t, err)
	defer port.Close()

	resp := make([]byte, fujibus.MaxFrameSize)
	for range 2 {
		n, err := port.Exchange(context.Background(), testFrame, resp)
		require.NoError(t, err)
		assert.Equal(t, testFrame, resp[:n], "text messages are skipped")
	}

	assert.Equal(t, url, port.Name())
	assert.EqualValues(t, 2, port.Metrics().FrameRecvCount.Load())
}

func TestWebSocketPort_TooLarge(t *testing.T) {
	url := newWSServer(t, func([]byte) [][]byte {
		return [][]byte{make([]byte, 100)}
	})

	cfg, err := NewPortConfig(WithMaxFrameSize(32))
	require.NoError(t, err)

	port, err := DialWebSocket(context.Background(), url, cfg)
	require.NoError(t, err)
	defer port.Close()

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err = port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, fujibus.StatusIO)
}

func TestWebSocketPort_TimeoutBreaksPort(t *testing.T) {
	url := newWSServer(t, func([]byte) [][]byte { return nil })

	cfg, err := NewPortConfig(WithTimeout(30*time.Millisecond), WithRetryLimit(3))
	require.NoError(t, err)

	port, err := DialWebSocket(context.Background(), url, cfg)
	require.NoError(t, err)
	defer port.Close()

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err = port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, fujibus.StatusTimeout)
	assert.Zero(t, port.Metrics().RetryCount.Load(), "timed out read is final")

	_, err = port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, ErrPortBroken)
	require.ErrorIs(t, err, fujibus.StatusIO)
}

func TestWebSocketPort_Closed(t *testing.T) {
	url := newWSServer(t, func(msg []byte) [][]byte { return [][]byte{msg} })

	port, err := DialWebSocket(context.Background(), url, nil)
	require.NoError(t, err)
	require.NoError(t, port.Close())

	resp := make([]byte, fujibus.MaxFrameSize)
	_, err = port.Exchange(context.Background(), testFrame, resp)
	require.ErrorIs(t, err, ErrPortClosed)
}

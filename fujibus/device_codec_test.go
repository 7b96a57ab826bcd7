package fujibus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseRequest(t *testing.T, build func(dst []byte) (int, error)) Request {
	t.Helper()

	buf := make([]byte, MaxPacketSize)
	n, err := build(buf)
	require.NoError(t, err)

	req, err := ParseRequest(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, DeviceNetwork, req.Device)

	return req
}

func TestDecodeOpenRequest(t *testing.T) {
	req := parseRequest(t, func(dst []byte) (int, error) {
		return BuildOpen(dst, MethodPut, OpenTLS|OpenFollowRedirect, "https://example.com/upload")
	})
	require.Equal(t, CmdOpen, req.Command)

	open, err := DecodeOpenRequest(req.Payload)
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, open.Version)
	assert.Equal(t, MethodPut, open.Method)
	assert.Equal(t, OpenTLS|OpenFollowRedirect, open.Flags)
	assert.Equal(t, "https://example.com/upload", open.URL)
	assert.Zero(t, open.BodyLenHint)
}

func TestDecodeOpenRequest_Errors(t *testing.T) {
	req := parseRequest(t, func(dst []byte) (int, error) {
		return BuildOpen(dst, MethodGet, 0, "http://x/")
	})
	payload := append([]byte(nil), req.Payload...)

	_, err := DecodeOpenRequest(payload[:12])
	require.ErrorIs(t, err, StatusInvalid)

	badVersion := append([]byte(nil), payload...)
	badVersion[0] = 0x02
	_, err = DecodeOpenRequest(badVersion)
	require.ErrorIs(t, err, StatusUnsupported)

	badMethod := append([]byte(nil), payload...)
	badMethod[1] = 9
	_, err = DecodeOpenRequest(badMethod)
	require.ErrorIs(t, err, StatusInvalid)

	withHeaders := append([]byte(nil), payload...)
	withHeaders[5+len("http://x/")] = 1
	_, err = DecodeOpenRequest(withHeaders)
	require.ErrorIs(t, err, StatusUnsupported)

	truncatedURL := append([]byte(nil), payload...)
	truncatedURL[3] = 200
	_, err = DecodeOpenRequest(truncatedURL)
	require.ErrorIs(t, err, StatusInvalid)
}

func TestDecodeReadWriteRequests(t *testing.T) {
	req := parseRequest(t, func(dst []byte) (int, error) { return BuildRead(dst, 5, 77, 256) })
	rd, err := DecodeReadRequest(req.Payload)
	require.NoError(t, err)
	assert.Equal(t, ReadRequest{Version: ProtocolVersion, Handle: 5, Offset: 77, MaxBytes: 256}, rd)

	req = parseRequest(t, func(dst []byte) (int, error) { return BuildWrite(dst, 5, 3, []byte("abc")) })
	wr, err := DecodeWriteRequest(req.Payload)
	require.NoError(t, err)
	assert.Equal(t, Handle(5), wr.Handle)
	assert.EqualValues(t, 3, wr.Offset)
	assert.Equal(t, []byte("abc"), wr.Data)

	_, err = DecodeWriteRequest(req.Payload[:10])
	require.ErrorIs(t, err, StatusInvalid)

	for _, build := range []func([]byte) (int, error){
		func(dst []byte) (int, error) { return BuildClose(dst, 12) },
		func(dst []byte) (int, error) { return BuildInfo(dst, 12) },
	} {
		req = parseRequest(t, build)
		hr, err := DecodeHandleRequest(req.Payload)
		require.NoError(t, err)
		assert.Equal(t, Handle(12), hr.Handle)
	}
}

func TestBuildResponse_StatusParam(t *testing.T) {
	buf := make([]byte, 32)
	n, err := BuildResponse(buf, DeviceNetwork, CmdClose, StatusNotFound, nil)
	require.NoError(t, err)
	require.Equal(t, HeaderSize+ParamSize, n)

	assert.Equal(t, byte(1), buf[2], "one parameter")
	assert.Equal(t, byte(StatusNotFound), buf[8], "status in low byte of param 0")
}

func TestStatus(t *testing.T) {
	assert.NoError(t, StatusOK.Err())
	require.ErrorIs(t, StatusBusy.Err(), StatusBusy)
	assert.Equal(t, "fujibus: no free handles", StatusNoHandles.Error())
	assert.Equal(t, "status(0x42)", Status(0x42).String())

	wrapped := fmt.Errorf("open: %w", fmt.Errorf("%w: detail", StatusURLTooLong))
	require.ErrorIs(t, wrapped, StatusURLTooLong)
	assert.Equal(t, StatusURLTooLong, StatusOf(wrapped))

	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusTransport, StatusOf(errors.New("boom")))
}

func TestMethod(t *testing.T) {
	m, err := ParseMethod("post")
	require.NoError(t, err)
	assert.Equal(t, MethodPost, m)
	assert.True(t, m.HasBody())
	assert.Equal(t, "POST", m.String())
	assert.Equal(t, "TCP", MethodNone.String())

	_, err = ParseMethod("PATCH")
	require.ErrorIs(t, err, StatusInvalid)

	assert.False(t, Method(6).Valid())
	assert.Equal(t, "param-count/xor", Framing.String())
}

package fujibus

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestPackets returns one encoded packet of every request type.
func requestPackets(t *testing.T) map[string][]byte {
	t.Helper()

	pkts := make(map[string][]byte)
	add := func(name string, build func(dst []byte) (int, error)) {
		buf := make([]byte, MaxPacketSize)
		n, err := build(buf)
		require.NoError(t, err, name)
		pkts[name] = buf[:n]
	}

	add("open", func(dst []byte) (int, error) {
		return BuildOpen(dst, MethodGet, OpenFollowRedirect, "http://example.com/index.html")
	})
	add("open-tcp", func(dst []byte) (int, error) {
		return BuildOpen(dst, MethodNone, 0, "tcp://10.0.0.1:6502")
	})
	add("read", func(dst []byte) (int, error) { return BuildRead(dst, 3, 1024, MaxChunkSize) })
	add("write", func(dst []byte) (int, error) { return BuildWrite(dst, 3, 5, []byte{0xC0, 0xDB, 'x'}) })
	add("write-empty", func(dst []byte) (int, error) { return BuildWrite(dst, 3, 5, nil) })
	add("close", func(dst []byte) (int, error) { return BuildClose(dst, 3) })
	add("info", func(dst []byte) (int, error) { return BuildInfo(dst, 3) })

	return pkts
}

func TestBuilders_LengthInvariant(t *testing.T) {
	for name, pkt := range requestPackets(t) {
		t.Run(name, func(t *testing.T) {
			pc := int(pkt[2])
			dataLen := int(binary.LittleEndian.Uint16(pkt[4:6]))

			assert.Equal(t, DeviceNetwork, DeviceID(pkt[0]))
			assert.Zero(t, pc, "requests carry no parameters")
			assert.Equal(t, PacketSize(pc, dataLen), len(pkt))
			assert.True(t, VerifyChecksum(pkt))
			assert.Equal(t, ProtocolVersion, pkt[HeaderSize])

			p, err := ParsePacket(pkt)
			require.NoError(t, err)
			assert.Equal(t, len(pkt), p.PayloadOffset+len(p.Payload))
		})
	}
}

func TestChecksum_SingleBitFlip(t *testing.T) {
	for name, pkt := range requestPackets(t) {
		t.Run(name, func(t *testing.T) {
			for i := range pkt {
				for bit := range 8 {
					corrupt := bytes.Clone(pkt)
					corrupt[i] ^= 1 << bit

					_, err := ParsePacket(corrupt)
					require.Error(t, err, "flip byte %d bit %d accepted", i, bit)

					// Flips that keep the declared length intact are caught by the checksum.
					if i != 2 && i != 4 && i != 5 {
						require.ErrorIs(t, err, StatusIO, "byte %d bit %d", i, bit)
					}
				}
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	pkt := []byte{0xFD, 0x04, 0x00, 0xAA, 0x03, 0x00, 0x01, 0x02, 0x00}
	want := byte(0xFD ^ 0x04 ^ 0x03 ^ 0x01 ^ 0x02)

	assert.Equal(t, want, Checksum(pkt), "checksum byte must be ignored")
	assert.False(t, VerifyChecksum(pkt))

	pkt[ChecksumOffset] = want
	assert.True(t, VerifyChecksum(pkt))
	assert.False(t, VerifyChecksum(pkt[:5]))
}

func TestBuildOpen_Layout(t *testing.T) {
	url := "http://a/"
	buf := make([]byte, 64)

	n, err := BuildOpen(buf, MethodPost, OpenTLS|OpenAllowEvict, url)
	require.NoError(t, err)

	pkt := buf[:n]
	assert.Equal(t, []byte{byte(DeviceNetwork), byte(CmdOpen), 0x00}, pkt[:3])
	assert.EqualValues(t, 13+len(url), binary.LittleEndian.Uint16(pkt[4:6]))

	payload := pkt[HeaderSize:]
	assert.Equal(t, []byte{ProtocolVersion, byte(MethodPost), 0x09, byte(len(url)), 0x00}, payload[:5])
	assert.Equal(t, url, string(payload[5:5+len(url)]))
	assert.Equal(t, make([]byte, 8), payload[5+len(url):], "header_count, body_len_hint, resp_header_count")
}

func TestBuildOpen_URLLength(t *testing.T) {
	buf := make([]byte, MaxPacketSize)

	n, err := BuildOpen(buf, MethodGet, 0, strings.Repeat("u", MaxURLLen))
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+13+MaxURLLen, n)

	n, err = BuildOpen(buf, MethodGet, 0, strings.Repeat("u", MaxURLLen+1))
	require.ErrorIs(t, err, StatusURLTooLong)
	assert.Zero(t, n)
}

func TestBuildRead_Layout(t *testing.T) {
	buf := make([]byte, 32)
	n, err := BuildRead(buf, 0x0102, 0x01020304, 0x0200)
	require.NoError(t, err)

	assert.Equal(t, []byte{
		0xFD, 0x02, 0x00, buf[3], 0x09, 0x00,
		0x01, 0x02, 0x01, 0x04, 0x03, 0x02, 0x01, 0x00, 0x02,
	}, buf[:n])
}

func TestBuildWrite_Limits(t *testing.T) {
	buf := make([]byte, MaxPacketSize)

	n, err := BuildWrite(buf, 1, 0, make([]byte, MaxWriteData))
	require.NoError(t, err)
	assert.Equal(t, MaxPacketSize, n)

	n, err = BuildWrite(buf, 1, 0, make([]byte, MaxWriteData+1))
	require.ErrorIs(t, err, StatusInvalid)
	assert.Zero(t, n)

	n, err = BuildWrite(make([]byte, 16), 1, 0, []byte("too long for the buffer"))
	require.ErrorIs(t, err, StatusInvalid)
	assert.Zero(t, n)
}

func TestBuildPacket_TooManyParams(t *testing.T) {
	buf := make([]byte, 64)
	_, err := BuildPacket(buf, DeviceFuji, CmdInfo, make([]Param, MaxParams+1), nil)
	require.ErrorIs(t, err, StatusInvalid)
}

func TestBuildPacket_Params(t *testing.T) {
	buf := make([]byte, 64)
	params := []Param{{Size: 1, Value: 0x0005}, {Size: 2, Value: 0xBEEF}}

	n, err := BuildPacket(buf, DeviceFuji, CmdRead, params, []byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, PacketSize(2, 1), n)

	p, err := ParsePacket(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, DeviceFuji, p.Device)
	assert.Equal(t, CmdRead, p.Command)
	assert.Equal(t, 2, p.ParamCount)
	assert.Equal(t, StatusIO, p.Status())

	v, ok := p.ParamValue(1)
	assert.True(t, ok)
	assert.EqualValues(t, 0xBEEF, v)

	_, ok = p.ParamValue(2)
	assert.False(t, ok)
	assert.Equal(t, []byte{0xAA}, p.Payload)
}

package fujibus

import (
	"encoding/binary"
	"fmt"
)

// Request payload sizes, excluding variable-length data.
const (
	openRequestFixed  = 13 // version, method, flags, url_len, header_count, body_len_hint, resp_header_count
	readRequestSize   = 9  // version, handle, offset, max_bytes
	writeRequestFixed = 9  // version, handle, offset, data_len
	handleRequestSize = 3  // version, handle
)

// MaxWriteData is the largest data block a single Write request can carry.
const MaxWriteData = MaxPacketSize - HeaderSize - writeRequestFixed

// BuildOpen encodes an Open request for the network device into dst.
//
// Payload: version, method, flags, url_len:u16, url, header_count:u16 = 0,
// body_len_hint:u32 = 0, resp_header_count:u16 = 0. Requests never carry
// parameters. URLs longer than MaxURLLen fail with StatusURLTooLong.
func BuildOpen(dst []byte, method Method, flags OpenFlags, url string) (int, error) {
	if len(url) > MaxURLLen {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", StatusURLTooLong, len(url), MaxURLLen)
	}

	off, err := beginPacket(dst, DeviceNetwork, CmdOpen, nil, openRequestFixed+len(url))
	if err != nil {
		return 0, err
	}

	dst[off] = ProtocolVersion
	dst[off+1] = byte(method)
	dst[off+2] = byte(flags)
	binary.LittleEndian.PutUint16(dst[off+3:], uint16(len(url))) //nolint:gosec // bounded by MaxURLLen
	off += 5
	off += copy(dst[off:], url)
	binary.LittleEndian.PutUint16(dst[off:], 0)   // header_count
	binary.LittleEndian.PutUint32(dst[off+2:], 0) // body_len_hint
	binary.LittleEndian.PutUint16(dst[off+6:], 0) // resp_header_count
	off += 8

	return finishPacket(dst, off), nil
}

// BuildRead encodes a Read request asking for up to maxBytes bytes at offset.
func BuildRead(dst []byte, h Handle, offset uint32, maxBytes uint16) (int, error) {
	off, err := beginPacket(dst, DeviceNetwork, CmdRead, nil, readRequestSize)
	if err != nil {
		return 0, err
	}

	dst[off] = ProtocolVersion
	binary.LittleEndian.PutUint16(dst[off+1:], uint16(h))
	binary.LittleEndian.PutUint32(dst[off+3:], offset)
	binary.LittleEndian.PutUint16(dst[off+7:], maxBytes)

	return finishPacket(dst, off+readRequestSize), nil
}

// BuildWrite encodes a Write request carrying data at offset. A zero-length
// write signals end of the request body (HTTP) or a half-close (TCP).
func BuildWrite(dst []byte, h Handle, offset uint32, data []byte) (int, error) {
	off, err := beginPacket(dst, DeviceNetwork, CmdWrite, nil, writeRequestFixed+len(data))
	if err != nil {
		return 0, err
	}

	dst[off] = ProtocolVersion
	binary.LittleEndian.PutUint16(dst[off+1:], uint16(h))
	binary.LittleEndian.PutUint32(dst[off+3:], offset)
	binary.LittleEndian.PutUint16(dst[off+7:], uint16(len(data))) //nolint:gosec // bounded by MaxPacketSize
	off += writeRequestFixed
	off += copy(dst[off:], data)

	return finishPacket(dst, off), nil
}

// BuildClose encodes a Close request.
func BuildClose(dst []byte, h Handle) (int, error) {
	return buildHandleRequest(dst, CmdClose, h)
}

// BuildInfo encodes an Info request.
func BuildInfo(dst []byte, h Handle) (int, error) {
	return buildHandleRequest(dst, CmdInfo, h)
}

func buildHandleRequest(dst []byte, cmd Command, h Handle) (int, error) {
	off, err := beginPacket(dst, DeviceNetwork, cmd, nil, handleRequestSize)
	if err != nil {
		return 0, err
	}

	dst[off] = ProtocolVersion
	binary.LittleEndian.PutUint16(dst[off+1:], uint16(h))

	return finishPacket(dst, off+handleRequestSize), nil
}

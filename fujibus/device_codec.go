package fujibus

import (
	"encoding/binary"
	"fmt"
)

// Request is a decoded request packet as seen by a device.
type Request struct {
	Device  DeviceID
	Command Command
	Payload []byte
}

// ParseRequest validates a request packet. Payload aliases pkt.
func ParseRequest(pkt []byte) (Request, error) {
	p, err := ParsePacket(pkt)
	if err != nil {
		return Request{}, err
	}

	return Request{Device: p.Device, Command: p.Command, Payload: p.Payload}, nil
}

// OpenRequest is the decoded payload of an Open request.
type OpenRequest struct {
	Version     byte
	Method      Method
	Flags       OpenFlags
	URL         string
	BodyLenHint uint32
}

// ReadRequest is the decoded payload of a Read request.
type ReadRequest struct {
	Version  byte
	Handle   Handle
	Offset   uint32
	MaxBytes uint16
}

// WriteRequest is the decoded payload of a Write request. Data aliases the payload.
type WriteRequest struct {
	Version byte
	Handle  Handle
	Offset  uint32
	Data    []byte
}

// HandleRequest is the decoded payload of a Close or Info request.
type HandleRequest struct {
	Version byte
	Handle  Handle
}

// DecodeOpenRequest decodes an Open request payload. Requests carrying
// request or response header lists fail with StatusUnsupported.
func DecodeOpenRequest(payload []byte) (OpenRequest, error) {
	if err := checkVersion(payload, openRequestFixed); err != nil {
		return OpenRequest{}, err
	}

	urlLen := int(binary.LittleEndian.Uint16(payload[3:5]))
	if urlLen > MaxURLLen {
		return OpenRequest{}, fmt.Errorf("%w: %d bytes", StatusURLTooLong, urlLen)
	}
	if len(payload) < openRequestFixed+urlLen {
		return OpenRequest{}, fmt.Errorf("%w: open payload truncated", StatusInvalid)
	}

	r := OpenRequest{
		Version: payload[0],
		Method:  Method(payload[1]),
		Flags:   OpenFlags(payload[2]),
		URL:     string(payload[5 : 5+urlLen]),
	}
	if !r.Method.Valid() {
		return OpenRequest{}, fmt.Errorf("%w: method %d", StatusInvalid, payload[1])
	}

	rest := payload[5+urlLen:]
	if binary.LittleEndian.Uint16(rest[0:2]) != 0 || binary.LittleEndian.Uint16(rest[6:8]) != 0 {
		return OpenRequest{}, fmt.Errorf("%w: header lists", StatusUnsupported)
	}
	r.BodyLenHint = binary.LittleEndian.Uint32(rest[2:6])

	return r, nil
}

// DecodeReadRequest decodes a Read request payload.
func DecodeReadRequest(payload []byte) (ReadRequest, error) {
	if err := checkVersion(payload, readRequestSize); err != nil {
		return ReadRequest{}, err
	}

	return ReadRequest{
		Version:  payload[0],
		Handle:   Handle(binary.LittleEndian.Uint16(payload[1:3])),
		Offset:   binary.LittleEndian.Uint32(payload[3:7]),
		MaxBytes: binary.LittleEndian.Uint16(payload[7:9]),
	}, nil
}

// DecodeWriteRequest decodes a Write request payload.
func DecodeWriteRequest(payload []byte) (WriteRequest, error) {
	if err := checkVersion(payload, writeRequestFixed); err != nil {
		return WriteRequest{}, err
	}

	n := int(binary.LittleEndian.Uint16(payload[7:9]))
	if len(payload) < writeRequestFixed+n {
		return WriteRequest{}, fmt.Errorf("%w: write data truncated", StatusInvalid)
	}

	return WriteRequest{
		Version: payload[0],
		Handle:  Handle(binary.LittleEndian.Uint16(payload[1:3])),
		Offset:  binary.LittleEndian.Uint32(payload[3:7]),
		Data:    payload[writeRequestFixed : writeRequestFixed+n],
	}, nil
}

// DecodeHandleRequest decodes a Close or Info request payload.
func DecodeHandleRequest(payload []byte) (HandleRequest, error) {
	if err := checkVersion(payload, handleRequestSize); err != nil {
		return HandleRequest{}, err
	}

	return HandleRequest{
		Version: payload[0],
		Handle:  Handle(binary.LittleEndian.Uint16(payload[1:3])),
	}, nil
}

func checkVersion(payload []byte, minLen int) error {
	if len(payload) < minLen {
		return fmt.Errorf("%w: request payload %d bytes, need %d", StatusInvalid, len(payload), minLen)
	}
	if payload[0] != ProtocolVersion {
		return fmt.Errorf("%w: protocol version %d", StatusUnsupported, payload[0])
	}

	return nil
}

// BuildResponse encodes a response packet carrying status in parameter 0.
func BuildResponse(dst []byte, device DeviceID, cmd Command, status Status, payload []byte) (int, error) {
	params := [1]Param{StatusParam(status)}
	return BuildPacket(dst, device, cmd, params[:], payload)
}

// AppendOpenPayload appends an Open response payload to b.
func AppendOpenPayload(b []byte, flags OpenRespFlags, h Handle) []byte {
	b = append(b, ProtocolVersion, byte(flags), 0, 0)
	return binary.LittleEndian.AppendUint16(b, uint16(h))
}

// AppendReadPayload appends a Read response payload carrying data to b.
func AppendReadPayload(b []byte, flags ReadFlags, h Handle, offset uint32, data []byte) []byte {
	b = append(b, ProtocolVersion, byte(flags), 0, 0)
	b = binary.LittleEndian.AppendUint16(b, uint16(h))
	b = binary.LittleEndian.AppendUint32(b, offset)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(data))) //nolint:gosec // bounded by MaxChunkSize

	return append(b, data...)
}

// AppendWritePayload appends a Write response payload to b.
func AppendWritePayload(b []byte, h Handle, offset uint32, written uint16) []byte {
	b = append(b, ProtocolVersion, 0, 0, 0)
	b = binary.LittleEndian.AppendUint16(b, uint16(h))
	b = binary.LittleEndian.AppendUint32(b, offset)

	return binary.LittleEndian.AppendUint16(b, written)
}

// AppendInfoPayload appends a full Info response payload to b.
func AppendInfoPayload(b []byte, flags InfoFlags, h Handle, httpStatus uint16, contentLength uint64) []byte {
	b = append(b, ProtocolVersion, byte(flags), 0, 0)
	b = binary.LittleEndian.AppendUint16(b, uint16(h))
	b = binary.LittleEndian.AppendUint16(b, httpStatus)

	return binary.LittleEndian.AppendUint64(b, contentLength)
}

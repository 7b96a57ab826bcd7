package fujibus

import (
	"encoding/binary"
	"fmt"
)

// Minimum response payload sizes.
const (
	openResponseMin  = 6  // version, flags, reserved(2), handle
	readResponseMin  = 12 // version, flags, reserved(2), handle, offset, data_len
	writeResponseMin = 12 // version, flags, reserved(2), handle, offset, written
	infoResponseMin  = 6  // version, flags, reserved(2), handle
	infoResponseFull = 16 // ... http_status, content_length
)

// ResponseHeader is the validated header of a response packet.
type ResponseHeader struct {
	Device  DeviceID
	Command Command
	Status  Status

	// PayloadOffset + PayloadLen equals the packet length.
	PayloadOffset int
	PayloadLen    int
	Payload       []byte
}

// ParseResponseHeader validates a response packet and returns its header.
//
// It fails with StatusInvalid for packets shorter than HeaderSize, with more
// than MaxParams parameters, or whose declared length differs from the actual
// length, and with StatusIO when the checksum does not match. The embedded
// status is returned in the header, not as an error.
func ParseResponseHeader(pkt []byte) (ResponseHeader, error) {
	p, err := ParsePacket(pkt)
	if err != nil {
		return ResponseHeader{}, err
	}

	return ResponseHeader{
		Device:        p.Device,
		Command:       p.Command,
		Status:        p.Status(),
		PayloadOffset: p.PayloadOffset,
		PayloadLen:    len(p.Payload),
		Payload:       p.Payload,
	}, nil
}

// OpenResponse is the decoded payload of an Open response.
type OpenResponse struct {
	Version byte
	Flags   OpenRespFlags
	Handle  Handle
}

// Accepted reports whether the device accepted the open.
func (r OpenResponse) Accepted() bool { return r.Flags&OpenAccepted != 0 }

// NeedsBody reports whether the device expects a request body.
func (r OpenResponse) NeedsBody() bool { return r.Flags&OpenNeedsBody != 0 }

// ReadResponse is the decoded payload of a Read response.
type ReadResponse struct {
	Version byte
	Flags   ReadFlags
	Handle  Handle
	Offset  uint32
	// Length is the data length reported by the device.
	Length uint16
	// Copied is the number of bytes copied to the caller buffer,
	// min(Length, len(dst)).
	Copied int
}

// EOF reports whether the device flagged end of stream.
func (r ReadResponse) EOF() bool { return r.Flags&ReadEOF != 0 }

// Truncated reports whether the device truncated the data, or the caller
// buffer was too small to hold all of it.
func (r ReadResponse) Truncated() bool {
	return r.Flags&ReadTruncated != 0 || int(r.Length) > r.Copied
}

// WriteResponse is the decoded payload of a Write response.
type WriteResponse struct {
	Version byte
	Flags   byte
	Handle  Handle
	Offset  uint32
	Written uint16
}

// InfoResponse is the decoded payload of an Info response.
type InfoResponse struct {
	Version       byte
	Flags         InfoFlags
	Handle        Handle
	HTTPStatus    uint16
	ContentLength uint64
}

// HasLength reports whether ContentLength is valid.
func (r InfoResponse) HasLength() bool { return r.Flags&InfoHasLength != 0 }

// HasStatus reports whether HTTPStatus is valid.
func (r InfoResponse) HasStatus() bool { return r.Flags&InfoHasStatus != 0 }

// Connected reports whether a TCP session is connected.
func (r InfoResponse) Connected() bool { return r.Flags&InfoConnected != 0 }

// PeerClosed reports whether the TCP peer closed its side.
func (r InfoResponse) PeerClosed() bool { return r.Flags&InfoPeerClosed != 0 }

// DecodeOpenPayload decodes the payload of a successful Open response.
func DecodeOpenPayload(payload []byte) (OpenResponse, error) {
	if len(payload) < openResponseMin {
		return OpenResponse{}, shortPayload("open", len(payload), openResponseMin)
	}

	return OpenResponse{
		Version: payload[0],
		Flags:   OpenRespFlags(payload[1]),
		Handle:  Handle(binary.LittleEndian.Uint16(payload[4:6])),
	}, nil
}

// DecodeReadPayload decodes the payload of a successful Read response and
// copies min(Length, len(dst)) data bytes into dst. A reported length larger
// than the data actually present fails with StatusInvalid.
func DecodeReadPayload(payload, dst []byte) (ReadResponse, error) {
	if len(payload) < readResponseMin {
		return ReadResponse{}, shortPayload("read", len(payload), readResponseMin)
	}

	r := ReadResponse{
		Version: payload[0],
		Flags:   ReadFlags(payload[1]),
		Handle:  Handle(binary.LittleEndian.Uint16(payload[4:6])),
		Offset:  binary.LittleEndian.Uint32(payload[6:10]),
		Length:  binary.LittleEndian.Uint16(payload[10:12]),
	}

	data := payload[readResponseMin:]
	if int(r.Length) > len(data) {
		return ReadResponse{}, fmt.Errorf("%w: read length %d exceeds %d payload bytes", StatusInvalid, r.Length, len(data))
	}
	r.Copied = copy(dst, data[:r.Length])

	return r, nil
}

// DecodeWritePayload decodes the payload of a successful Write response.
func DecodeWritePayload(payload []byte) (WriteResponse, error) {
	if len(payload) < writeResponseMin {
		return WriteResponse{}, shortPayload("write", len(payload), writeResponseMin)
	}

	return WriteResponse{
		Version: payload[0],
		Flags:   payload[1],
		Handle:  Handle(binary.LittleEndian.Uint16(payload[4:6])),
		Offset:  binary.LittleEndian.Uint32(payload[6:10]),
		Written: binary.LittleEndian.Uint16(payload[10:12]),
	}, nil
}

// DecodeInfoPayload decodes the payload of a successful Info response.
// Payloads shorter than the full form carry flags and handle only.
func DecodeInfoPayload(payload []byte) (InfoResponse, error) {
	if len(payload) < infoResponseMin {
		return InfoResponse{}, shortPayload("info", len(payload), infoResponseMin)
	}

	r := InfoResponse{
		Version: payload[0],
		Flags:   InfoFlags(payload[1]),
		Handle:  Handle(binary.LittleEndian.Uint16(payload[4:6])),
	}
	if len(payload) >= infoResponseFull {
		r.HTTPStatus = binary.LittleEndian.Uint16(payload[6:8])
		r.ContentLength = binary.LittleEndian.Uint64(payload[8:16])
	}

	return r, nil
}

// ParseOpenResponse validates an Open response packet and decodes its payload.
func ParseOpenResponse(pkt []byte) (OpenResponse, error) {
	hdr, err := parseOK(pkt)
	if err != nil {
		return OpenResponse{}, err
	}

	return DecodeOpenPayload(hdr.Payload)
}

// ParseReadResponse validates a Read response packet and copies its data into dst.
func ParseReadResponse(pkt, dst []byte) (ReadResponse, error) {
	hdr, err := parseOK(pkt)
	if err != nil {
		return ReadResponse{}, err
	}

	return DecodeReadPayload(hdr.Payload, dst)
}

// ParseWriteResponse validates a Write response packet and decodes its payload.
func ParseWriteResponse(pkt []byte) (WriteResponse, error) {
	hdr, err := parseOK(pkt)
	if err != nil {
		return WriteResponse{}, err
	}

	return DecodeWritePayload(hdr.Payload)
}

// ParseInfoResponse validates an Info response packet and decodes its payload.
func ParseInfoResponse(pkt []byte) (InfoResponse, error) {
	hdr, err := parseOK(pkt)
	if err != nil {
		return InfoResponse{}, err
	}

	return DecodeInfoPayload(hdr.Payload)
}

// ParseCloseResponse validates a Close response packet and returns its status.
func ParseCloseResponse(pkt []byte) error {
	_, err := parseOK(pkt)
	return err
}

// parseOK parses the header and turns a non-OK embedded status into an error.
func parseOK(pkt []byte) (ResponseHeader, error) {
	hdr, err := ParseResponseHeader(pkt)
	if err != nil {
		return hdr, err
	}

	return hdr, hdr.Status.Err()
}

func shortPayload(kind string, got, want int) error {
	return fmt.Errorf("%w: %s payload %d bytes, need %d", StatusInvalid, kind, got, want)
}

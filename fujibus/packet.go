package fujibus

import (
	"encoding/binary"
	"fmt"
)

// Param is a packet parameter descriptor.
type Param struct {
	Size  uint8 // significant bytes of Value: 1, 2 or 4
	Value uint16
}

// StatusParam returns the parameter that carries a response status.
func StatusParam(s Status) Param {
	return Param{Size: 1, Value: uint16(s)}
}

// Packet is a validated view over an encoded FujiBus packet. Payload aliases
// the buffer the packet was parsed from.
type Packet struct {
	Device     DeviceID
	Command    Command
	ParamCount int
	Params     [MaxParams]Param
	Checksum   byte

	// PayloadOffset is the index of the first payload byte. PayloadOffset +
	// len(Payload) always equals the packet length.
	PayloadOffset int
	Payload       []byte
}

// ParamValue returns the value of parameter i and whether it is present.
func (p *Packet) ParamValue(i int) (uint16, bool) {
	if i < 0 || i >= p.ParamCount {
		return 0, false
	}

	return p.Params[i].Value, true
}

// Status returns the status embedded in a response: the low byte of
// parameter 0, or StatusOK when the packet has no parameters.
func (p *Packet) Status() Status {
	if p.ParamCount == 0 {
		return StatusOK
	}

	return Status(p.Params[0].Value & 0xFF)
}

// PacketSize returns the encoded size of a packet with the given parameter
// count and payload length.
func PacketSize(paramCount, dataLen int) int {
	return HeaderSize + ParamSize*paramCount + dataLen
}

// ParsePacket validates pkt and returns a view over it.
//
// Validation order: minimum length and parameter count (StatusInvalid),
// declared length against actual length (StatusInvalid), then checksum (StatusIO).
func ParsePacket(pkt []byte) (Packet, error) {
	var p Packet

	if len(pkt) < HeaderSize {
		return p, fmt.Errorf("%w: packet too short (%d bytes)", StatusInvalid, len(pkt))
	}

	pc := int(pkt[2])
	if pc > MaxParams {
		return p, fmt.Errorf("%w: param count %d exceeds %d", StatusInvalid, pc, MaxParams)
	}

	dataLen := int(binary.LittleEndian.Uint16(pkt[4:6]))
	if want := PacketSize(pc, dataLen); want != len(pkt) {
		return p, fmt.Errorf("%w: declared length %d, got %d", StatusInvalid, want, len(pkt))
	}

	if !VerifyChecksum(pkt) {
		return p, fmt.Errorf("%w: checksum mismatch", StatusIO)
	}

	p.Device = DeviceID(pkt[0])
	p.Command = Command(pkt[1])
	p.ParamCount = pc
	p.Checksum = pkt[ChecksumOffset]
	for i := range pc {
		off := HeaderSize + i*ParamSize
		p.Params[i] = Param{
			Size:  pkt[off],
			Value: binary.LittleEndian.Uint16(pkt[off+2 : off+4]),
		}
	}
	p.PayloadOffset = HeaderSize + pc*ParamSize
	p.Payload = pkt[p.PayloadOffset:]

	return p, nil
}

// BuildPacket encodes a complete packet into dst and returns its length.
// It fails with StatusInvalid when there are more than MaxParams parameters
// or the packet exceeds MaxPacketSize or len(dst).
func BuildPacket(dst []byte, device DeviceID, cmd Command, params []Param, payload []byte) (int, error) {
	if len(params) > MaxParams {
		return 0, fmt.Errorf("%w: %d params exceeds %d", StatusInvalid, len(params), MaxParams)
	}

	off, err := beginPacket(dst, device, cmd, params, len(payload))
	if err != nil {
		return 0, err
	}
	copy(dst[off:], payload)

	return finishPacket(dst, off+len(payload)), nil
}

// beginPacket writes the header and parameters for a packet with a dataLen
// byte payload and returns the payload offset.
func beginPacket(dst []byte, device DeviceID, cmd Command, params []Param, dataLen int) (int, error) {
	total := PacketSize(len(params), dataLen)
	if total > MaxPacketSize {
		return 0, fmt.Errorf("%w: packet size %d exceeds %d", StatusInvalid, total, MaxPacketSize)
	}
	if total > len(dst) {
		return 0, fmt.Errorf("%w: packet size %d exceeds buffer size %d", StatusInvalid, total, len(dst))
	}

	dst[0] = byte(device)
	dst[1] = byte(cmd)
	dst[2] = byte(len(params))
	dst[3] = 0
	binary.LittleEndian.PutUint16(dst[4:6], uint16(dataLen)) //nolint:gosec // bounded by MaxPacketSize

	off := HeaderSize
	for _, p := range params {
		dst[off] = p.Size
		dst[off+1] = 0
		binary.LittleEndian.PutUint16(dst[off+2:off+4], p.Value)
		off += ParamSize
	}

	return off, nil
}

func finishPacket(dst []byte, n int) int {
	seal(dst[:n])
	return n
}

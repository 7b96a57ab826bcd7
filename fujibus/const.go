package fujibus

import (
	"fmt"
	"strings"
)

// Packet geometry and protocol limits.
const (
	// HeaderSize is the size of the fixed packet header.
	HeaderSize = 6
	// ParamSize is the size of one parameter descriptor.
	ParamSize = 4
	// MaxParams is the maximum number of parameter descriptors in a packet.
	MaxParams = 4
	// MaxPacketSize is the maximum size of an unframed packet.
	MaxPacketSize = 1024
	// MaxURLLen is the maximum URL length accepted by Open.
	MaxURLLen = 256
	// MaxChunkSize is the maximum number of data bytes requested by one Read.
	MaxChunkSize = 512

	// MaxFrameSize is the worst-case SLIP-encoded size of a MaxPacketSize packet.
	MaxFrameSize = 2*MaxPacketSize + 2

	// ChecksumOffset is the position of the checksum byte in the header.
	ChecksumOffset = 3
)

// ProtocolVersion is the version byte carried at the start of every network payload.
const ProtocolVersion byte = 0x01

// Convention identifies a FujiBus header convention.
type Convention uint8

const (
	// FramingParamCount is the header layout with a parameter count at offset 2
	// and an XOR checksum at offset 3.
	FramingParamCount Convention = iota + 1
	// FramingDescriptor is the descriptor/length layout with an additive
	// checksum. It is used by other FujiNet device classes and is not
	// implemented by this package.
	FramingDescriptor
)

// Framing is the header convention implemented by this package.
const Framing = FramingParamCount

func (c Convention) String() string {
	switch c {
	case FramingParamCount:
		return "param-count/xor"
	case FramingDescriptor:
		return "descriptor/sum"
	default:
		return "unknown"
	}
}

// DeviceID selects the logical device a packet is addressed to.
type DeviceID uint8

const (
	DeviceFuji    DeviceID = 0x70
	DeviceDisk    DeviceID = 0xFC
	DeviceNetwork DeviceID = 0xFD
	DeviceFile    DeviceID = 0xFE
)

func (d DeviceID) String() string {
	switch d {
	case DeviceFuji:
		return "fuji"
	case DeviceDisk:
		return "disk"
	case DeviceNetwork:
		return "network"
	case DeviceFile:
		return "file"
	default:
		return fmt.Sprintf("device(0x%02X)", uint8(d))
	}
}

// Command is the operation requested from a device.
type Command uint8

const (
	CmdOpen  Command = 0x01
	CmdRead  Command = 0x02
	CmdWrite Command = 0x03
	CmdClose Command = 0x04
	CmdInfo  Command = 0x05
)

func (c Command) String() string {
	switch c {
	case CmdOpen:
		return "open"
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdClose:
		return "close"
	case CmdInfo:
		return "info"
	default:
		return fmt.Sprintf("cmd(0x%02X)", uint8(c))
	}
}

// Handle identifies a session on the device. Handles are assigned by the
// device; InvalidHandle is never a valid session.
type Handle uint16

// InvalidHandle is the zero handle.
const InvalidHandle Handle = 0

// Method is the HTTP method of an Open request. MethodNone opens a raw TCP stream.
type Method uint8

const (
	MethodNone   Method = 0
	MethodGet    Method = 1
	MethodPost   Method = 2
	MethodPut    Method = 3
	MethodDelete Method = 4
	MethodHead   Method = 5
)

var methodNames = [...]string{"", "GET", "POST", "PUT", "DELETE", "HEAD"}

// String returns the HTTP method name, or "TCP" for MethodNone.
func (m Method) String() string {
	if m == MethodNone {
		return "TCP"
	}
	if int(m) < len(methodNames) {
		return methodNames[m]
	}

	return fmt.Sprintf("method(%d)", uint8(m))
}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return int(m) < len(methodNames)
}

// HasBody reports whether requests using m carry a body written after open.
func (m Method) HasBody() bool {
	return m == MethodPost || m == MethodPut
}

// ParseMethod parses an HTTP method name, case-insensitively.
func ParseMethod(s string) (Method, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range methodNames {
		if i > 0 && name == s {
			return Method(i), nil
		}
	}

	return MethodNone, fmt.Errorf("%w: unknown method %q", StatusInvalid, s)
}

// OpenFlags are the wire flags of an Open request.
type OpenFlags uint8

const (
	OpenTLS            OpenFlags = 0x01
	OpenFollowRedirect OpenFlags = 0x02
	// OpenBodyUnknown announces a request body of unknown length. It is a wire
	// flag only and is never set from user flags.
	OpenBodyUnknown OpenFlags = 0x04
	// OpenAllowEvict permits the device to evict an idle session to make room.
	OpenAllowEvict OpenFlags = 0x08
)

// OpenRespFlags are the flags of an Open response.
type OpenRespFlags uint8

const (
	OpenAccepted  OpenRespFlags = 0x01
	OpenNeedsBody OpenRespFlags = 0x02
)

// ReadFlags are the flags of a Read response.
type ReadFlags uint8

const (
	ReadEOF       ReadFlags = 0x01
	ReadTruncated ReadFlags = 0x02
)

// InfoFlags are the flags of an Info response.
type InfoFlags uint8

const (
	InfoHeaders    InfoFlags = 0x01
	InfoHasLength  InfoFlags = 0x02
	InfoHasStatus  InfoFlags = 0x04
	InfoConnected  InfoFlags = 0x10
	InfoPeerClosed InfoFlags = 0x20
)

// Capability classes reported by network sessions.
const (
	// CapabilityHTTP marks random-access sessions whose offsets are informational.
	CapabilityHTTP byte = 0x00
	// CapabilityStream marks TCP/TLS sessions with strictly sequential offsets.
	CapabilityStream byte = 0x07
)

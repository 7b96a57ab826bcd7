package network

import (
	"strings"

	"github.com/arloliu/go-fujibus/fujibus"
)

// MaxSessions is the number of sessions a Client tracks at once.
const MaxSessions = 4

// SessionClass distinguishes random-access HTTP sessions from streaming
// TCP/TLS sessions.
type SessionClass uint8

const (
	ClassHTTP SessionClass = iota
	ClassTCP
)

func (c SessionClass) String() string {
	if c == ClassTCP {
		return "tcp"
	}

	return "http"
}

// Capabilities returns the protocol capability bits of the class.
func (c SessionClass) Capabilities() byte {
	if c == ClassTCP {
		return fujibus.CapabilityStream
	}

	return fujibus.CapabilityHTTP
}

// Sequential reports whether offsets must advance strictly in order.
func (c SessionClass) Sequential() bool {
	return c.Capabilities()&fujibus.CapabilityStream != 0
}

// classifyURL returns ClassTCP for raw socket URLs.
func classifyURL(url string) SessionClass {
	if len(url) >= 6 && strings.EqualFold(url[:6], "tcp://") {
		return ClassTCP
	}

	return ClassHTTP
}

// SessionState is the lifecycle state of a session slot.
//
//	Opening -> Open -> [NeedsBody] -> Active -> Closing -> Closed
type SessionState uint8

const (
	// StateClosed marks a free slot.
	StateClosed SessionState = iota
	StateOpening
	StateOpen
	StateNeedsBody
	StateActive
	StateClosing
)

func (st SessionState) String() string {
	switch st {
	case StateClosed:
		return "Closed"
	case StateOpening:
		return "Opening"
	case StateOpen:
		return "Open"
	case StateNeedsBody:
		return "NeedsBody"
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Session is the client-side record of an open device session.
type Session struct {
	Handle fujibus.Handle
	State  SessionState
	Class  SessionClass
	Method fujibus.Method

	// NeedsBody is set when the device asked for a request body on open.
	NeedsBody bool
	// WriteClosed is set once a zero-length write half-closed the session.
	WriteClosed bool

	WriteOffset uint32
	ReadOffset  uint32
}

// Active reports whether the slot holds a session.
func (s *Session) Active() bool {
	return s.State != StateClosed
}

func (s *Session) toOpened(h fujibus.Handle, needsBody bool) {
	s.Handle = h
	s.NeedsBody = needsBody
	if needsBody {
		s.State = StateNeedsBody
	} else {
		s.State = StateOpen
	}
}

// advanceWrite records a successful write of n bytes. A zero-length write
// completes the request body or half-closes the stream.
func (s *Session) advanceWrite(requested, written int) {
	s.WriteOffset += uint32(written) //nolint:gosec // bounded by MaxPacketSize
	if requested == 0 {
		s.WriteClosed = true
		s.NeedsBody = false
		s.State = StateActive

		return
	}

	if s.State == StateOpen {
		s.State = StateActive
	}
}

func (s *Session) advanceRead(n int) {
	if s.Class == ClassTCP && n > 0 {
		s.ReadOffset += uint32(n) //nolint:gosec // bounded by MaxChunkSize
	}
	if s.State == StateOpen {
		s.State = StateActive
	}
}

package fujibus

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Status is a FujiBus result code. Non-OK values implement error, so a
// status returned by the device can be propagated and compared with
// errors.Is even after wrapping.
type Status uint8

const (
	StatusOK          Status = 0x00
	StatusNotFound    Status = 0x01
	StatusInvalid     Status = 0x02
	StatusBusy        Status = 0x03
	StatusNotReady    Status = 0x04
	StatusIO          Status = 0x05
	StatusTimeout     Status = 0x06
	StatusInternal    Status = 0x07
	StatusUnsupported Status = 0x08
	StatusTransport   Status = 0x10
	StatusURLTooLong  Status = 0x11
	StatusNoHandles   Status = 0x12
	StatusUnknown     Status = 0xFF
)

var statusNames = map[Status]string{
	StatusOK:          "ok",
	StatusNotFound:    "not found",
	StatusInvalid:     "invalid",
	StatusBusy:        "busy",
	StatusNotReady:    "not ready",
	StatusIO:          "i/o error",
	StatusTimeout:     "timeout",
	StatusInternal:    "internal error",
	StatusUnsupported: "unsupported",
	StatusTransport:   "transport error",
	StatusURLTooLong:  "url too long",
	StatusNoHandles:   "no free handles",
	StatusUnknown:     "unknown error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status(0x%02X)", uint8(s))
}

func (s Status) Error() string {
	return "fujibus: " + s.String()
}

// Err returns nil for StatusOK and s otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}

	return s
}

// StatusOf maps err to a Status.
//
// It returns StatusOK for nil, the wrapped Status if err carries one,
// StatusTimeout for deadline errors, and StatusTransport for anything else.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}

	var s Status
	if errors.As(err, &s) {
		return s
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return StatusTimeout
	}

	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return StatusTimeout
	}

	return StatusTransport
}

package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.bug.st/serial"
)

// link is the byte stream under a StreamPort.
type link interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	// drain blocks until written bytes have left the host.
	drain() error
	// resetInput discards bytes received but not yet read.
	resetInput() error
}

// connLink adapts a net.Conn. Sockets carry no local echo, so there is
// nothing to drain or flush.
type connLink struct {
	net.Conn
}

func (connLink) drain() error      { return nil }
func (connLink) resetInput() error { return nil }

// serialLink adapts a serial port. The port only knows a per-read timeout,
// so deadlines are emulated by polling in steps of at most poll.
type serialLink struct {
	port serial.Port
	poll time.Duration

	mu       sync.Mutex
	deadline time.Time
}

func newSerialLink(port serial.Port, poll time.Duration) *serialLink {
	return &serialLink{port: port, poll: poll}
}

func (l *serialLink) Read(p []byte) (int, error) {
	for {
		l.mu.Lock()
		deadline := l.deadline
		l.mu.Unlock()

		wait := l.poll
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			wait = min(wait, remaining)
		}

		if err := l.port.SetReadTimeout(wait); err != nil {
			return 0, err
		}

		// a poll that expires returns (0, nil)
		n, err := l.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (l *serialLink) Write(p []byte) (int, error) {
	return l.port.Write(p)
}

func (l *serialLink) Close() error {
	return l.port.Close()
}

func (l *serialLink) SetReadDeadline(t time.Time) error {
	l.mu.Lock()
	l.deadline = t
	l.mu.Unlock()

	return nil
}

// SetWriteDeadline is a no-op: serial writes complete at line speed.
func (l *serialLink) SetWriteDeadline(time.Time) error {
	return nil
}

func (l *serialLink) drain() error {
	return l.port.Drain()
}

func (l *serialLink) resetInput() error {
	return l.port.ResetInputBuffer()
}

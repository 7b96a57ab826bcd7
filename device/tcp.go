package device

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/arloliu/go-fujibus/fujibus"
)

// tcpSession is a raw TCP stream. Offsets on both directions are
// sequential; a zero-length write half-closes the sending side.
type tcpSession struct {
	conn     net.Conn
	readWait time.Duration

	writeOffset uint32
	readOffset  uint32
	writeClosed bool
	peerClosed  bool
}

func (d *Device) openTCP(ctx context.Context, r fujibus.OpenRequest) (*tcpSession, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, statusErr(fujibus.StatusInvalid, "bad url: %v", err)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, statusErr(fujibus.StatusInvalid, "tcp url needs host and port: %s", r.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.dialTimeout)
	defer cancel()

	var conn net.Conn
	if r.Flags&fujibus.OpenTLS != 0 {
		cfg := d.cfg.tlsConfig.Clone()
		if cfg == nil {
			cfg = &tls.Config{} //nolint:gosec // defaults to system roots
		}
		if cfg.ServerName == "" {
			cfg.ServerName = u.Hostname()
		}
		dialer := &tls.Dialer{Config: cfg}
		conn, err = dialer.DialContext(ctx, "tcp", u.Host)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", u.Host)
	}
	if err != nil {
		return nil, statusErr(fujibus.StatusIO, "dial %s: %v", u.Host, err)
	}

	return &tcpSession{conn: conn, readWait: d.cfg.readWait}, nil
}

func (s *tcpSession) write(_ context.Context, offset uint32, data []byte) (int, error) {
	if offset != s.writeOffset {
		return 0, statusErr(fujibus.StatusInvalid, "write offset %d, expected %d", offset, s.writeOffset)
	}

	if len(data) == 0 {
		if !s.writeClosed {
			s.writeClosed = true
			if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
				if err := cw.CloseWrite(); err != nil {
					return 0, statusErr(fujibus.StatusIO, "half-close: %v", err)
				}
			}
		}

		return 0, nil
	}

	if s.writeClosed {
		return 0, statusErr(fujibus.StatusInvalid, "write after half-close")
	}

	n, err := s.conn.Write(data)
	s.writeOffset += uint32(n) //nolint:gosec // n <= len(data)
	if err != nil && n == 0 {
		return 0, statusErr(fujibus.StatusIO, "write: %v", err)
	}

	return n, nil
}

func (s *tcpSession) read(_ context.Context, offset uint32, dst []byte) (int, fujibus.ReadFlags, error) {
	if offset != s.readOffset {
		return 0, 0, statusErr(fujibus.StatusInvalid, "read offset %d, expected %d", offset, s.readOffset)
	}
	if s.peerClosed {
		return 0, fujibus.ReadEOF, nil
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(s.readWait))
	n, err := s.conn.Read(dst)
	s.readOffset += uint32(n) //nolint:gosec // n <= len(dst)

	switch {
	case err == nil:
		return n, 0, nil
	case errors.Is(err, io.EOF):
		s.peerClosed = true
		return n, fujibus.ReadEOF, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		if n > 0 {
			return n, 0, nil
		}

		return 0, 0, statusErr(fujibus.StatusNotReady, "no data within %v", s.readWait)
	default:
		if n > 0 {
			return n, 0, nil
		}

		return 0, 0, statusErr(fujibus.StatusIO, "read: %v", err)
	}
}

func (s *tcpSession) info() (fujibus.InfoFlags, uint16, uint64) {
	var flags fujibus.InfoFlags
	if s.peerClosed {
		flags |= fujibus.InfoPeerClosed
	} else {
		flags |= fujibus.InfoConnected
	}

	return flags, 0, 0
}

func (s *tcpSession) close() error {
	return s.conn.Close()
}

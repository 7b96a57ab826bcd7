package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/internal/task"
	"github.com/arloliu/go-fujibus/network"
	"github.com/arloliu/go-fujibus/slip"
)

// handleFrame answers one SLIP frame and writes the SLIP-framed response
// into out, returning its length or zero when there is nothing to send.
func (d *Device) handleFrame(ctx context.Context, frame []byte, out []byte) int {
	var pkt, resp [fujibus.MaxPacketSize]byte

	n, err := slip.Decode(pkt[:], frame)
	if err != nil {
		d.metrics.incFrameErrCount()
		d.logger.Debug("dropping undecodable frame", "len", len(frame), "error", err)

		return 0
	}

	m := d.handle(ctx, pkt[:n], resp[:])
	if m == 0 {
		return 0
	}

	k, err := slip.Encode(out, resp[:m])
	if err != nil {
		d.logger.Error("failed to frame response", "error", err)
		return 0
	}

	return k
}

// Serve answers frames arriving on conn until the peer disconnects or ctx
// is done. It does not close conn on return unless ctx was cancelled.
func (d *Device) Serve(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	rd := slip.NewReader(conn)

	var frame, out [fujibus.MaxFrameSize]byte
	for {
		n, err := rd.ReadFrame(frame[:])
		if err != nil {
			if errors.Is(err, slip.ErrFrameTooLarge) {
				d.metrics.incFrameErrCount()
				d.logger.Warn("dropping oversized frame")

				continue
			}
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}

			return fmt.Errorf("device: read frame: %w", err)
		}

		m := d.handleFrame(ctx, frame[:n], out[:])
		if m == 0 {
			continue
		}

		if _, err := conn.Write(out[:m]); err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}

			return fmt.Errorf("device: write frame: %w", err)
		}
	}
}

// ServeListener accepts connections on ln and serves each one concurrently
// until ctx is done or ln is closed. It waits for open connections to finish.
func (d *Device) ServeListener(ctx context.Context, ln net.Listener) error {
	mgr := task.NewManager(ctx, d.logger)
	defer func() {
		mgr.Stop()
		mgr.Wait()
	}()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	d.logger.Info("serving", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("device: accept: %w", err)
		}

		remote := conn.RemoteAddr().String()
		d.logger.Info("connection accepted", "remote", remote)

		err = mgr.Go(remote, func(ctx context.Context) {
			defer conn.Close()

			if err := d.Serve(ctx, conn); err != nil {
				d.logger.Warn("connection failed", "remote", remote, "error", err)
			}
			d.logger.Info("connection closed", "remote", remote)
		})
		if err != nil {
			_ = conn.Close()
			return nil
		}
	}
}

// WebSocketHandler returns an HTTP handler bridging WebSocket clients to
// the device, one SLIP frame per binary message.
func (d *Device) WebSocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		d.logger.Info("websocket connected", "remote", r.RemoteAddr)

		var out [fujibus.MaxFrameSize]byte
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}

			n := d.handleFrame(r.Context(), msg, out[:])
			if n == 0 {
				continue
			}

			if err := conn.WriteMessage(websocket.BinaryMessage, out[:n]); err != nil {
				return
			}
		}
	})
}

// Loopback returns a Port that answers frames in-process.
func (d *Device) Loopback() network.Port {
	return network.PortFunc(func(ctx context.Context, frame []byte, resp []byte) (int, error) {
		n := d.handleFrame(ctx, frame, resp)
		if n == 0 {
			return 0, fmt.Errorf("%w: no response from device", fujibus.StatusTimeout)
		}

		return n, nil
	})
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

package network

import "context"

// Port is the byte-stream collaborator a Client exchanges frames with.
//
// Exchange sends one complete SLIP frame and writes one complete SLIP frame
// received in reply into resp, returning its length. It must bound its own
// wait and return a timeout or I/O error when no valid frame arrives; the
// error is passed to the Client's caller unchanged.
//
// A Port owns the physical medium: device readiness, timing and any retry
// policy live behind it.
type Port interface {
	Exchange(ctx context.Context, frame []byte, resp []byte) (int, error)
}

// PortFunc adapts an ordinary function to the Port interface.
type PortFunc func(ctx context.Context, frame []byte, resp []byte) (int, error)

// Exchange calls f(ctx, frame, resp).
func (f PortFunc) Exchange(ctx context.Context, frame []byte, resp []byte) (int, error) {
	return f(ctx, frame, resp)
}

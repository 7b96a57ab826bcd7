package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/internal/pool"
	"github.com/arloliu/go-fujibus/network"
)

const (
	defaultIdle = 2 * time.Second
	readPoll    = 50 * time.Millisecond
)

// readSummary describes a completed readBody call.
type readSummary struct {
	N         int64
	EOF       bool
	Truncated bool
}

// readBody copies the session's response to w until the device reports EOF
// or no data arrives for idle.
func readBody(ctx context.Context, client *network.Client, h fujibus.Handle, w io.Writer, idle time.Duration) (readSummary, error) {
	var sum readSummary

	buf := make([]byte, fujibus.MaxChunkSize)
	lastData := time.Now()

	for {
		res, err := client.Read(ctx, h, uint32(sum.N), buf) //nolint:gosec // offsets are 32-bit on the wire
		if err != nil && !errors.Is(err, fujibus.StatusNotReady) {
			return sum, err
		}

		if res.N > 0 {
			if _, werr := w.Write(buf[:res.N]); werr != nil {
				return sum, werr
			}
			sum.N += int64(res.N)
			lastData = time.Now()
		}
		sum.Truncated = sum.Truncated || res.Truncated

		if err == nil && res.EOF {
			sum.EOF = true
			return sum, nil
		}

		if res.N == 0 {
			if time.Since(lastData) >= idle {
				return sum, nil
			}
			if err := pool.Sleep(ctx, readPoll); err != nil {
				return sum, err
			}
		}
	}
}

// writeBody sends everything from r to the session, then the zero-length
// write that ends the body or half-closes the stream.
func writeBody(ctx context.Context, client *network.Client, h fujibus.Handle, r io.Reader) (int64, error) {
	var off uint32

	buf := make([]byte, fujibus.MaxWriteData)
	for {
		n, rerr := r.Read(buf)
		chunk := buf[:n]
		for len(chunk) > 0 {
			w, err := client.Write(ctx, h, off, chunk)
			if err != nil {
				return int64(off), err
			}
			if w == 0 {
				return int64(off), fmt.Errorf("%w: device accepted no data", fujibus.StatusIO)
			}
			off += uint32(w) //nolint:gosec // w <= MaxWriteData
			chunk = chunk[w:]
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return int64(off), rerr
		}
	}

	if _, err := client.Write(ctx, h, off, nil); err != nil {
		return int64(off), err
	}

	return int64(off), nil
}

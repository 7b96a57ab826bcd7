package slip

import (
	"bufio"
	"io"
)

// Reader extracts complete SLIP frames from a byte stream.
//
// Bytes received before the first END are line noise and are discarded.
// Back-to-back END bytes delimit empty frames, which are skipped, so a frame
// returned by ReadFrame always carries at least one payload byte.
//
// Reader is not safe for concurrent use.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader that reads frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Reset discards any buffered bytes and switches the reader to r.
func (r *Reader) Reset(rd io.Reader) {
	r.br.Reset(rd)
}

// Buffered returns the number of bytes that have been read from the
// underlying stream but not consumed yet.
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}

// ReadFrame reads the next complete frame, including both END delimiters,
// into dst and returns its length.
//
// Errors from the underlying reader (including deadline errors) are returned
// as-is; any partially received frame is dropped. If the frame does not fit
// in dst, the remainder of the frame is consumed and ErrFrameTooLarge is returned.
func (r *Reader) ReadFrame(dst []byte) (int, error) {
	if len(dst) < 3 {
		return 0, ErrShortBuffer
	}

	// Hunt for the opening delimiter.
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == End {
			break
		}
	}

	n := 1
	dst[0] = End
	overflow := false

	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}

		if b == End {
			if n == 1 {
				// Empty frame: treat this END as the new opening delimiter.
				continue
			}
			if overflow {
				return 0, ErrFrameTooLarge
			}
			dst[n] = End
			n++

			return n, nil
		}

		// Reserve one byte for the closing END.
		if n >= len(dst)-1 {
			overflow = true
			continue
		}
		dst[n] = b
		n++
	}
}

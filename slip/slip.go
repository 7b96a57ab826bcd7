// Package slip implements SLIP (RFC 1055) framing as used on the FujiBus link.
//
// A frame on the wire is END, the escaped payload, END. Inside the payload
// every END byte is sent as ESC ESC_END and every ESC byte as ESC ESC_ESC, so
// an END byte on the wire always marks a frame boundary.
//
// Encode and Decode work on caller-provided buffers and never allocate. The
// worst-case encoded size of an n-byte payload is MaxEncodedSize(n) = 2n + 2.
package slip

import "errors"

// SLIP special bytes.
const (
	End    byte = 0xC0 // frame delimiter
	Esc    byte = 0xDB // escape prefix
	EscEnd byte = 0xDC // ESC ESC_END decodes to END
	EscEsc byte = 0xDD // ESC ESC_ESC decodes to ESC
)

var (
	// ErrShortBuffer is returned when the destination buffer cannot hold the result.
	ErrShortBuffer = errors.New("slip: destination buffer too small")
	// ErrTruncatedEscape is returned when a frame ends right after an ESC byte.
	ErrTruncatedEscape = errors.New("slip: truncated escape sequence")
	// ErrInvalidEscape is returned when ESC is followed by a byte other than ESC_END or ESC_ESC.
	ErrInvalidEscape = errors.New("slip: invalid escape sequence")
	// ErrFrameTooLarge is returned by Reader when a frame exceeds the caller's buffer.
	ErrFrameTooLarge = errors.New("slip: frame too large")
)

// MaxEncodedSize returns the worst-case encoded size of an n-byte payload:
// every byte escaped plus the two delimiters.
func MaxEncodedSize(n int) int {
	return 2*n + 2
}

// EncodedSize returns the exact encoded size of src.
func EncodedSize(src []byte) int {
	n := 2
	for _, b := range src {
		if b == End || b == Esc {
			n += 2
		} else {
			n++
		}
	}

	return n
}

// Encode writes the SLIP frame for src into dst and returns the number of
// bytes written. dst must not overlap src.
func Encode(dst, src []byte) (int, error) {
	if len(dst) < MaxEncodedSize(len(src)) && len(dst) < EncodedSize(src) {
		return 0, ErrShortBuffer
	}

	n := 0
	dst[n] = End
	n++

	for _, b := range src {
		switch b {
		case End:
			dst[n], dst[n+1] = Esc, EscEnd
			n += 2
		case Esc:
			dst[n], dst[n+1] = Esc, EscEsc
			n += 2
		default:
			dst[n] = b
			n++
		}
	}

	dst[n] = End
	n++

	return n, nil
}

// Decode strips the SLIP framing from frame and writes the payload into dst.
//
// Leading END bytes are skipped; decoding stops at the next END byte or at
// the end of frame, whichever comes first. It returns the payload length.
func Decode(dst, frame []byte) (int, error) {
	i := 0
	for i < len(frame) && frame[i] == End {
		i++
	}

	n := 0
	for i < len(frame) {
		b := frame[i]
		i++

		if b == End {
			break
		}

		if b == Esc {
			if i >= len(frame) {
				return 0, ErrTruncatedEscape
			}

			switch frame[i] {
			case EscEnd:
				b = End
			case EscEsc:
				b = Esc
			default:
				return 0, ErrInvalidEscape
			}
			i++
		}

		if n >= len(dst) {
			return 0, ErrShortBuffer
		}
		dst[n] = b
		n++
	}

	return n, nil
}

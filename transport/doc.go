// Package transport provides the byte-stream media a network.Client talks
// to a FujiNet device over.
//
// Three media are supported:
//
//   - serial lines through go.bug.st/serial (OpenSerial), the usual link to
//     real hardware over a USB adapter.
//   - TCP streams (DialTCP, NewStreamPort) to a POSIX device build or a
//     serial-over-network bridge.
//   - WebSocket bridges (DialWebSocket), one SLIP frame per binary message.
//
// All ports share a PortConfig built from PortOption values, bound their
// own wait for a response and re-send timed-out requests up to the retry
// limit. Timeouts are reported wrapping fujibus.StatusTimeout and every
// other link failure wrapping fujibus.StatusIO.
package transport

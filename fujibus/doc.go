// Package fujibus implements the FujiBus packet codec used to talk to a
// FujiNet device over a SLIP-framed byte stream.
//
// Packet layout (all multi-byte fields little-endian):
//
//	offset 0  device_id    u8
//	offset 1  command      u8
//	offset 2  param_count  u8  (0..MaxParams)
//	offset 3  checksum     u8  XOR of every other byte
//	offset 4  data_len     u16
//	offset 6  params       param_count x {size u8, reserved u8, value u16}
//	          payload      data_len bytes
//
// The total packet length always equals HeaderSize + ParamSize*param_count + data_len.
// Responses carry the device status in the low byte of parameter 0; a response
// without parameters is successful.
//
// Client side:
//   - BuildOpen, BuildRead, BuildWrite, BuildInfo, BuildClose encode requests
//     into caller buffers.
//   - ParseResponseHeader validates a response and locates its payload.
//   - DecodeOpenPayload, DecodeReadPayload, DecodeWritePayload and
//     DecodeInfoPayload extract the typed response fields, and the Parse*Response
//     helpers combine both steps.
//
// Device side:
//   - ParseRequest, DecodeOpenRequest, DecodeReadRequest, DecodeWriteRequest and
//     DecodeHandleRequest decode requests.
//   - BuildResponse together with the Append*Payload helpers encodes responses.
//
// Protocol outcomes are reported as Status values, which implement error and
// survive fmt.Errorf("%w") wrapping; use StatusOf to recover the code.
package fujibus

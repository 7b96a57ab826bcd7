// Package device implements the device side of the FujiBus network
// protocol: a host-based emulator of the FujiNet network device.
//
// An emulator answers the same requests a FujiNet answers on the serial
// bus. HTTP sessions are carried out with net/http and buffered so reads are
// random access; TCP sessions are proxied to real sockets with sequential
// offsets and half-close on the zero-length write.
//
// A Device can be reached several ways:
//
//	d, _ := device.New(device.WithMaxHandles(8))
//
//	// in-process, for tests and tools
//	client, _ := network.NewClient(d.Loopback())
//
//	// over TCP, as a stand-in for a serial bridge
//	go d.ServeListener(ctx, ln)
//
//	// over WebSocket
//	http.Handle("/fujibus", d.WebSocketHandler())
package device

// Package server accepts WebSocket connections carrying telegraph packets.
//
// Each connection is a stream of binary WebSocket messages. Every message holds
// exactly one protobuf-encoded wire.Packet. The server decodes each message and
// hands the packet to a Handler, strictly in arrival order.
//
// # Connection Lifecycle
//
// A connection goes through three phases:
//  1. Handshake: an HTTP upgrade request is read and answered. AcceptConnection
//     does this on a raw net.Conn; ServeHTTP does it inside net/http.
//  2. Reading: frames are read one by one. Binary frames are decoded and
//     dispatched; the next frame is not read until the handler returns.
//  3. End: the peer closes cleanly (nil), or the connection fails with a
//     *ConnError describing the first problem seen.
//
// Ending kinds:
//
//   - KindHandshakeFailed: the upgrade request was missing or invalid
//   - KindTransport: the stream broke, or closed with an abnormal close code
//   - KindUnexpectedMessage: a text frame (or, with StrictControlFrames, a
//     ping or pong) arrived
//   - KindDecodeFailed: a binary frame did not hold a valid packet
//   - KindHandlerFailed: the handler returned an error under HandlerErrorsClose
//
// A close frame with code 1000, 1001 or no status is a clean end.
//
// # Example Usage
//
//	srv := server.New(nil)
//	srv.SetHandler(server.HandlerFunc(func(ctx context.Context, w server.PacketWriter, p *wire.Packet) error {
//	    log.Printf("conn %d: %s %s", w.ConnID(), p.Type, p.Target)
//	    return nil
//	}))
//
//	ln, _ := net.Listen("tcp", ":28015")
//	srv.Serve(ctx, ln)
//
// # Thread Safety
//
// Server methods are safe for concurrent use. A Handler is called from one
// goroutine per connection, so it must be safe for concurrent use when shared
// between connections. PacketWriter.WritePacket may be called from any
// goroutine.
package server

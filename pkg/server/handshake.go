package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// handshake reads an HTTP upgrade request from a raw stream and completes the
// WebSocket upgrade on it.
func (s *Server) handshake(netConn net.Conn) (*websocket.Conn, error) {
	timeout := s.config.ConnConfig.HandshakeTimeout
	if timeout > 0 {
		if err := netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	br := bufio.NewReaderSize(netConn, s.config.ReadBufferSize)
	req, err := http.ReadRequest(br)
	if err != nil {
		if !errors.Is(err, io.EOF) && !isTimeout(err) {
			io.WriteString(netConn, "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n")
		}
		return nil, fmt.Errorf("read upgrade request: %w", err)
	}
	req.RemoteAddr = netConn.RemoteAddr().String()

	rw := &hijackResponse{
		conn:   netConn,
		brw:    bufio.NewReadWriter(br, bufio.NewWriterSize(netConn, s.config.WriteBufferSize)),
		header: make(http.Header),
	}
	ws, err := s.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		if err := netConn.SetDeadline(time.Time{}); err != nil {
			ws.Close()
			return nil, err
		}
	}
	return ws, nil
}

// hijackResponse is the http.ResponseWriter handed to the upgrader for a raw
// stream. Upgrade hijacks it on success and writes an error response through
// it on failure.
type hijackResponse struct {
	conn        net.Conn
	brw         *bufio.ReadWriter
	header      http.Header
	wroteHeader bool
	hijacked    bool
}

func (w *hijackResponse) Header() http.Header {
	return w.header
}

func (w *hijackResponse) WriteHeader(status int) {
	if w.wroteHeader || w.hijacked {
		return
	}
	w.wroteHeader = true
	w.header.Set("Connection", "close")
	fmt.Fprintf(w.brw, "HTTP/1.1 %03d %s\r\n", status, http.StatusText(status))
	w.header.Write(w.brw)
	w.brw.WriteString("\r\n")
}

func (w *hijackResponse) Write(b []byte) (int, error) {
	if w.hijacked {
		return 0, http.ErrHijacked
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.brw.Write(b)
	if err != nil {
		return n, err
	}
	return n, w.brw.Flush()
}

// Hijack implements http.Hijacker.
func (w *hijackResponse) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacked {
		return nil, nil, http.ErrHijacked
	}
	w.hijacked = true
	return w.conn, w.brw, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

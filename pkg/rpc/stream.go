package rpc

import (
	"context"
	"io"
	"net"

	"github.com/cuemby/avery/pkg/wire"
)

// Stream wraps one call's underlying connection with the small set of
// frame operations both server handlers and the client use.
type Stream struct {
	conn net.Conn
}

func newStream(conn net.Conn) *Stream { return &Stream{conn: conn} }

// Recv reads the next frame.
func (s *Stream) Recv() (Frame, error) {
	return ReadFrame(s.conn)
}

// SendRequest opens the call.
func (s *Stream) SendRequest(method string, payload []byte) error {
	return WriteFrame(s.conn, Frame{Kind: KindRequest, Method: method, Payload: payload})
}

// SendData writes one response/upload-chunk frame.
func (s *Stream) SendData(payload []byte) error {
	return WriteFrame(s.conn, Frame{Kind: KindData, Payload: payload})
}

// SendEnd terminates the stream successfully.
func (s *Stream) SendEnd() error {
	return WriteFrame(s.conn, Frame{Kind: KindEnd})
}

// SendError terminates the stream with a Status.
func (s *Stream) SendError(code, message string) error {
	return WriteFrame(s.conn, Frame{Kind: KindError, Code: code, Message: message})
}

// SendStatus terminates the stream with a full Status, including Scope.
func (s *Stream) SendStatus(st *Status) error {
	return WriteFrame(s.conn, Frame{Kind: KindError, Code: st.Code, Message: st.Message, Scope: st.Scope})
}

// SendValue msgpack-encodes v and sends it as one KindData frame.
func (s *Stream) SendValue(v interface{}) error {
	payload, err := wire.Encode(v)
	if err != nil {
		return err
	}
	return s.SendData(payload)
}

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }

// WatchClosed derives a context from parent that is additionally
// cancelled the moment the peer closes its end of the connection,
// detected by a background read that must never otherwise receive a
// byte. Only safe for calls where the client sends nothing further
// after its initial request frame — a server-streaming call such as
// execute, never a client-streaming one like upload_streamed_attachment,
// whose handler keeps reading request-side frames itself.
func (s *Stream) WatchClosed(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		buf := make([]byte, 1)
		if _, err := s.conn.Read(buf); err != nil {
			cancel()
		}
	}()
	return ctx, cancel
}

var _ io.Closer = (*Stream)(nil)

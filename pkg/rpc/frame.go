package rpc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/avery/pkg/wire"
)

// maxFrameSize bounds a single frame body so a corrupt or hostile
// length prefix can't make a reader allocate without limit.
const maxFrameSize = 64 * 1024 * 1024

// Kind discriminates a Frame's role within one call's bidirectional
// connection (spec §6: "a stream of framed bidirectional connections").
type Kind uint8

const (
	// KindRequest opens the call: Method and Payload are set, sent
	// exactly once as the first frame on a connection.
	KindRequest Kind = iota
	// KindData carries one message of a unary response, one chunk of a
	// server-streamed response, or one chunk of a client-streamed
	// upload. May appear zero or more times.
	KindData
	// KindEnd terminates the stream successfully; no further frames follow.
	KindEnd
	// KindError terminates the stream with Code/Message set.
	KindError
)

// Frame is the unit exchanged over a connection, length-prefixed on
// the wire as a 4-byte big-endian size followed by its msgpack body.
type Frame struct {
	Kind    Kind
	Method  string
	Payload []byte
	Code    string
	Message string
	Scope   string
}

// WriteFrame msgpack-encodes f and writes it to w behind a 4-byte
// big-endian length prefix.
func WriteFrame(w io.Writer, f Frame) error {
	body, err := wire.Encode(f)
	if err != nil {
		return fmt.Errorf("rpc: encode frame: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("rpc: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("rpc: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrameSize {
		return Frame{}, fmt.Errorf("rpc: frame of %d bytes exceeds maximum %d", size, maxFrameSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := wire.Decode(body, &f); err != nil {
		return Frame{}, fmt.Errorf("rpc: decode frame: %w", err)
	}
	return f, nil
}

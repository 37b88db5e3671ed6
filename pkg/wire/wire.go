// Package wire is the single msgpack encoding used everywhere avery
// crosses a serialisation boundary: across the Host ABI (§4.8) and over
// the framed RPC transport (§6). One encoder means a Function's Value
// arguments round-trip identically whether they cross into a guest or
// over the wire to a client.
package wire

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

var handle codec.MsgpackHandle

// Encode marshals v to msgpack bytes.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &handle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode unmarshals msgpack bytes into v, which must be a pointer.
func Decode(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(data), &handle)
	return dec.Decode(v)
}

package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/cuemby/avery/pkg/wire"
)

// Dialer opens a fresh connection per call, matching the server's
// one-connection-per-call framing (spec §6).
type Dialer func(ctx context.Context) (net.Conn, error)

// Client is a thin façade over Dialer that implements the reauth loop
// (spec §4.10): a call that fails Unauthenticated triggers one login
// round-trip, then is retried exactly once.
type Client struct {
	Dial Dialer
	// Opener receives every interactive LoginCommand the login stream
	// emits (e.g. to actually open a browser); tests substitute a
	// recording stub.
	Opener func(cmd LoginCommand)
}

// Call performs one unary request/response exchange: it reads frames
// from the opened connection until KindEnd (returning the last
// KindData payload) or KindError (returned as *Status).
func (c *Client) Call(ctx context.Context, method string, in interface{}) ([]byte, error) {
	payload, err := wire.Encode(in)
	if err != nil {
		return nil, err
	}

	resp, err := c.callOnce(ctx, method, payload)
	if st, ok := err.(*Status); ok && st.Code == StatusUnauthenticated {
		if loginErr := c.login(ctx, st.Scope); loginErr != nil {
			return nil, loginErr
		}
		return c.callOnce(ctx, method, payload)
	}
	return resp, err
}

func (c *Client) callOnce(ctx context.Context, method string, payload []byte) ([]byte, error) {
	conn, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stream := newStream(conn)

	if err := stream.SendRequest(method, payload); err != nil {
		return nil, err
	}

	var last []byte
	for {
		f, err := stream.Recv()
		if err != nil {
			return nil, err
		}
		switch f.Kind {
		case KindData:
			last = f.Payload
		case KindEnd:
			return last, nil
		case KindError:
			return nil, &Status{Code: f.Code, Message: f.Message, Scope: f.Scope}
		default:
			return nil, fmt.Errorf("rpc: unexpected frame kind %d", f.Kind)
		}
	}
}

// Stream performs one server-streaming call, invoking onData for every
// KindData frame received until the terminal frame.
func (c *Client) Stream(ctx context.Context, method string, in interface{}, onData func([]byte) error) error {
	payload, err := wire.Encode(in)
	if err != nil {
		return err
	}
	conn, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	stream := newStream(conn)

	if err := stream.SendRequest(method, payload); err != nil {
		return err
	}
	for {
		f, err := stream.Recv()
		if err != nil {
			return err
		}
		switch f.Kind {
		case KindData:
			if err := onData(f.Payload); err != nil {
				return err
			}
		case KindEnd:
			return nil
		case KindError:
			return &Status{Code: f.Code, Message: f.Message}
		default:
			return fmt.Errorf("rpc: unexpected frame kind %d", f.Kind)
		}
	}
}

// login runs the login stream for the scope associated with method,
// consuming every interactive command via c.Opener.
func (c *Client) login(ctx context.Context, scope string) error {
	payload, err := wire.Encode(LoginRequest{Scope: scope})
	if err != nil {
		return err
	}
	conn, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	stream := newStream(conn)

	if err := stream.SendRequest(MethodLogin, payload); err != nil {
		return err
	}
	for {
		f, err := stream.Recv()
		if err != nil {
			return err
		}
		switch f.Kind {
		case KindData:
			var cmd LoginCommand
			if err := wire.Decode(f.Payload, &cmd); err != nil {
				return err
			}
			if c.Opener != nil {
				c.Opener(cmd)
			}
		case KindEnd:
			return nil
		case KindError:
			return &Status{Code: f.Code, Message: f.Message}
		default:
			return fmt.Errorf("rpc: unexpected frame kind %d", f.Kind)
		}
	}
}

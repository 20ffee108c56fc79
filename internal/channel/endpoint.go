package channel

import (
	"context"
	"errors"
)

// ErrClosed is returned by Endpoint.Next when the underlying conn is gone.
var ErrClosed = errors.New("channel: closed")

// Frame is a raw envelope together with the origin the transport attributes
// to the sender.
type Frame struct {
	Origin string
	Data   []byte
}

// Conn is one end of a cross-document transport. Post is fire-and-forget:
// it never blocks on the peer and never retries.
type Conn interface {
	// Post dispatches an encoded envelope to the peer. A full peer buffer
	// or a gone peer drops the frame without error.
	Post(ctx context.Context, data []byte) error

	// Frames delivers inbound frames. The channel is closed when the conn
	// closes.
	Frames() <-chan Frame

	Close() error
}

// Endpoint wraps a Conn with payload encoding and origin filtering. Inbound
// frames whose origin does not match the expected peer origin are dropped
// silently, never processed and never logged, as are frames that fail to
// decode into a known variant.
type Endpoint struct {
	conn       Conn
	peerOrigin string
}

// NewEndpoint returns an endpoint that only accepts frames attributed to
// peerOrigin.
func NewEndpoint(conn Conn, peerOrigin string) *Endpoint {
	return &Endpoint{conn: conn, peerOrigin: peerOrigin}
}

// Post encodes and dispatches a payload. Fire-and-forget per the protocol:
// an encode failure is the only reportable error.
func (e *Endpoint) Post(ctx context.Context, p Payload) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	return e.conn.Post(ctx, data)
}

// Next blocks until a valid payload from the expected peer origin arrives,
// the context is cancelled, or the conn closes.
func (e *Endpoint) Next(ctx context.Context) (Payload, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f, ok := <-e.conn.Frames():
			if !ok {
				return nil, ErrClosed
			}
			if f.Origin != e.peerOrigin {
				continue
			}
			p, err := Decode(f.Data)
			if err != nil {
				continue
			}
			return p, nil
		}
	}
}

// Close closes the underlying conn.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

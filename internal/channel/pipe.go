package channel

import (
	"context"
	"sync"
)

// defaultPipeBuffer bounds how many undelivered frames one side may hold.
const defaultPipeBuffer = 32

// PipeConn is an in-process Conn, used by the standalone harness and tests.
// Each side stamps outbound frames with its own origin, mirroring how the
// platform attributes cross-document messages to their sender.
type PipeConn struct {
	origin string

	mu     sync.Mutex
	peer   *PipeConn
	in     chan Frame
	closed bool
}

// Pipe returns two connected conns. Frames posted on one side surface on
// the other, attributed to the poster's origin.
func Pipe(hostOrigin, embedOrigin string) (host, embed *PipeConn) {
	host = &PipeConn{origin: hostOrigin, in: make(chan Frame, defaultPipeBuffer)}
	embed = &PipeConn{origin: embedOrigin, in: make(chan Frame, defaultPipeBuffer)}
	host.peer = embed
	embed.peer = host
	return host, embed
}

// Post delivers a frame to the peer's inbound buffer. A full buffer or a
// closed peer drops the frame: the protocol is at-most-once with no retry.
func (c *PipeConn) Post(ctx context.Context, data []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	peer := c.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return nil
	}

	// Copy so the poster can reuse its buffer.
	frame := Frame{Origin: c.origin, Data: append([]byte(nil), data...)}
	select {
	case peer.in <- frame:
	default:
	}
	return nil
}

// Frames delivers inbound frames until the conn closes.
func (c *PipeConn) Frames() <-chan Frame {
	return c.in
}

// Close tears down the receiving side. Posts from the peer after Close are
// dropped.
func (c *PipeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.in)
	return nil
}

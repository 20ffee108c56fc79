package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// WSConn carries channel envelopes over a WebSocket, for deployments where
// the host-side loader and the embedded runtime live in separate processes
// and are paired through the relay endpoint.
type WSConn struct {
	ws         *websocket.Conn
	peerOrigin string
	frames     chan Frame

	closeOnce sync.Once
}

// NewWSConn wraps an accepted or dialed WebSocket. Inbound frames are
// attributed to peerOrigin, which the caller derives from the handshake.
func NewWSConn(ws *websocket.Conn, peerOrigin string) *WSConn {
	c := &WSConn{
		ws:         ws,
		peerOrigin: peerOrigin,
		frames:     make(chan Frame, defaultPipeBuffer),
	}
	go c.readPump()
	return c
}

// Dial connects to a relay endpoint and returns the wrapped conn.
func Dial(ctx context.Context, url, peerOrigin string) (*WSConn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWSConn(ws, peerOrigin), nil
}

func (c *WSConn) readPump() {
	defer c.closeFrames()
	for {
		_, data, err := c.ws.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("channel websocket closed by peer")
			} else {
				slog.Debug("channel websocket read error", "error", err)
			}
			return
		}

		frame := Frame{Origin: c.peerOrigin, Data: data}
		select {
		case c.frames <- frame:
		default:
			// Receiver is not keeping up; at-most-once permits the drop.
		}
	}
}

func (c *WSConn) closeFrames() {
	c.closeOnce.Do(func() { close(c.frames) })
}

// Post writes an envelope as a text frame. Write failures are swallowed
// after a debug log: dispatches are fire-and-forget.
func (c *WSConn) Post(ctx context.Context, data []byte) error {
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("channel websocket write error", "error", err)
	}
	return nil
}

// Frames delivers inbound frames until the connection drops.
func (c *WSConn) Frames() <-chan Frame {
	return c.frames
}

// Close closes the underlying WebSocket.
func (c *WSConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "channel closed")
}

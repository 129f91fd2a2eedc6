package conn

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// maxFrameBytes caps inbound frame reads. Service frames are small
// JSON payloads; the ceiling only guards against a misbehaving peer.
const maxFrameBytes = 16 << 20

// Transport abstracts the WebSocket connection so the supervisor can
// be tested without a real server. *websocket.Conn satisfies this
// interface.
type Transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a transport to the given WebSocket URL.
type Dialer func(ctx context.Context, socketURL string) (Transport, error)

// Dial is the production dialer.
func Dial(ctx context.Context, socketURL string) (Transport, error) {
	c, _, err := websocket.Dial(ctx, socketURL, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", socketURL, err)
	}
	c.SetReadLimit(maxFrameBytes)
	return c, nil
}

package observer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"bonsai.sim/internal/observerproto"
	"bonsai.sim/internal/sim/encoding"
	"bonsai.sim/internal/sim/voxel"
)

// Client is a subscribed observer connection. Next is not safe for concurrent use.
type Client struct {
	conn *websocket.Conn
	sub  observerproto.SubscribeMsg

	gridDigest string
	grid       *voxel.Grid
}

// Dial connects to url (ws:// or http://, with or without the /v1/observe path) and subscribes.
func Dial(ctx context.Context, url string, sub observerproto.SubscribeMsg) (*Client, error) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	switch {
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	}
	if !strings.HasSuffix(url, "/v1/observe") {
		url += "/v1/observe"
	}
	sub.Type = observerproto.TypeSubscribe
	if sub.ProtocolVersion == "" {
		sub.ProtocolVersion = observerproto.Version
	}
	normalizeSubscribe(&sub)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &Client{conn: conn, sub: sub}, nil
}

// Next blocks for the next frame. Grids are unpacked and cached, so Grid returns the terrain
// of the latest frame even when the server did not resend it.
func (c *Client) Next() (observerproto.FrameMsg, error) {
	_, b, err := c.conn.ReadMessage()
	if err != nil {
		return observerproto.FrameMsg{}, err
	}
	f, err := Unmarshal(b, c.sub.Encoding)
	if err != nil {
		return observerproto.FrameMsg{}, err
	}
	if f.Grid != nil && f.GridDigest != c.gridDigest {
		size := voxel.Vec3i{X: f.Grid.Size[0], Y: f.Grid.Size[1], Z: f.Grid.Size[2]}
		g, err := encoding.UnpackGrid(size, f.Grid.Data)
		if err != nil {
			return f, fmt.Errorf("grid: %w", err)
		}
		c.grid, c.gridDigest = g, f.GridDigest
	}
	return f, nil
}

// Grid returns the last received terrain, or nil before the first grid arrives.
func (c *Client) Grid() *voxel.Grid { return c.grid }

// Resubscribe changes the stream parameters on the open connection. The encoding is fixed for
// the life of the connection since frames already in flight use the old one.
func (c *Client) Resubscribe(sub observerproto.SubscribeMsg) error {
	sub.Type = observerproto.TypeSubscribe
	sub.Encoding = c.sub.Encoding
	if sub.ProtocolVersion == "" {
		sub.ProtocolVersion = observerproto.Version
	}
	normalizeSubscribe(&sub)
	if err := c.conn.WriteJSON(sub); err != nil {
		return err
	}
	c.sub = sub
	return nil
}

func (c *Client) Close() error { return c.conn.Close() }

package session

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// Conn abstracts the duplex channel so the lifecycle state machine is
// testable without a network.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// DialFunc establishes a Conn. The default dials a websocket.
type DialFunc func(ctx context.Context, url string, headers http.Header) (Conn, error)

// Dial is the production DialFunc over gorilla/websocket.
func Dial(ctx context.Context, url string, headers http.Header) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

package client

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single established transport connection. Writes are serialized
// by the Client; implementations only need to be safe for one concurrent
// reader plus one concurrent writer.
type Conn interface {
	// ReadMessage blocks until the next text frame or a read error.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error

	// Close sends a close frame with the given code/reason and tears the
	// connection down.
	Close(code int, reason string) error
}

// Transport dials gateway connections. The production implementation is
// gorilla/websocket; tests substitute an in-memory fake.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const dialHandshakeTimeout = 10 * time.Second

// WebsocketTransport dials real WebSocket connections.
type WebsocketTransport struct{}

// Dial implements Transport.
func (WebsocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
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

func (c *wsConn) Close(code int, reason string) error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return c.conn.Close()
}

// closeDetails extracts the close code and reason from a read error.
// Non-close errors (network resets, timeouts) map to abnormal closure.
func closeDetails(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	if err != nil {
		return websocket.CloseAbnormalClosure, err.Error()
	}
	return websocket.CloseAbnormalClosure, ""
}

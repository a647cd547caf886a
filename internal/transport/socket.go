package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// SocketDialer connects the duplex WebSocket carrier. Reconnect gaps grow
// exponentially since a flapping socket usually means the server is hurting.
type SocketDialer struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

// NewSocketDialer creates a WebSocket dialer for the given ws:// or wss:// URL.
func NewSocketDialer(url, token string) *SocketDialer {
	return &SocketDialer{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Name identifies the carrier.
func (d *SocketDialer) Name() string { return "socket" }

// Backoff returns exponential pacing starting at one second.
func (d *SocketDialer) Backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Dial opens the WebSocket connection.
func (d *SocketDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}

	ws, resp, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &socketConn{ws: ws}, nil
}

type socketConn struct {
	ws *websocket.Conn
}

func (c *socketConn) Read() ([]byte, error) {
	_, payload, err := c.ws.ReadMessage()
	return payload, err
}

func (c *socketConn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

// Send writes a text payload to the socket. Only the WebSocket carrier is
// duplex; the push carrier has no equivalent.
func (c *socketConn) Send(payload []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

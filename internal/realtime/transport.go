package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

// Transport is a single established feed connection.
type Transport interface {
	// Read blocks until the next text frame arrives or the connection fails.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one text frame.
	Write(ctx context.Context, data []byte) error
	// Close closes the connection with a normal closure status.
	Close() error
}

// Dialer establishes feed connections. The service owns reconnect policy;
// the dialer only knows how to open one connection.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// NewDialer returns the production WebSocket dialer.
func NewDialer() Dialer {
	return wsDialer{}
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial feed: %w", err)
	}
	// Tick bursts for a full watchlist can outrun the default limit
	conn.SetReadLimit(1 << 20)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := t.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if msgType != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

// DeriveEndpoint converts the backend HTTP base URL into the feed
// WebSocket URL: http becomes ws, https becomes wss, and the feed path
// is appended.
func DeriveEndpoint(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("base URL must use http or https scheme, got %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

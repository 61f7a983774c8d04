package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/model"
)

// Dialer opens hub connections.
type Dialer interface {
	Dial(ctx context.Context, hubURL, token string, onMessage MessageHandler) (Conn, error)
}

// WebsocketDialer dials the hub over a persistent websocket. There is no
// fallback transport negotiation.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Log    zerolog.Logger
}

// NewWebsocketDialer creates a dialer with a bounded handshake timeout.
func NewWebsocketDialer(log zerolog.Logger) *WebsocketDialer {
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		Log: log,
	}
}

// Dial connects to hubURL. The token travels both as a bearer header and as
// the access_token query parameter, since browsers cannot set headers on a
// websocket handshake and hubs commonly accept either.
func (d *WebsocketDialer) Dial(ctx context.Context, hubURL, token string, onMessage MessageHandler) (Conn, error) {
	target, err := WebsocketURL(hubURL, token)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("failed to dial hub: %w", model.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to dial hub: %w", err)
	}

	return newWSConn(conn, onMessage, d.Log), nil
}

// WebsocketURL turns an http(s) or ws(s) hub URL into a ws(s) URL carrying the token.
func WebsocketURL(hubURL, token string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("invalid hub url %q: %w", hubURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid hub url %q: unsupported scheme %q", hubURL, u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

package transport

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn carries lines over text frames.  A frame may hold several
// '\n'-separated lines; they are handed out one at a time.
type wsConn struct {
	ws      *websocket.Conn
	pending []string
}

// NewWebSocketConn wraps an established WebSocket.  maxLine <= 0 selects
// DefaultMaxLine; it also bounds the size of a single frame.
func NewWebSocketConn(ws *websocket.Conn, maxLine int) LineConn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	ws.SetReadLimit(int64(maxLine) + 2)
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", ErrLineTooLong
			}
			return "", err
		}
		if mt != websocket.TextMessage {
			return "", ErrBinaryFrame
		}
		text := strings.TrimSuffix(string(data), "\n")
		for _, line := range strings.Split(text, "\n") {
			c.pending = append(c.pending, strings.TrimSuffix(line, "\r"))
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsConn) WriteLine(line string) error {
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
func (c *wsConn) Close() error                       { return c.ws.Close() }
func (c *wsConn) RemoteAddr() string                 { return c.ws.RemoteAddr().String() }

// ---------------------------------------------------------------------------
// HTTP upgrade
// ---------------------------------------------------------------------------

// WebSocketHandler upgrades requests and hands each resulting LineConn to
// serve, which owns it until it returns.
//
// allowedOrigins lists scheme://host origins; "*" accepts any origin.  With
// an empty list only same-host requests (or requests without an Origin
// header, such as non-browser clients) are accepted.
func WebSocketHandler(allowedOrigins []string, maxLine int, serve func(LineConn)) http.Handler {
	origins, allowAll := normalizeOrigins(allowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			normalized, ok := normalizeOrigin(origin)
			if !ok {
				return false
			}
			if len(origins) == 0 {
				u, _ := url.Parse(normalized)
				return strings.EqualFold(u.Host, r.Host)
			}
			if _, ok := origins[normalized]; ok {
				return true
			}
			log.Printf("[ws] blocked connection from disallowed origin %q", origin)
			return false
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error response.
			log.Printf("[ws] upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		serve(NewWebSocketConn(ws, maxLine))
	})
}

func normalizeOrigins(list []string) (map[string]struct{}, bool) {
	out := make(map[string]struct{}, len(list))
	allowAll := false
	for _, o := range list {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			allowAll = true
			continue
		}
		n, ok := normalizeOrigin(o)
		if !ok {
			log.Printf("[ws] ignoring invalid origin in configuration: %q", o)
			continue
		}
		out[n] = struct{}{}
	}
	return out, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

package transport

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPConnReadLine(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	lc := NewTCPConn(server, 16)
	defer lc.Close()

	go func() {
		io.WriteString(client, "hel")
		io.WriteString(client, "lo\r\nworld\n")
		client.Close()
	}()

	line, err := lc.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	line, err = lc.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "world", line)

	_, err = lc.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPConnLineTooLong(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	lc := NewTCPConn(server, 8)
	defer lc.Close()

	go io.WriteString(client, strings.Repeat("x", 64)+"\n")

	_, err := lc.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestTCPConnWriteLine(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	lc := NewTCPConn(server, 0)
	defer lc.Close()

	go func() { _ = lc.WriteLine("alice: hi") }()

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "alice: hi\n", string(buf[:n]))
}

func TestFramer(t *testing.T) {
	f := NewFramer(0)

	lines, err := f.Feed([]byte("by"))
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, 2, f.Pending())

	lines, err = f.Feed([]byte("tes\nbytes\r\nbyt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"bytes", "bytes"}, lines)
	assert.Equal(t, 3, f.Pending())

	lines, err = f.Feed([]byte("es\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"bytes"}, lines)
	assert.Zero(t, f.Pending())
}

func TestFramerLineTooLong(t *testing.T) {
	f := NewFramer(4)

	lines, err := f.Feed([]byte("ok\ntoolong"))
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Equal(t, []string{"ok"}, lines)
	assert.Zero(t, f.Pending())
}

func TestWebSocketConn(t *testing.T) {
	got := make(chan []string, 1)
	handler := WebSocketHandler(nil, 0, func(lc LineConn) {
		defer lc.Close()
		var lines []string
		for i := 0; i < 3; i++ {
			line, err := lc.ReadLine()
			if err != nil {
				break
			}
			lines = append(lines, line)
		}
		_ = lc.WriteLine("OK done")
		got <- lines
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("alice")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("lobby\nhello\n")))

	select {
	case lines := <-got:
		assert.Equal(t, []string{"alice", "lobby", "hello"}, lines)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive lines")
	}

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "OK done", string(data))
}

func TestWebSocketRejectsBinaryFrames(t *testing.T) {
	errs := make(chan error, 1)
	srv := httptest.NewServer(WebSocketHandler(nil, 0, func(lc LineConn) {
		defer lc.Close()
		_, err := lc.ReadLine()
		errs <- err
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0x01}))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrBinaryFrame)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	srv := httptest.NewServer(WebSocketHandler([]string{"https://chat.example.com"}, 0, func(lc LineConn) {
		lc.Close()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://CHAT.example.com"}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	ws.Close()
}

package chain

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer upgrades one connection, acknowledges the subscription, then
// replays the given frames.
func wsTestServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// The subscribe request arrives first.
		var sub map[string]any
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "logsSubscribe", sub["method"])

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","id":1,"result":42}`)))

		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestSubscriberDeliversLogNotifications(t *testing.T) {
	frames := []string{
		`{"jsonrpc":"2.0","method":"logsNotification","params":{
			"result":{
				"context":{"slot":987},
				"value":{"signature":"sig-live","logs":["Program log: a","Program data: aGk="]}
			},
			"subscription":42
		}}`,
	}
	srv := wsTestServer(t, frames)
	defer srv.Close()

	addr, err := ParseAddress(strings.Repeat("ab", 32))
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	sub := NewSubscriber(wsURL, addr, CommitmentConfirmed, 8, nil)
	require.NoError(t, sub.Start())
	defer sub.Stop()

	select {
	case n := <-sub.Notifications():
		assert.Equal(t, "sig-live", n.Signature)
		assert.Equal(t, uint64(987), n.Slot)
		assert.Equal(t, []string{"Program log: a", "Program data: aGk="}, n.LogLines)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestSubscriberSkipsNonNotificationFrames(t *testing.T) {
	frames := []string{
		`{"jsonrpc":"2.0","id":7,"result":"pong"}`,
		`not json at all`,
		`{"jsonrpc":"2.0","method":"logsNotification","params":{
			"result":{"context":{"slot":1},"value":{"signature":"sig-2","logs":[]}},
			"subscription":42
		}}`,
	}
	srv := wsTestServer(t, frames)
	defer srv.Close()

	addr, err := ParseAddress(strings.Repeat("00", 32))
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	sub := NewSubscriber(wsURL, addr, CommitmentFinalized, 8, nil)
	require.NoError(t, sub.Start())
	defer sub.Stop()

	select {
	case n := <-sub.Notifications():
		assert.Equal(t, "sig-2", n.Signature)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestSubscriberStopDuringReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		var sub map[string]any
		require.NoError(t, conn.ReadJSON(&sub))

		// Drop the connection to push the subscriber into its
		// reconnect loop.
		conn.Close()
	}))
	defer srv.Close()

	addr, err := ParseAddress(strings.Repeat("cd", 32))
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	sub := NewSubscriber(wsURL, addr, CommitmentConfirmed, 1, nil)
	require.NoError(t, sub.Start())

	// Stop races the listen goroutine's reconnect; both touch the
	// connection, so this must stay safe under the race detector.
	time.Sleep(10 * time.Millisecond)
	sub.Stop()

	select {
	case _, open := <-sub.Notifications():
		assert.False(t, open, "notification channel should close after Stop")
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not shut down")
	}
}

func TestSubscriberStartFailsWhenUnreachable(t *testing.T) {
	addr, err := ParseAddress(strings.Repeat("00", 32))
	require.NoError(t, err)

	sub := NewSubscriber("ws://127.0.0.1:1/ws", addr, CommitmentConfirmed, 1, nil)
	require.Error(t, sub.Start())
}

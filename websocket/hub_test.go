package websocket

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newTestClient builds a client without a network connection; the dispatch
// loop never touches Conn, so none is needed.
func newTestClient(handler func(c *Client, raw []byte) ([]byte, bool)) *Client {
	return &Client{
		Send:          make(chan []byte, 256),
		ConnectionID:  "test-conn",
		PlayerID:      "player-1",
		ActionHandler: handler,
		actions:       make(chan []byte, 64),
	}
}

func TestDispatchLoopPreservesOrder(t *testing.T) {
	// The first action is slow, the second instant. Responses must still
	// leave in acceptance order.
	client := newTestClient(func(c *Client, raw []byte) ([]byte, bool) {
		if string(raw) == "slow" {
			time.Sleep(50 * time.Millisecond)
		}
		return append([]byte("done:"), raw...), false
	})

	go client.DispatchLoop()

	client.actions <- []byte("slow")
	client.actions <- []byte("fast")
	close(client.actions)

	expected := []string{"done:slow", "done:fast"}
	for i, want := range expected {
		select {
		case got := <-client.Send:
			if string(got) != want {
				t.Fatalf("response %d = %q, expected %q", i, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for response %d", i)
		}
	}
}

func TestDispatchLoopSkipsNilResponses(t *testing.T) {
	client := newTestClient(func(c *Client, raw []byte) ([]byte, bool) {
		if string(raw) == "silent" {
			return nil, false
		}
		return raw, false
	})

	go client.DispatchLoop()

	client.actions <- []byte("silent")
	client.actions <- []byte("answered")
	close(client.actions)

	select {
	case got := <-client.Send:
		if string(got) != "answered" {
			t.Fatalf("response = %q, expected the non-nil one", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestDispatchLoopSurvivesDisconnectDuringAction(t *testing.T) {
	// The client drops while an action is still inside the handler, as
	// happens whenever a connection dies during a long AI call. The hub may
	// only close the action queue; the in-flight response must still land on
	// Send, and Send must close only once the dispatch loop is done with it.
	hub := NewHub()
	go hub.Run()

	entered := make(chan struct{})
	release := make(chan struct{})

	client := hub.RegisterClient(nil, "player-1")
	client.ActionHandler = func(c *Client, raw []byte) ([]byte, bool) {
		close(entered)
		<-release
		return []byte("late response"), false
	}
	go client.DispatchLoop()

	client.actions <- []byte("slow action")
	<-entered

	// The connection goes away mid-action.
	hub.unregister <- client
	close(release)

	select {
	case got, ok := <-client.Send:
		if !ok {
			t.Fatal("Send closed before the in-flight response was delivered")
		}
		if string(got) != "late response" {
			t.Fatalf("response = %q, expected the in-flight one", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the in-flight response")
	}

	select {
	case extra, ok := <-client.Send:
		if ok {
			t.Fatalf("unexpected extra response %q", extra)
		}
	case <-time.After(time.Second):
		t.Fatal("Send never closed after the action queue drained")
	}
}

func TestDispatchLoopDeliversFatalFrame(t *testing.T) {
	// A fatal error frame is queued on Send before the loop exits, so the
	// write pump can flush it ahead of the close frame.
	client := newTestClient(func(c *Client, raw []byte) ([]byte, bool) {
		return []byte("fatal frame"), true
	})

	go client.DispatchLoop()
	client.actions <- []byte("bad frame")

	select {
	case got, ok := <-client.Send:
		if !ok {
			t.Fatal("Send closed before the fatal frame was delivered")
		}
		if string(got) != "fatal frame" {
			t.Fatalf("response = %q, expected the fatal frame", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the fatal frame")
	}

	select {
	case _, ok := <-client.Send:
		if ok {
			t.Fatal("dispatch loop kept running after a fatal error")
		}
	case <-time.After(time.Second):
		t.Fatal("Send never closed after the fatal error")
	}
}

func TestReadPumpBackpressure(t *testing.T) {
	// More frames than the action queue can buffer: the read loop must slow
	// down instead of discarding any of them, and every response must come
	// back in order.
	hub := NewHub()
	go hub.Run()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		client := hub.RegisterClient(conn, "player-1")
		client.ActionHandler = func(c *Client, raw []byte) ([]byte, bool) {
			time.Sleep(time.Millisecond)
			return raw, false
		}

		go client.ReadPump()
		go client.DispatchLoop()
		go client.WritePump()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	const frames = 100
	for i := 0; i < frames; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("action-%03d", i))); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for i := 0; i < frames; i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("action-%03d", i); string(msg) != want {
			t.Fatalf("response %d = %q, expected %q", i, msg, want)
		}
	}
}

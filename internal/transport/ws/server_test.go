package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bistro.ai/internal/protocol"
	"bistro.ai/internal/sim/catalogs"
	"bistro.ai/internal/sim/layout"
	"bistro.ai/internal/sim/tuning"
	"bistro.ai/internal/sim/world"
)

func startServer(t *testing.T) (*world.World, string) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	plots, err := layout.Load("../../../configs/plots.yaml")
	if err != nil {
		t.Fatalf("plots: %v", err)
	}
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	w, err := world.New(world.Config{Tuning: tune, Recipes: &cats.Recipes, Plots: plots})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(cancel)

	ts := httptest.NewServer(NewServer(w, nil).Handler())
	t.Cleanup(ts.Close)
	return w, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readType reads until a message of type typ arrives.
func readType(t *testing.T, c *websocket.Conn, typ string) []byte {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, b, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		if base, _ := protocol.DecodeBase(b); base.Type == typ {
			return b
		}
	}
}

func TestHandshakeInputAndDisconnect(t *testing.T) {
	w, url := startServer(t)
	c := dial(t, url)

	send(t, c, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Owner: "alice"})
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readType(t, c, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Owner != "alice" || welcome.Kitchen != "kitchen-alice" || welcome.SessionID == "" {
		t.Fatalf("welcome: %+v", welcome)
	}

	pos := [3]float64{1, 0, 1}
	send(t, c, protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, ID: "m1", Input: protocol.InputMove, Pos: &pos})
	send(t, c, protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, ID: "e1", Input: protocol.InputEditMode, Entering: true})
	for _, id := range []string{"m1", "e1"} {
		var ack protocol.AckMsg
		if err := json.Unmarshal(readType(t, c, protocol.TypeAck), &ack); err != nil {
			t.Fatalf("ack: %v", err)
		}
		if ack.AckFor != id || !ack.Accepted {
			t.Fatalf("ack: got %+v want accepted %s", ack, id)
		}
	}
	if !w.Scheduler().Editing("alice") {
		t.Fatalf("edit mode not applied")
	}

	_ = c.Close()
	deadline := time.Now().Add(3 * time.Second)
	for w.Metrics().Players != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("player not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if w.Scheduler().Editing("alice") {
		t.Fatalf("edit mode survived owner leaving")
	}
}

func TestHandshakeRejects(t *testing.T) {
	_, url := startServer(t)
	cases := map[string]any{
		"not hello":   protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Input: protocol.InputClaim},
		"old version": protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.9", Owner: "alice"},
		"no owner":    protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version},
	}
	for name, hello := range cases {
		c := dial(t, url)
		send(t, c, hello)
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, _, err := c.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("%s: got %v want policy violation close", name, err)
		}
		_ = c.Close()
	}
}

func TestDuplicateOwnerRefused(t *testing.T) {
	_, url := startServer(t)
	first := dial(t, url)
	defer first.Close()
	send(t, first, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Owner: "bob"})
	readType(t, first, protocol.TypeWelcome)

	second := dial(t, url)
	defer second.Close()
	send(t, second, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Owner: "bob"})
	var ack protocol.AckMsg
	if err := json.Unmarshal(readType(t, second, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Accepted || ack.Code != protocol.ErrBusy {
		t.Fatalf("second session: %+v", ack)
	}
}

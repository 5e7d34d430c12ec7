package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"bistro.ai/internal/protocol"
	"bistro.ai/internal/sim/layout"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		owner = flag.String("owner", "alice", "plot owner to play as")
		plots = flag.String("plots", "./configs/plots.yaml", "plots.yaml used to resolve stations")
		every = flag.Int("every", 2, "interact every N event batches")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	p, err := layout.Load(*plots)
	if err != nil {
		logger.Fatalf("load plots: %v", err)
	}
	dir := p.Directory()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Owner:           *owner,
		Name:            "bot",
		MaxQueue:        32,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	var c *cook
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s kitchen=%s tick_rate=%d", w.SessionID, w.Kitchen, w.WorldParams.TickRateHz)
			if w.Kitchen == "" {
				logger.Printf("%s owns no plot; nothing to cook", *owner)
				return
			}
			c = newCook(*owner, w.Kitchen, dir, *every)

		case protocol.TypeEventBatch:
			if c == nil {
				continue
			}
			var b protocol.EventBatchMsg
			if err := json.Unmarshal(msg, &b); err != nil {
				continue
			}
			for _, in := range c.OnBatch(b) {
				if err := conn.WriteJSON(in); err != nil {
					return
				}
			}

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if !a.Accepted {
				logger.Printf("rejected %s: %s %s", a.AckFor, a.Code, a.Message)
				if a.AckFor == "HELLO" {
					return
				}
			}
		}
	}
}

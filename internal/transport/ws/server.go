package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bistro.ai/internal/protocol"
	"bistro.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    16 * 1024,
			WriteBufferSize:   16 * 1024,
			EnableCompression: true,
			CheckOrigin:       func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		owner, session, out := s.handshake(conn)
		if session == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeInput {
				continue
			}
			var in protocol.InputMsg
			if err := json.Unmarshal(msg, &in); err != nil {
				continue
			}
			if in.ProtocolVersion != protocol.Version {
				continue
			}
			select {
			case s.world.Inbox() <- world.InputEnvelope{Owner: owner, Session: session, Input: in}:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		s.world.Leave() <- session
		s.log.Printf("disconnect owner=%s session=%s", owner, session)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (owner, session string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return "", "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", "", nil
	}
	if hello.Owner == "" {
		closeWith(conn, "missing owner")
		return "", "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Owner: hello.Owner,
		Name:  hello.Name,
		Out:   out,
		Resp:  respCh,
	}
	resp := <-respCh
	if resp.Code != "" {
		_ = writeJSON(conn, protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          "HELLO",
			Code:            resp.Code,
			Message:         resp.Message,
		})
		closeWith(conn, resp.Message)
		return "", "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.SessionID
		return "", "", nil
	}
	s.log.Printf("connect owner=%s session=%s", hello.Owner, resp.Welcome.SessionID)
	return hello.Owner, resp.Welcome.SessionID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

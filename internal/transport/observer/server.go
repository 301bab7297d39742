// Package observer serves the consumer boundary: a websocket endpoint that
// announces generation publications and answers chunk queries against the
// published buffers. Observers never write to the grid.
package observer

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fluxgrid.dev/internal/protocol"
	"fluxgrid.dev/internal/sim/grid"
)

const (
	writeTimeout = 10 * time.Second
	// outboundBuf bounds per-session queued frames; slow observers drop
	// publications rather than stalling the tick loop.
	outboundBuf = 64
)

type Server struct {
	engine *grid.Engine
	log    *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	tickRateHz int
}

func NewServer(e *grid.Engine, tickRateHz int, logger *log.Logger) *Server {
	return &Server{
		engine:     e,
		log:        logger,
		tickRateHz: tickRateHz,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Handler upgrades observer connections.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.Printf("observer upgrade: %v", err)
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn *websocket.Conn) {
	defer conn.Close()

	var hello protocol.HelloMsg
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.TypeHello {
		s.writeNow(conn, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrProtoBadRequest,
			Message:         "expected HELLO",
		})
		return
	}

	id := s.nextID.Add(1)
	cfg := s.engine.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       fmt.Sprintf("OBS%d", id),
		Generation:      s.engine.Generation(),
		Engine: protocol.EngineParams{
			Dims:       cfg.Dims,
			AxisBits:   cfg.AxisBits,
			ChunkEdge:  cfg.ChunkEdge,
			Stride:     s.engine.Geometry().Stride,
			Program:    string(cfg.Program),
			TickRateHz: s.tickRateHz,
		},
	}
	// Subscribe before WELCOME: once the client sees the handshake complete,
	// every later publication reaches it.
	pubs := s.engine.Subscribe(8)
	if err := s.writeNow(conn, welcome); err != nil {
		return
	}

	out := make(chan any, outboundBuf)
	done := make(chan struct{})

	// Only serve closes out, once every sender has stopped. When the engine
	// shuts down the forwarder closes the connection instead, which unblocks
	// the read loop below.
	fwdDone := make(chan struct{})
	go func() {
		defer close(fwdDone)
		for {
			select {
			case <-done:
				return
			case pub, ok := <-pubs:
				if !ok {
					_ = conn.Close()
					return
				}
				msg := protocol.PublishMsg{
					Type:            protocol.TypePublish,
					ProtocolVersion: protocol.Version,
					Generation:      pub.Generation,
					Tick:            pub.Tick,
					ActiveChunks:    pub.ActiveChunks,
					Batches:         pub.Batches,
				}
				select {
				case out <- msg:
				default:
					// Drop: the observer can re-sync from the next one.
				}
			}
		}
	}()

	// Single writer: publications and query replies share one goroutine.
	writeErr := make(chan struct{})
	go func() {
		defer close(writeErr)
		for msg := range out {
			if err := s.writeNow(conn, msg); err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleRequest(data, out)
	}
	close(done)
	<-fwdDone
	close(out)
	<-writeErr
}

func (s *Server) handleRequest(data []byte, out chan<- any) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Type != protocol.TypeQueryChunk {
		s.enqueue(out, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrProtoBadRequest,
			Message:         "expected QUERY_CHUNK",
		})
		return
	}
	var q protocol.QueryChunkMsg
	if err := json.Unmarshal(data, &q); err != nil {
		s.enqueue(out, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrProtoBadRequest,
			Message:         err.Error(),
		})
		return
	}
	cells, gen, ok := s.engine.ChunkCells(q.Key)
	if !ok {
		// Absent chunks are default-valued; report them as empty cells.
		cells = nil
	}
	s.enqueue(out, protocol.ChunkMsg{
		Type:            protocol.TypeChunk,
		ProtocolVersion: protocol.Version,
		Key:             q.Key,
		Generation:      gen,
		Cells:           cells,
	})
}

func (s *Server) enqueue(out chan<- any, msg any) {
	select {
	case out <- msg:
	default:
	}
}

func (s *Server) writeNow(conn *websocket.Conn, msg any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

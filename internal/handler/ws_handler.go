package handler

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
	"github.com/fieldtrack/geofence-backend-go/internal/relay"
)

// staffMessage is an inbound frame on the staff socket
type staffMessage struct {
	Type      string  `json:"type"` // "register" | "sample"
	StaffID   int64   `json:"staffId,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// staffReply is an outbound frame on the staff socket
type staffReply struct {
	Type    string                `json:"type"` // "registered" | "error"
	Message string                `json:"message,omitempty"`
	Session *relay.RegisterResult `json:"session,omitempty"`
}

// WSHandler serves the two realtime endpoints: the staff position stream and
// the supervisor fan-out. All connections are tracked and closed when the
// handler shuts down.
type WSHandler struct {
	relay *relay.Relay

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWSHandler creates a websocket handler bound to the relay
func NewWSHandler(r *relay.Relay) *WSHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSHandler{
		relay:  r,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops accepting connections, closes the active ones, and waits for
// their handlers to return
func (h *WSHandler) Close() {
	h.cancel()
	h.wg.Wait()
}

// accept upgrades the request and tracks the connection lifetime against the
// handler context
func (h *WSHandler) accept(c *gin.Context) (*websocket.Conn, context.Context, func(), bool) {
	if err := h.ctx.Err(); err != nil {
		c.AbortWithStatus(503)
		return nil, nil, nil, false
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		// Accept already wrote the HTTP error
		return nil, nil, nil, false
	}

	h.wg.Add(1)
	ctx, cancel := context.WithCancel(h.ctx)
	go func() {
		<-ctx.Done()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	cleanup := func() {
		cancel()
		h.wg.Done()
	}
	return conn, ctx, cleanup, true
}

// StaffSocket handles GET /ws/staff. The client registers with its staff id,
// then streams position samples. Sample-level errors are surfaced to this
// device only; they never tear down the session.
func (h *WSHandler) StaffSocket(c *gin.Context) {
	conn, ctx, cleanup, ok := h.accept(c)
	if !ok {
		return
	}
	defer cleanup()

	connID := uuid.New()
	registered := false

	defer func() {
		if registered {
			h.relay.UnregisterByConnection(connID)
		}
	}()

	for {
		var msg staffMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}

		switch msg.Type {
		case "register":
			result, err := h.relay.Register(ctx, msg.StaffID, connID)
			if err != nil {
				if errors.Is(err, models.ErrUnknownStaff) {
					h.reply(ctx, conn, staffReply{Type: "error", Message: "unknown staff id"})
					continue
				}
				log.Printf("staff register failed: %v", err)
				h.reply(ctx, conn, staffReply{Type: "error", Message: "registration failed"})
				continue
			}
			registered = true
			h.reply(ctx, conn, staffReply{Type: "registered", Session: result})

		case "sample":
			if !registered {
				h.reply(ctx, conn, staffReply{Type: "error", Message: "not registered"})
				continue
			}
			err := h.relay.SubmitSample(connID, models.RawSample{
				Latitude:  msg.Latitude,
				Longitude: msg.Longitude,
				Accuracy:  msg.Accuracy,
				Timestamp: msg.Timestamp,
			})
			if err != nil {
				h.reply(ctx, conn, staffReply{Type: "error", Message: err.Error()})
			}

		default:
			h.reply(ctx, conn, staffReply{Type: "error", Message: "unknown message type"})
		}
	}
}

// SupervisorSocket handles GET /ws/supervisor: a one-way stream of status,
// position, and boundary events, starting with a replay of every known
// session.
func (h *WSHandler) SupervisorSocket(c *gin.Context) {
	conn, ctx, cleanup, ok := h.accept(c)
	if !ok {
		return
	}
	defer cleanup()

	_, unsubscribe := h.relay.Subscribe(&wsSink{conn: conn})
	defer unsubscribe()

	// supervisors do not send application frames; reading here just
	// detects the connection closing
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *WSHandler) reply(ctx context.Context, conn *websocket.Conn, r staffReply) {
	if err := wsjson.Write(ctx, conn, r); err != nil {
		log.Printf("staff socket write failed: %v", err)
	}
}

// wsSink adapts a websocket connection to the relay's event sink
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ctx context.Context, ev models.StatusEvent) error {
	return wsjson.Write(ctx, s.conn, ev)
}

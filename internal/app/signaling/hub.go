package signaling

import (
	"context"
	"net/http"
	"time"

	"recruit_proctor/internal/platform/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // SDP blobs run to a few KB
)

// Identity is who a websocket connection speaks as. It is decided by the
// authenticating handler, never by the client.
type Identity struct {
	PeerID string
	Role   PeerRole
}

// Hub bridges websocket connections onto the relay.
type Hub struct {
	relay    *Relay
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
	log      *zap.Logger
}

func NewHub(relay *Relay, perSecond float64, burst int, log *zap.Logger) *Hub {
	if perSecond <= 0 {
		perSecond = 30
	}
	if burst <= 0 {
		burst = 50
	}
	return &Hub{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		limit: rate.Limit(perSecond),
		burst: burst,
		log:   log,
	}
}

type conn struct {
	hub     *Hub
	ws      *websocket.Conn
	peer    *Peer
	id      Identity
	examID  string
	limiter *rate.Limiter
}

// Serve upgrades the request and blocks until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, examID string, id Identity) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err // Upgrade already replied to the client.
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	peer, err := h.relay.Join(ctx, examID, id.PeerID)
	if err != nil {
		h.log.Error("Signaling join failed", zap.String("exam_id", examID), zap.String("peer_id", id.PeerID), zap.Error(err))
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "signaling unavailable"),
			time.Now().Add(writeWait))
		ws.Close()
		return err
	}
	defer peer.Leave()

	c := &conn{
		hub:     h,
		ws:      ws,
		peer:    peer,
		id:      id,
		examID:  examID,
		limiter: rate.NewLimiter(h.limit, h.burst),
	}
	h.log.Info("Signaling peer joined",
		zap.String("exam_id", examID), zap.String("peer_id", id.PeerID), zap.String("role", string(id.Role)))

	go c.writePump(ctx)
	c.readPump(ctx)

	h.log.Info("Signaling peer left", zap.String("exam_id", examID), zap.String("peer_id", id.PeerID))
	return nil
}

func (c *conn) readPump(ctx context.Context) {
	defer c.ws.Close()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("Signaling websocket unexpected close", zap.String("peer_id", c.id.PeerID), zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.SignalMessages.WithLabelValues("unknown", "throttled").Inc()
			continue
		}

		m, err := Decode(raw)
		if err != nil {
			metrics.SignalMessages.WithLabelValues("unknown", "rejected").Inc()
			c.hub.log.Debug("Rejected signaling message", zap.String("peer_id", c.id.PeerID), zap.Error(err))
			continue
		}
		if ready, ok := m.(Ready); ok {
			ready.Role = c.id.Role
			m = ready
		}

		if err := c.hub.relay.Publish(ctx, c.examID, c.id.PeerID, m); err != nil {
			c.hub.log.Error("Signaling publish failed", zap.String("peer_id", c.id.PeerID), zap.Error(err))
			return
		}
	}
}

func (c *conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-c.peer.Receive():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := Encode(m)
			if err != nil {
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/transfer"
)

// Event types delivered to subscribers.
const (
	TypeData            = "data"
	TypeTransferUpdated = "transfer_updated"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Event is one message pushed to a room subscriber.
type Event struct {
	Type      string             `json:"type"`
	RoomID    string             `json:"room_id"`
	Topic     string             `json:"topic,omitempty"`
	Data      json.RawMessage    `json:"data,omitempty"`
	Transfer  *transfer.Transfer `json:"transfer,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Gauge tracks connected subscribers. *metrics.Collector implements it.
type Gauge interface {
	SubscriberConnected()
	SubscriberDisconnected()
}

type nopGauge struct{}

func (nopGauge) SubscriberConnected()    {}
func (nopGauge) SubscriberDisconnected() {}

type subscriber struct {
	roomID string
	send   chan []byte
	once   sync.Once
	gone   chan struct{}
}

func (s *subscriber) drop() {
	s.once.Do(func() { close(s.gone) })
}

// Hub fans room events out to WebSocket subscribers. It implements
// transfer.DataSender and transfer.Observer.
type Hub struct {
	mu             sync.RWMutex
	rooms          map[string]map[*subscriber]struct{}
	originPatterns []string
	gauge          Gauge
	logger         *zap.Logger
	now            func() time.Time
}

var (
	_ transfer.DataSender = (*Hub)(nil)
	_ transfer.Observer   = (*Hub)(nil)
)

// Option configures a Hub.
type Option func(h *Hub)

// WithOriginPatterns sets the cross-origin hosts accepted on upgrade.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = append(h.originPatterns, patterns...) }
}

// WithGauge reports subscriber counts.
func WithGauge(g Gauge) Option { return func(h *Hub) { h.gauge = g } }

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		rooms:  make(map[string]map[*subscriber]struct{}),
		gauge:  nopGauge{},
		logger: logger.With(zap.String("component", "event_hub")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribers returns the number of subscribers of roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	subs, ok := h.rooms[s.roomID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.rooms[s.roomID] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()
	h.gauge.SubscriberConnected()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if subs, ok := h.rooms[s.roomID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.rooms, s.roomID)
		}
	}
	h.mu.Unlock()
	h.gauge.SubscriberDisconnected()
}

// Publish delivers ev to every subscriber of ev.RoomID. Subscribers whose
// buffer is full are disconnected.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event failed", zap.String("room_id", ev.RoomID), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[ev.RoomID] {
		select {
		case s.send <- msg:
		default:
			h.logger.Warn("slow event subscriber dropped", zap.String("room_id", ev.RoomID))
			s.drop()
		}
	}
}

// SendData publishes a data packet to the room. Non-JSON payloads are sent
// as a JSON string.
func (h *Hub) SendData(_ context.Context, roomID, topic string, data []byte) error {
	raw := json.RawMessage(data)
	if !json.Valid(data) {
		quoted, err := json.Marshal(string(data))
		if err != nil {
			return err
		}
		raw = quoted
	}
	h.Publish(Event{Type: TypeData, RoomID: roomID, Topic: topic, Data: raw})
	return nil
}

// TransferUpdated publishes the snapshot to both rooms of the transfer.
func (h *Hub) TransferUpdated(t *transfer.Transfer) {
	snapshot := t.Clone()
	snapshot.AgentBToken = ""
	for _, roomID := range []string{t.OriginalRoom, t.ConsultRoom} {
		if roomID == "" {
			continue
		}
		h.Publish(Event{Type: TypeTransferUpdated, RoomID: roomID, Transfer: snapshot})
	}
}

// Serve upgrades the request and streams events of roomID until the client
// goes away or the request context ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID string) {
	// the server-wide deadlines would cut long-lived streams
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	s := &subscriber{roomID: roomID, send: make(chan []byte, sendBuffer), gone: make(chan struct{})}
	h.add(s)
	defer h.remove(s)

	log := h.logger.With(zap.String("room_id", roomID))
	log.Debug("event subscriber connected")

	// incoming frames are discarded; ctx ends when the peer closes
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			log.Debug("event subscriber disconnected")
			return
		case <-s.gone:
			conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case msg := <-s.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Debug("event write failed", zap.Error(err))
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.rooms {
		for s := range subs {
			s.drop()
		}
	}
}

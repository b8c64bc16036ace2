package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/transfer"
)

type countingGauge struct {
	mu      sync.Mutex
	current int
}

func (g *countingGauge) SubscriberConnected() {
	g.mu.Lock()
	g.current++
	g.mu.Unlock()
}

func (g *countingGauge) SubscriberDisconnected() {
	g.mu.Lock()
	g.current--
	g.mu.Unlock()
}

func (g *countingGauge) value() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func newHubServer(t *testing.T, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop(), opts...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func subscribe(t *testing.T, hub *Hub, srv *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	before := hub.Subscribers(roomID)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/"+roomID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	require.Eventually(t, func() bool { return hub.Subscribers(roomID) == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_SendDataReachesRoomSubscribers(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := subscribe(t, hub, srv, "consultation_1")
	other := subscribe(t, hub, srv, "room_9")

	require.NoError(t, hub.SendData(context.Background(), "consultation_1", "call_summary", []byte(`{"summary":"hello"}`)))

	ev := readEvent(t, conn)
	assert.Equal(t, TypeData, ev.Type)
	assert.Equal(t, "consultation_1", ev.RoomID)
	assert.Equal(t, "call_summary", ev.Topic)
	assert.JSONEq(t, `{"summary":"hello"}`, string(ev.Data))
	assert.False(t, ev.Timestamp.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := other.Read(ctx)
	assert.Error(t, err, "other rooms receive nothing")
}

func TestHub_SendDataQuotesNonJSON(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := subscribe(t, hub, srv, "room_1")

	require.NoError(t, hub.SendData(context.Background(), "room_1", "note", []byte("plain text")))

	ev := readEvent(t, conn)
	assert.Equal(t, `"plain text"`, string(ev.Data))
}

func TestHub_TransferUpdatedReachesBothRooms(t *testing.T) {
	hub, srv := newHubServer(t)
	original := subscribe(t, hub, srv, "room_1")
	consult := subscribe(t, hub, srv, "consultation_1")

	hub.TransferUpdated(&transfer.Transfer{
		ID:           "transfer_1",
		Status:       transfer.StatusCompleted,
		OriginalRoom: "room_1",
		ConsultRoom:  "consultation_1",
		AgentBToken:  "secret",
	})

	for _, conn := range []*websocket.Conn{original, consult} {
		ev := readEvent(t, conn)
		assert.Equal(t, TypeTransferUpdated, ev.Type)
		require.NotNil(t, ev.Transfer)
		assert.Equal(t, "transfer_1", ev.Transfer.ID)
		assert.Equal(t, transfer.StatusCompleted, ev.Transfer.Status)
		assert.Empty(t, ev.Transfer.AgentBToken)
	}
}

func TestHub_SubscriberLifecycle(t *testing.T) {
	gauge := &countingGauge{}
	hub, srv := newHubServer(t, WithGauge(gauge))

	conn := subscribe(t, hub, srv, "room_1")
	assert.Equal(t, 1, gauge.value())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.Subscribers("room_1") == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, gauge.value())
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := subscribe(t, hub, srv, "room_1")

	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	assert.NotPanics(t, func() {
		hub.Publish(Event{Type: TypeData, RoomID: "nobody"})
	})
	assert.Zero(t, hub.Subscribers("nobody"))
}

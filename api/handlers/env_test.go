package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/internal/events"
	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/summary"
	"github.com/BaSui01/warmtransfer/transfer"
)

type testEnv struct {
	rooms     *room.Manager
	summaries *summary.Service
	engine    *transfer.Engine
	hub       *events.Hub
	mux       *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	signer := room.NewTokenSigner("devkey", "devsecret", time.Hour)
	rooms := room.NewManager(room.NewMemoryStore(), nil, signer, logger)
	summaries := summary.NewService(summary.NewMemoryTranscripts(), summary.NewBasicProvider(), logger)
	hub := events.NewHub(logger)
	engine := transfer.NewEngine(transfer.Config{
		PollInterval:     10 * time.Millisecond,
		AgentJoinTimeout: 5 * time.Second,
		HandoffDelay:     5 * time.Millisecond,
		RequireConnected: true,
	}, rooms, logger,
		transfer.WithTranscripts(summaries.Source()),
		transfer.WithSummaryProvider(summaries.Provider()),
		transfer.WithDataSender(hub),
		transfer.WithObserver(hub),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
		hub.Close()
	})

	mux := http.NewServeMux()
	NewRoomHandler(rooms, hub, "wss://media.example", logger).Register(mux)
	NewParticipantHandler(rooms, signer.TTL(), "wss://media.example", logger).Register(mux)
	NewCallHandler(rooms, summaries, logger).Register(mux)
	NewTransferHandler(engine, rooms, "wss://media.example", logger).Register(mux)

	return &testEnv{rooms: rooms, summaries: summaries, engine: engine, hub: hub, mux: mux}
}

// envelope mirrors Response with the payload left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// seedCall puts caller c1 and agent a1 into room_1.
func (e *testEnv) seedCall(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := e.rooms.GenerateJoinToken(ctx, room.TokenRequest{RoomID: "room_1", Identity: "c1", Name: "Carol", Role: room.RoleCaller})
	require.NoError(t, err)
	_, err = e.rooms.GenerateJoinToken(ctx, room.TokenRequest{RoomID: "room_1", Identity: "a1", Name: "Alice", Role: room.RoleAgentA})
	require.NoError(t, err)
}

package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/speech"
	"github.com/BaSui01/warmtransfer/summary"
	"github.com/BaSui01/warmtransfer/types"
)

const defaultListLimit = 50

var (
	errStopped  = errors.New("transfer already finished")
	errNoChange = errors.New("no change")
)

// Rooms is the room lifecycle surface the engine drives. *room.Manager
// implements it.
type Rooms interface {
	CreateRoom(ctx context.Context, name string, roomType room.Type, maxParticipants int, opts ...room.CreateOption) (string, error)
	GenerateJoinToken(ctx context.Context, req room.TokenRequest) (string, error)
	RemoveParticipant(ctx context.Context, roomID, identity string) (bool, error)
	DeleteRoom(ctx context.Context, roomID string) (bool, error)
	GetRoomInfo(ctx context.Context, roomID string) (*room.Room, bool)
	SetParticipantHold(ctx context.Context, roomID, identity string, onHold bool) error
	SyncParticipants(ctx context.Context, roomID string) error
	Watch(roomID string) <-chan struct{}
}

// DataSender delivers a data payload to everyone in a room.
type DataSender interface {
	SendData(ctx context.Context, roomID, topic string, data []byte) error
}

// Observer is told about every persisted transfer change.
type Observer interface {
	TransferUpdated(t *Transfer)
}

// Recorder receives workflow metrics.
type Recorder interface {
	TransferInitiated()
	StepRecorded(step StepName)
	TransferFinished(status Status, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) TransferInitiated()                     {}
func (nopRecorder) StepRecorded(StepName)                  {}
func (nopRecorder) TransferFinished(Status, time.Duration) {}

type nopSender struct{}

func (nopSender) SendData(context.Context, string, string, []byte) error { return nil }

// Config holds workflow timings.
type Config struct {
	PollInterval      time.Duration
	AgentJoinTimeout  time.Duration
	ConsultationDwell time.Duration // 0 disables automatic completion
	HandoffDelay      time.Duration
	// RequireConnected makes the agent wait require a media-server
	// connection instead of an issued token.
	RequireConnected       bool
	ConsultMaxParticipants int
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:           2 * time.Second,
		AgentJoinTimeout:       60 * time.Second,
		ConsultationDwell:      10 * time.Second,
		HandoffDelay:           2 * time.Second,
		RequireConnected:       true,
		ConsultMaxParticipants: 3,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.AgentJoinTimeout <= 0 {
		c.AgentJoinTimeout = d.AgentJoinTimeout
	}
	if c.ConsultationDwell < 0 {
		c.ConsultationDwell = 0
	}
	if c.HandoffDelay < 0 {
		c.HandoffDelay = 0
	}
	if c.ConsultMaxParticipants <= 0 {
		c.ConsultMaxParticipants = d.ConsultMaxParticipants
	}
	return c
}

// Option configures an Engine.
type Option func(e *Engine)

func WithStore(s Store) Option { return func(e *Engine) { e.store = s } }

func WithSummaryProvider(p summary.Provider) Option { return func(e *Engine) { e.summaries = p } }

func WithTranscripts(src summary.TranscriptSource) Option {
	return func(e *Engine) { e.transcripts = src }
}

func WithSynthesizer(s speech.Synthesizer) Option { return func(e *Engine) { e.tts = s } }

func WithDataSender(s DataSender) Option { return func(e *Engine) { e.sender = s } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observers = append(e.observers, o) } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

type task struct {
	ctx        context.Context
	cancel     context.CancelFunc
	signal     chan struct{}
	signalOnce sync.Once
	done       chan struct{}
}

func (t *task) wake() {
	t.signalOnce.Do(func() { close(t.signal) })
}

// Engine runs one workflow goroutine per transfer.
type Engine struct {
	cfg         Config
	rooms       Rooms
	store       Store
	summaries   summary.Provider
	transcripts summary.TranscriptSource
	tts         speech.Synthesizer
	sender      DataSender
	observers   []Observer
	recorder    Recorder
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// NewEngine creates a transfer engine.
func NewEngine(cfg Config, rooms Rooms, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         cfg.normalized(),
		rooms:       rooms,
		store:       NewMemoryStore(),
		summaries:   summary.NewBasicProvider(),
		transcripts: summary.NewMemoryTranscripts(),
		tts:         speech.NopSynthesizer{},
		sender:      nopSender{},
		recorder:    nopRecorder{},
		tracer:      otel.Tracer("github.com/BaSui01/warmtransfer/transfer"),
		logger:      logger.With(zap.String("component", "transfer_engine")),
		now:         time.Now,
		baseCtx:     ctx,
		baseCancel:  cancel,
		tasks:       make(map[string]*task),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective workflow timings.
func (e *Engine) Config() Config { return e.cfg }

// InitiateRequest starts a warm transfer.
type InitiateRequest struct {
	OriginalRoom string
	Caller       string
	AgentA       string
	AgentB       string
	Context      string
}

// InitiateResult is returned synchronously by Initiate.
type InitiateResult struct {
	TransferID    string    `json:"transfer_id"`
	ConsultRoomID string    `json:"consultation_room_id"`
	TokenAgentA   string    `json:"agent_a_token"`
	TokenAgentB   string    `json:"agent_b_token"`
	Transfer      *Transfer `json:"transfer"`
}

func newTransferID() string {
	return "transfer_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Initiate creates the consultation room, issues both agent tokens, records
// the transfer as pending and launches its workflow.
func (e *Engine) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	for _, f := range []struct{ name, value string }{
		{"original room", req.OriginalRoom},
		{"caller", req.Caller},
		{"agent_a", req.AgentA},
		{"agent_b", req.AgentB},
	} {
		if strings.TrimSpace(f.value) == "" {
			return nil, types.NewInvalidRequestError(f.name + " is required")
		}
	}
	if req.AgentA == req.AgentB {
		return nil, types.NewInvalidRequestError("agent_a and agent_b must be different identities")
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, types.NewInvalidStateError("transfer engine is shutting down")
	}

	id := newTransferID()
	log := e.logger.With(zap.String("transfer_id", id))

	consultID, err := e.rooms.CreateRoom(ctx, "Consultation_"+id, room.TypeConsultation, e.cfg.ConsultMaxParticipants,
		room.WithRoomMetadata(map[string]any{
			"transfer_id":      id,
			"transfer_context": req.Context,
			"original_room":    req.OriginalRoom,
		}))
	if err != nil {
		return nil, fmt.Errorf("create consultation room: %w", err)
	}

	tokenA, err := e.rooms.GenerateJoinToken(ctx, room.TokenRequest{
		RoomID:   consultID,
		Identity: req.AgentA,
		Name:     fmt.Sprintf("Agent A (%s)", req.AgentA),
		Role:     room.RoleAgentA,
		Metadata: map[string]any{"transfer_id": id},
	})
	if err != nil {
		e.discardRoom(ctx, log, consultID)
		return nil, err
	}
	tokenB, err := e.rooms.GenerateJoinToken(ctx, room.TokenRequest{
		RoomID:   consultID,
		Identity: req.AgentB,
		Name:     fmt.Sprintf("Agent B (%s)", req.AgentB),
		Role:     room.RoleAgentB,
		Metadata: map[string]any{"transfer_id": id},
	})
	if err != nil {
		e.discardRoom(ctx, log, consultID)
		return nil, err
	}

	// The task is registered before the transfer becomes visible so a signal
	// racing the first snapshot always finds something to wake.
	tk, err := e.reserve(id)
	if err != nil {
		e.discardRoom(ctx, log, consultID)
		return nil, err
	}

	now := e.now()
	t := &Transfer{
		ID:           id,
		Status:       StatusPending,
		OriginalRoom: req.OriginalRoom,
		ConsultRoom:  consultID,
		Participants: Participants{Caller: req.Caller, AgentA: req.AgentA, AgentB: req.AgentB},
		Context:      req.Context,
		CreatedAt:    now,
		UpdatedAt:    now,
		Steps: []Step{
			{Name: StepInitiated, At: now},
			{Name: StepConsultRoomCreated, At: now, Detail: consultID},
		},
	}
	if err := e.store.Create(ctx, t); err != nil {
		e.release(id, tk)
		e.discardRoom(ctx, log, consultID)
		return nil, fmt.Errorf("store transfer: %w", err)
	}

	e.recorder.TransferInitiated()
	for _, s := range t.Steps {
		e.recorder.StepRecorded(s.Name)
	}
	e.notify(t)
	e.start(t.Clone(), tk)

	log.Info("warm transfer initiated",
		zap.String("original_room", req.OriginalRoom),
		zap.String("consult_room", consultID),
		zap.String("agent_a", req.AgentA),
		zap.String("agent_b", req.AgentB),
	)
	return &InitiateResult{
		TransferID:    id,
		ConsultRoomID: consultID,
		TokenAgentA:   tokenA,
		TokenAgentB:   tokenB,
		Transfer:      t,
	}, nil
}

func (e *Engine) discardRoom(ctx context.Context, log *zap.Logger, roomID string) {
	if _, err := e.rooms.DeleteRoom(ctx, roomID); err != nil {
		log.Warn("delete consultation room failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// reserve registers a task for id. Shutdown waits for every reserved task.
func (e *Engine) reserve(id string) (*task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, types.NewInvalidStateError("transfer engine is shutting down")
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	tk := &task{ctx: ctx, cancel: cancel, signal: make(chan struct{}), done: make(chan struct{})}
	e.tasks[id] = tk
	e.wg.Add(1)
	return tk, nil
}

// release drops a reserved task that never started.
func (e *Engine) release(id string, tk *task) {
	e.removeTask(id)
	tk.cancel()
	close(tk.done)
	e.wg.Done()
}

// start runs the workflow of a reserved task. A task reserved just before
// Shutdown starts with a cancelled context and records the transfer failed.
func (e *Engine) start(t *Transfer, tk *task) {
	go func() {
		defer e.wg.Done()
		defer close(tk.done)
		defer tk.cancel()
		defer e.removeTask(t.ID)
		e.run(tk.ctx, t, tk)
	}()
}

func (e *Engine) removeTask(id string) {
	e.mu.Lock()
	delete(e.tasks, id)
	e.mu.Unlock()
}

func (e *Engine) task(id string) (*task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tk, ok := e.tasks[id]
	return tk, ok
}

// mutate wraps Store.Update and reports new steps, terminal transitions
// and snapshots.
func (e *Engine) mutate(ctx context.Context, id string, fn func(t *Transfer) error) (*Transfer, error) {
	var before Status
	var stepsBefore int
	t, err := e.store.Update(ctx, id, func(t *Transfer) error {
		before = t.Status
		stepsBefore = len(t.Steps)
		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, s := range t.Steps[stepsBefore:] {
		e.recorder.StepRecorded(s.Name)
	}
	if !before.Terminal() && t.Status.Terminal() {
		e.recorder.TransferFinished(t.Status, t.UpdatedAt.Sub(t.CreatedAt))
	}
	e.notify(t)
	return t, nil
}

func (e *Engine) notify(t *Transfer) {
	for _, o := range e.observers {
		o.TransferUpdated(t.Clone())
	}
}

func notFound(id string, err error) error {
	if errors.Is(err, ErrTransferNotFound) {
		return types.NewNotFoundError("transfer", id).WithCause(err)
	}
	return err
}

// SignalConsultationComplete records that agent_a finished the consultation
// and wakes the workflow. Repeated signals are no-ops.
func (e *Engine) SignalConsultationComplete(ctx context.Context, transferID, agentIdentity string) error {
	_, err := e.mutate(ctx, transferID, func(t *Transfer) error {
		if agentIdentity == "" || agentIdentity != t.Participants.AgentA {
			return types.NewError(types.ErrUnauthorized, "only agent_a can complete the consultation")
		}
		if t.HasStep(StepConsultationComplete) {
			return errNoChange
		}
		if t.Status.Terminal() {
			return types.NewInvalidStateError(fmt.Sprintf("transfer is %s", t.Status))
		}
		t.appendStep(StepConsultationComplete, e.now(), "signaled by "+agentIdentity)
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return notFound(transferID, err)
	}
	if tk, ok := e.task(transferID); ok {
		tk.wake()
	}
	e.logger.Info("consultation complete signaled",
		zap.String("transfer_id", transferID),
		zap.String("identity", agentIdentity),
	)
	return nil
}

// Cancel stops a pending or running transfer and deletes its consultation
// room.
func (e *Engine) Cancel(ctx context.Context, transferID string) error {
	t, err := e.mutate(ctx, transferID, func(t *Transfer) error {
		if t.Status != StatusPending && t.Status != StatusInProgress {
			return types.NewInvalidStateError(fmt.Sprintf("cannot cancel a %s transfer", t.Status))
		}
		now := e.now()
		t.Status = StatusCancelled
		t.CompletedAt = &now
		t.appendStep(StepCancelled, now, "")
		return nil
	})
	if err != nil {
		return notFound(transferID, err)
	}
	if tk, ok := e.task(transferID); ok {
		tk.cancel()
	}

	log := e.logger.With(zap.String("transfer_id", transferID))
	e.discardRoom(ctx, log, t.ConsultRoom)
	e.releaseHold(ctx, log, t)
	log.Info("transfer cancelled")
	return nil
}

// GetStatus returns a snapshot of the transfer.
func (e *Engine) GetStatus(ctx context.Context, transferID string) (*Transfer, bool) {
	t, err := e.store.Get(ctx, transferID)
	if err != nil {
		if !errors.Is(err, ErrTransferNotFound) {
			e.logger.Warn("load transfer failed", zap.String("transfer_id", transferID), zap.Error(err))
		}
		return nil, false
	}
	return t, true
}

// GetSteps returns the ordered step log.
func (e *Engine) GetSteps(ctx context.Context, transferID string) ([]Step, error) {
	t, err := e.store.Get(ctx, transferID)
	if err != nil {
		return nil, notFound(transferID, err)
	}
	return t.Steps, nil
}

// Handoff is agent_b's credential for the caller's room.
type Handoff struct {
	TransferID string
	RoomID     string
	Identity   string
	Token      string
}

// HandoffCredential returns the original-room token minted for agent_b at
// completion. Only the recorded agent_b may fetch it.
func (e *Engine) HandoffCredential(ctx context.Context, transferID, identity string) (*Handoff, error) {
	t, err := e.store.Get(ctx, transferID)
	if err != nil {
		return nil, notFound(transferID, err)
	}
	if identity == "" || identity != t.Participants.AgentB {
		return nil, types.NewError(types.ErrUnauthorized, "only agent_b can fetch the handoff credential")
	}
	if t.Status != StatusCompleted || t.AgentBToken == "" {
		return nil, types.NewInvalidStateError(fmt.Sprintf("transfer is %s, handoff credential not issued", t.Status))
	}
	return &Handoff{
		TransferID: t.ID,
		RoomID:     t.OriginalRoom,
		Identity:   identity,
		Token:      t.AgentBToken,
	}, nil
}

// ListOptions filters List.
type ListOptions struct {
	Status Status
	Limit  int
}

// List returns transfers newest first.
func (e *Engine) List(ctx context.Context, opts ListOptions) ([]*Transfer, error) {
	all, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	out := make([]*Transfer, 0, min(limit, len(all)))
	for _, t := range all {
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Wait blocks until the workflow of transferID exits and returns the final
// snapshot.
func (e *Engine) Wait(ctx context.Context, transferID string) (*Transfer, error) {
	if tk, ok := e.task(transferID); ok {
		select {
		case <-tk.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	t, err := e.store.Get(ctx, transferID)
	if err != nil {
		return nil, notFound(transferID, err)
	}
	return t, nil
}

// PurgeFinished deletes terminal transfers last updated before now-olderThan.
func (e *Engine) PurgeFinished(ctx context.Context, olderThan time.Duration) int {
	all, err := e.store.List(ctx)
	if err != nil {
		e.logger.Warn("purge list failed", zap.Error(err))
		return 0
	}
	cutoff := e.now().Add(-olderThan)
	n := 0
	for _, t := range all {
		if !t.Status.Terminal() || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		if _, running := e.task(t.ID); running {
			continue
		}
		if err := e.store.Delete(ctx, t.ID); err != nil && !errors.Is(err, ErrTransferNotFound) {
			e.logger.Warn("purge transfer failed", zap.String("transfer_id", t.ID), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		e.logger.Info("finished transfers purged", zap.Int("count", n))
	}
	return n
}

// Ready reports whether the engine still accepts transfers.
func (e *Engine) Ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.NewInvalidStateError("transfer engine is shutting down")
	}
	return nil
}

// Running returns the number of live workflow goroutines.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Shutdown stops accepting transfers, cancels every running workflow and
// waits for them to exit.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.baseCancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("transfer engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transfer engine shutdown: %w", ctx.Err())
	}
}

package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/summary"
	"github.com/BaSui01/warmtransfer/types"
)

// SummaryTopic is the data topic used to deliver the call summary to the
// consultation room.
const SummaryTopic = "call_summary"

// summaryPayload is what agents in the consultation room receive.
type summaryPayload struct {
	Type       string   `json:"type"`
	TransferID string   `json:"transfer_id"`
	RoomID     string   `json:"room_id"`
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points"`
	Briefing   string   `json:"briefing"`
	AudioBytes int      `json:"audio_bytes"`
}

// run drives one transfer from in_progress to a terminal status.
func (e *Engine) run(ctx context.Context, t *Transfer, tk *task) {
	log := e.logger.With(zap.String("transfer_id", t.ID))
	log.Debug("workflow started")

	err := e.execute(ctx, t, tk, log)
	switch {
	case err == nil:
		log.Info("warm transfer completed", zap.String("target_room", t.OriginalRoom))
	case errors.Is(err, errStopped):
		log.Info("workflow stopped, transfer already finished")
	case ctx.Err() != nil:
		e.fail(t, types.NewError(types.ErrInternalError, "workflow stopped before completion").WithCause(ctx.Err()), log)
	default:
		e.fail(t, err, log)
	}
}

func (e *Engine) execute(ctx context.Context, t *Transfer, tk *task, log *zap.Logger) error {
	if err := e.stage(ctx, t, "hold_caller", func(ctx context.Context) error {
		return e.holdCaller(ctx, t, log)
	}); err != nil {
		return err
	}

	signaled := false
	if err := e.stage(ctx, t, "wait_for_agents", func(ctx context.Context) error {
		var err error
		signaled, err = e.waitForAgents(ctx, t, tk, log)
		return err
	}); err != nil {
		return err
	}

	if !signaled {
		if err := e.stage(ctx, t, "summary", func(ctx context.Context) error {
			return e.deliverSummary(ctx, t, log)
		}); err != nil {
			return err
		}
		if err := e.stage(ctx, t, "await_consultation", func(ctx context.Context) error {
			return e.awaitConsultation(ctx, t, tk, log)
		}); err != nil {
			return err
		}
	}

	return e.stage(ctx, t, "complete", func(ctx context.Context) error {
		return e.complete(ctx, t, log)
	})
}

// stage runs fn inside a span named after the workflow stage.
func (e *Engine) stage(ctx context.Context, t *Transfer, name string, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "transfer."+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("transfer.id", t.ID),
		attribute.String("transfer.original_room", t.OriginalRoom),
		attribute.String("transfer.consult_room", t.ConsultRoom),
	)
	err := fn(ctx)
	if err != nil && !errors.Is(err, errStopped) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// advance applies fn unless the transfer has reached a terminal status.
func (e *Engine) advance(ctx context.Context, id string, fn func(t *Transfer)) (*Transfer, error) {
	t, err := e.mutate(ctx, id, func(t *Transfer) error {
		if t.Status.Terminal() {
			return errStopped
		}
		fn(t)
		return nil
	})
	if errors.Is(err, ErrTransferNotFound) {
		return nil, errStopped
	}
	return t, err
}

func (e *Engine) holdCaller(ctx context.Context, t *Transfer, log *zap.Logger) error {
	if err := e.rooms.SetParticipantHold(ctx, t.OriginalRoom, t.Participants.Caller, true); err != nil {
		log.Warn("put caller on hold failed",
			zap.String("room_id", t.OriginalRoom),
			zap.String("identity", t.Participants.Caller),
			zap.Error(err),
		)
	}
	_, err := e.advance(ctx, t.ID, func(t *Transfer) {
		t.Status = StatusInProgress
		t.appendStep(StepCallerOnHold, e.now(), "")
	})
	return err
}

// waitForAgents returns once both agents are in the consultation room, or
// early with signaled=true when agent_a completes the consultation first.
func (e *Engine) waitForAgents(ctx context.Context, t *Transfer, tk *task, log *zap.Logger) (bool, error) {
	deadline := time.NewTimer(e.cfg.AgentJoinTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		signaled, err := e.storedSignal(ctx, t.ID)
		if err != nil || signaled {
			if signaled {
				log.Info("consultation completed before both agents joined")
			}
			return signaled, err
		}

		changed := e.rooms.Watch(t.ConsultRoom)
		if err := e.rooms.SyncParticipants(ctx, t.ConsultRoom); err != nil {
			log.Debug("consultation room sync failed", zap.Error(err))
		}
		if r, ok := e.rooms.GetRoomInfo(ctx, t.ConsultRoom); ok &&
			r.HasConnected(room.RoleAgentA, e.cfg.RequireConnected) &&
			r.HasConnected(room.RoleAgentB, e.cfg.RequireConnected) {
			_, err := e.advance(ctx, t.ID, func(t *Transfer) {
				t.appendStep(StepAgentsConnected, e.now(), "")
			})
			if err == nil {
				log.Info("both agents connected", zap.String("room_id", t.ConsultRoom))
			}
			return false, err
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-tk.signal:
			log.Info("consultation completed before both agents joined")
			return true, nil
		case <-deadline.C:
			return false, types.Errorf(types.ErrTimeout, "agents did not connect within %s", e.cfg.AgentJoinTimeout)
		case <-ticker.C:
		case <-changed:
		}
	}
}

func (e *Engine) deliverSummary(ctx context.Context, t *Transfer, log *zap.Logger) error {
	entries, err := e.transcripts.Transcript(ctx, t.OriginalRoom)
	if err != nil {
		log.Warn("transcript unavailable, summarizing without it", zap.Error(err))
		entries = nil
	}

	sum, err := e.summaries.Summarize(ctx, summary.Request{RoomID: t.OriginalRoom, Entries: entries, Context: t.Context})
	if err != nil {
		return upstream("summary provider", err)
	}
	if _, err := e.advance(ctx, t.ID, func(t *Transfer) {
		t.Summary = sum.Content
		t.KeyPoints = sum.KeyPoints
		t.appendStep(StepSummaryGenerated, e.now(), sum.ID)
	}); err != nil {
		return err
	}

	brief, err := e.summaries.Brief(ctx, summary.BriefRequest{
		Summary:    sum.Content,
		AgentName:  e.displayName(ctx, t.ConsultRoom, t.Participants.AgentB),
		CallerName: e.displayName(ctx, t.OriginalRoom, t.Participants.Caller),
		Extra:      t.Context,
	})
	if err != nil {
		return upstream("summary provider", err)
	}

	audio, err := e.tts.Synthesize(ctx, brief)
	if err != nil {
		log.Warn("briefing speech synthesis failed", zap.String("tts", e.tts.Name()), zap.Error(err))
		audio = nil
	}

	payload, err := json.Marshal(summaryPayload{
		Type:       SummaryTopic,
		TransferID: t.ID,
		RoomID:     t.OriginalRoom,
		Summary:    sum.Content,
		KeyPoints:  sum.KeyPoints,
		Briefing:   brief,
		AudioBytes: len(audio),
	})
	if err != nil {
		return fmt.Errorf("marshal summary payload: %w", err)
	}
	if err := e.sender.SendData(ctx, t.ConsultRoom, SummaryTopic, payload); err != nil {
		log.Warn("send summary to consultation room failed", zap.String("room_id", t.ConsultRoom), zap.Error(err))
	}

	_, err = e.advance(ctx, t.ID, func(t *Transfer) {
		t.Briefing = brief
		t.appendStep(StepSummaryPlayed, e.now(), "")
	})
	return err
}

func (e *Engine) displayName(ctx context.Context, roomID, identity string) string {
	if p, ok := e.participant(ctx, roomID, identity); ok && p.Name != "" {
		return p.Name
	}
	return identity
}

// storedSignal reads the persisted transfer. A signal recorded before the
// task could be woken, or by another process sharing the store, is only
// visible here.
func (e *Engine) storedSignal(ctx context.Context, id string) (bool, error) {
	cur, err := e.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrTransferNotFound):
		return false, errStopped
	case err != nil:
		e.logger.Debug("reload transfer failed", zap.String("transfer_id", id), zap.Error(err))
		return false, nil
	case cur.Status.Terminal():
		return false, errStopped
	}
	return cur.HasStep(StepConsultationComplete), nil
}

func (e *Engine) awaitConsultation(ctx context.Context, t *Transfer, tk *task, log *zap.Logger) error {
	var dwell <-chan time.Time
	if e.cfg.ConsultationDwell > 0 {
		timer := time.NewTimer(e.cfg.ConsultationDwell)
		defer timer.Stop()
		dwell = timer.C
	}
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		signaled, err := e.storedSignal(ctx, t.ID)
		if err != nil || signaled {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.signal:
			return nil
		case <-ticker.C:
		case <-dwell:
			_, err := e.advance(ctx, t.ID, func(t *Transfer) {
				if !t.HasStep(StepConsultationComplete) {
					t.appendStep(StepConsultationComplete, e.now(), "dwell elapsed")
				}
			})
			if err == nil {
				log.Info("consultation dwell elapsed", zap.Duration("dwell", e.cfg.ConsultationDwell))
			}
			return err
		}
	}
}

func (e *Engine) complete(ctx context.Context, t *Transfer, log *zap.Logger) (err error) {
	if _, err := e.storedSignal(ctx, t.ID); err != nil {
		return err
	}

	_, wasPresent := e.participant(ctx, t.OriginalRoom, t.Participants.AgentB)
	token, err := e.rooms.GenerateJoinToken(ctx, room.TokenRequest{
		RoomID:   t.OriginalRoom,
		Identity: t.Participants.AgentB,
		Name:     e.displayName(ctx, t.ConsultRoom, t.Participants.AgentB),
		Role:     room.RoleAgentB,
		Metadata: map[string]any{"transfer_id": t.ID},
	})
	if err != nil {
		return err
	}
	// Until the transfer is recorded completed, agent_b is only provisionally
	// registered in the caller's room.
	defer func() {
		if err != nil && !wasPresent {
			e.withdrawAgentB(t, log)
		}
	}()

	if e.cfg.HandoffDelay > 0 {
		timer := time.NewTimer(e.cfg.HandoffDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if _, err := e.storedSignal(ctx, t.ID); err != nil {
		return err
	}

	if _, err := e.rooms.RemoveParticipant(ctx, t.OriginalRoom, t.Participants.AgentA); err != nil {
		log.Warn("remove agent_a from original room failed",
			zap.String("room_id", t.OriginalRoom),
			zap.String("identity", t.Participants.AgentA),
			zap.Error(err),
		)
	}
	e.releaseHold(ctx, log, t)
	e.discardRoom(ctx, log, t.ConsultRoom)

	_, err = e.advance(ctx, t.ID, func(t *Transfer) {
		now := e.now()
		t.Status = StatusCompleted
		t.TargetRoom = t.OriginalRoom
		t.AgentBToken = token
		t.CompletedAt = &now
		t.appendStep(StepTransferComplete, now, "")
	})
	return err
}

func (e *Engine) participant(ctx context.Context, roomID, identity string) (*room.ParticipantInfo, bool) {
	r, ok := e.rooms.GetRoomInfo(ctx, roomID)
	if !ok {
		return nil, false
	}
	p, ok := r.Participants[identity]
	return p, ok
}

// withdrawAgentB removes agent_b from the original room after the handoff
// was abandoned. It runs detached from the stopped workflow context.
func (e *Engine) withdrawAgentB(t *Transfer, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.baseCtx), 10*time.Second)
	defer cancel()
	if _, err := e.rooms.RemoveParticipant(ctx, t.OriginalRoom, t.Participants.AgentB); err != nil {
		log.Warn("withdraw agent_b from original room failed",
			zap.String("room_id", t.OriginalRoom),
			zap.String("identity", t.Participants.AgentB),
			zap.Error(err),
		)
		return
	}
	log.Info("handoff abandoned, agent_b withdrawn from original room", zap.String("room_id", t.OriginalRoom))
}

func (e *Engine) releaseHold(ctx context.Context, log *zap.Logger, t *Transfer) {
	err := e.rooms.SetParticipantHold(ctx, t.OriginalRoom, t.Participants.Caller, false)
	if err != nil && !types.IsCode(err, types.ErrNotFound) {
		log.Warn("release caller hold failed", zap.String("room_id", t.OriginalRoom), zap.Error(err))
	}
}

// fail records err on the transfer unless it already finished, and cleans
// up the consultation room.
func (e *Engine) fail(t *Transfer, cause error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.baseCtx), 10*time.Second)
	defer cancel()

	code := types.GetErrorCode(cause)
	if code == "" {
		code = types.ErrInternalError
	}
	_, err := e.advance(ctx, t.ID, func(t *Transfer) {
		now := e.now()
		t.Status = StatusFailed
		t.ErrorDetails = cause.Error()
		t.ErrorCode = code
		t.CompletedAt = &now
		t.appendStep(StepFailed, now, string(code))
	})
	if errors.Is(err, errStopped) {
		return
	}
	if err != nil {
		log.Error("record transfer failure failed", zap.Error(err))
	}
	log.Warn("warm transfer failed", zap.String("error_code", string(code)), zap.Error(cause))

	e.discardRoom(ctx, log, t.ConsultRoom)
	e.releaseHold(ctx, log, t)
}

func upstream(provider string, err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewUpstreamError(provider, err)
}

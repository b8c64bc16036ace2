package transfer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/warmtransfer/summary"
)

func TestEngine_ParallelDuplicateSignals(t *testing.T) {
	e, rooms := newTestEngine(t, fastConfig())
	seedCall(t, rooms)
	res := initiate(t, e)
	connect(t, rooms, res.ConsultRoomID, "a1", "b1")
	waitForStep(t, e, res.TransferID, StepAgentsConnected)

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = e.SignalConsultationComplete(context.Background(), res.TransferID, "a1")
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "signal %d", i)
	}
	final := waitDone(t, e, res.TransferID)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 1, countStep(final, StepConsultationComplete))
	assert.Equal(t, 1, countStep(final, StepTransferComplete))
}

func TestEngine_SignalRacingDwell(t *testing.T) {
	cfg := fastConfig()
	cfg.ConsultationDwell = time.Millisecond
	cfg.HandoffDelay = 0

	for i := 0; i < 20; i++ {
		t.Run(fmt.Sprintf("run_%d", i), func(t *testing.T) {
			e, rooms := newTestEngine(t, cfg)
			seedCall(t, rooms)
			res := initiate(t, e)
			connect(t, rooms, res.ConsultRoomID, "a1", "b1")
			waitForStep(t, e, res.TransferID, StepSummaryPlayed)

			var signalErr error
			done := make(chan struct{})
			go func() {
				defer close(done)
				signalErr = e.SignalConsultationComplete(context.Background(), res.TransferID, "a1")
			}()
			final := waitDone(t, e, res.TransferID)
			<-done

			assert.NoError(t, signalErr, "a signal after the dwell is a no-op")
			assert.Equal(t, StatusCompleted, final.Status)
			assert.Equal(t, 1, countStep(final, StepConsultationComplete))
		})
	}
}

// blockingProvider parks Summarize until its context ends.
type blockingProvider struct {
	summary.Provider
	entered chan struct{}
	once    sync.Once
}

func (p *blockingProvider) Summarize(ctx context.Context, _ summary.Request) (*summary.CallSummary, error) {
	p.once.Do(func() { close(p.entered) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_CancelDuringSummary(t *testing.T) {
	provider := &blockingProvider{Provider: summary.NewBasicProvider(), entered: make(chan struct{})}
	e, rooms := newTestEngine(t, fastConfig(), WithSummaryProvider(provider))
	seedCall(t, rooms)
	ctx := context.Background()

	res := initiate(t, e)
	connect(t, rooms, res.ConsultRoomID, "a1", "b1")
	select {
	case <-provider.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("summary never requested")
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.Cancel(ctx, res.TransferID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one cancel wins")

	final := waitDone(t, e, res.TransferID)
	assert.Equal(t, StatusCancelled, final.Status)
	assert.Equal(t, 1, countStep(final, StepCancelled))
	assert.False(t, final.HasStep(StepSummaryGenerated))
	assert.False(t, final.HasStep(StepFailed))
	assert.False(t, final.HasStep(StepTransferComplete))

	_, ok := rooms.GetRoomInfo(ctx, res.ConsultRoomID)
	assert.False(t, ok, "consultation room is deleted")
	require.Zero(t, e.Running())
}

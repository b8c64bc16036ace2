package summary

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/types"
)

// GenerateOptions controls Service.Generate.
type GenerateOptions struct {
	ExcludeTranscript bool
	// MaxAge keeps only entries newer than now-MaxAge when positive.
	MaxAge  time.Duration
	Context string
}

// Service ties a transcript source to a provider and keeps generated
// summaries for later lookup.
type Service struct {
	source   TranscriptSource
	provider Provider
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	summaries map[string]*CallSummary
}

// NewService creates a summary service.
func NewService(source TranscriptSource, provider Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == nil {
		source = NewMemoryTranscripts()
	}
	if provider == nil {
		provider = NewBasicProvider()
	}
	return &Service{
		source:    source,
		provider:  provider,
		logger:    logger.With(zap.String("component", "summary_service")),
		now:       time.Now,
		summaries: make(map[string]*CallSummary),
	}
}

// Source returns the transcript source.
func (s *Service) Source() TranscriptSource { return s.source }

// Provider returns the summary provider.
func (s *Service) Provider() Provider { return s.provider }

// AddEntry appends an utterance to a room transcript. A zero timestamp is
// set to now.
func (s *Service) AddEntry(ctx context.Context, roomID string, entry TranscriptEntry) error {
	if roomID == "" || entry.SpeakerIdentity == "" {
		return types.NewInvalidRequestError("room id and speaker identity are required")
	}
	if entry.Text == "" {
		return types.NewInvalidRequestError("text is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	return s.source.Append(ctx, roomID, entry)
}

// Transcript returns a room transcript.
func (s *Service) Transcript(ctx context.Context, roomID string) ([]TranscriptEntry, error) {
	return s.source.Transcript(ctx, roomID)
}

// Generate summarizes a room and stores the result.
func (s *Service) Generate(ctx context.Context, roomID string, opts GenerateOptions) (*CallSummary, error) {
	var entries []TranscriptEntry
	if !opts.ExcludeTranscript {
		var err error
		entries, err = s.source.Transcript(ctx, roomID)
		if err != nil {
			s.logger.Warn("transcript unavailable", zap.String("room_id", roomID), zap.Error(err))
			entries = nil
		}
		if opts.MaxAge > 0 {
			cutoff := s.now().Add(-opts.MaxAge)
			kept := entries[:0]
			for _, e := range entries {
				if !e.Timestamp.Before(cutoff) {
					kept = append(kept, e)
				}
			}
			entries = kept
		}
	}

	summary, err := s.provider.Summarize(ctx, Request{RoomID: roomID, Entries: entries, Context: opts.Context})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.summaries[summary.ID] = summary
	s.mu.Unlock()

	s.logger.Info("call summary generated",
		zap.String("room_id", roomID),
		zap.String("summary_id", summary.ID),
		zap.String("provider", s.provider.Name()),
	)
	return summary, nil
}

// Get returns a stored summary.
func (s *Service) Get(id string) (*CallSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[id]
	return sum, ok
}

// List returns stored summaries, newest first, optionally for one room.
func (s *Service) List(roomID string) []*CallSummary {
	s.mu.RLock()
	out := make([]*CallSummary, 0, len(s.summaries))
	for _, sum := range s.summaries {
		if roomID == "" || sum.RoomID == roomID {
			out = append(out, sum)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	return out
}

// Cleanup removes summaries older than maxAge, and in-memory transcripts
// whose last entry is older than maxAge.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	n := 0
	s.mu.Lock()
	for id, sum := range s.summaries {
		if sum.GeneratedAt.Before(cutoff) {
			delete(s.summaries, id)
			n++
		}
	}
	s.mu.Unlock()
	if mem, ok := s.source.(*MemoryTranscripts); ok {
		n += mem.Cleanup(ctx, cutoff)
	}
	if n > 0 {
		s.logger.Info("old summaries cleaned", zap.Int("count", n))
	}
	return n
}

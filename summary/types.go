package summary

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TranscriptEntry is one utterance in a call.
type TranscriptEntry struct {
	SpeakerIdentity string    `json:"speaker_identity"`
	SpeakerName     string    `json:"speaker_name"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	Confidence      *float64  `json:"confidence,omitempty"`
}

// CallSummary is the generated overview of a call.
type CallSummary struct {
	ID                 string    `json:"summary_id"`
	RoomID             string    `json:"room_id"`
	Content            string    `json:"content"`
	KeyPoints          []string  `json:"key_points"`
	DurationSeconds    int       `json:"duration_seconds"`
	ParticipantCount   int       `json:"participant_count"`
	GeneratedAt        time.Time `json:"generated_at"`
	TranscriptIncluded bool      `json:"transcript_included"`
}

// Request asks a Provider to summarize a call.
type Request struct {
	RoomID  string
	Entries []TranscriptEntry
	Context string
}

// BriefRequest asks a Provider for a short handoff briefing.
type BriefRequest struct {
	Summary    string
	AgentName  string
	CallerName string
	Extra      string
}

// Provider produces call summaries and agent briefings.
type Provider interface {
	Name() string
	Summarize(ctx context.Context, req Request) (*CallSummary, error)
	Brief(ctx context.Context, req BriefRequest) (string, error)
}

// TranscriptSource stores and returns per-room transcripts.
type TranscriptSource interface {
	Append(ctx context.Context, roomID string, entry TranscriptEntry) error
	Transcript(ctx context.Context, roomID string) ([]TranscriptEntry, error)
}

// FormatTranscript renders entries as "[HH:MM:SS] Name: text" lines.
func FormatTranscript(entries []TranscriptEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, formatEntry(e))
	}
	return strings.Join(lines, "\n")
}

func formatEntry(e TranscriptEntry) string {
	name := e.SpeakerName
	if name == "" {
		name = e.SpeakerIdentity
	}
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05"), name, e.Text)
}

// Duration returns the seconds between the earliest and latest entry.
func Duration(entries []TranscriptEntry) int {
	if len(entries) < 2 {
		return 0
	}
	start, end := entries[0].Timestamp, entries[0].Timestamp
	for _, e := range entries[1:] {
		if e.Timestamp.Before(start) {
			start = e.Timestamp
		}
		if e.Timestamp.After(end) {
			end = e.Timestamp
		}
	}
	return int(end.Sub(start).Seconds())
}

// Speakers counts distinct speaker identities.
func Speakers(entries []TranscriptEntry) int {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.SpeakerIdentity] = struct{}{}
	}
	return len(seen)
}

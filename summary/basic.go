package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxKeyPoints = 5

var topicKeywords = []string{"problem", "issue", "help", "support", "transfer", "escalate"}

// BasicProvider builds summaries from transcript statistics without any
// network calls. Its output is deterministic apart from ID and GeneratedAt.
type BasicProvider struct {
	now func() time.Time
}

// NewBasicProvider creates a BasicProvider.
func NewBasicProvider() *BasicProvider {
	return &BasicProvider{now: time.Now}
}

func (p *BasicProvider) Name() string { return "basic" }

// Summarize implements Provider.
func (p *BasicProvider) Summarize(_ context.Context, req Request) (*CallSummary, error) {
	s := &CallSummary{
		ID:          newSummaryID(),
		RoomID:      req.RoomID,
		GeneratedAt: p.now(),
	}
	if len(req.Entries) == 0 {
		s.Content = fmt.Sprintf("Call summary for room %s. No transcript available.", req.RoomID)
		s.KeyPoints = []string{"No transcript data available for analysis"}
		return s, nil
	}

	s.TranscriptIncluded = true
	s.DurationSeconds = Duration(req.Entries)
	s.ParticipantCount = Speakers(req.Entries)
	s.Content = fmt.Sprintf("Call involved %d participants with %d exchanges. Conversation started with: %s",
		s.ParticipantCount, len(req.Entries), req.Entries[0].Text)
	if req.Context != "" {
		s.Content += " Context: " + req.Context
	}
	s.KeyPoints = basicKeyPoints(req.Entries)
	return s, nil
}

func basicKeyPoints(entries []TranscriptEntry) []string {
	points := []string{
		fmt.Sprintf("Total conversation length: %d exchanges", len(entries)),
		fmt.Sprintf("Conversation duration: %d seconds", Duration(entries)),
	}

	questions := 0
	var mentioned []string
	for _, e := range entries {
		if strings.Contains(e.Text, "?") {
			questions++
		}
	}
	for _, kw := range topicKeywords {
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Text), kw) {
				mentioned = append(mentioned, kw)
				break
			}
		}
	}

	if questions > 0 {
		points = append(points, fmt.Sprintf("Questions or issues raised: %d", questions))
	}
	if len(mentioned) > 0 {
		points = append(points, "Key topics mentioned: "+strings.Join(mentioned, ", "))
	}
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	return points
}

// Brief implements Provider with a fixed template.
func (p *BasicProvider) Brief(_ context.Context, req BriefRequest) (string, error) {
	agent := req.AgentName
	if agent == "" {
		agent = "the receiving agent"
	}
	caller := req.CallerName
	if caller == "" {
		caller = "the customer"
	}
	brief := fmt.Sprintf("Briefing for %s before taking over the call with %s. %s", agent, caller, req.Summary)
	if req.Extra != "" {
		brief += " Additional context: " + req.Extra
	}
	return brief, nil
}

func newSummaryID() string {
	return "summary_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

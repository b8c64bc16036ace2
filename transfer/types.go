package transfer

import (
	"errors"
	"time"

	"github.com/BaSui01/warmtransfer/types"
)

// Common errors
var (
	ErrTransferNotFound = errors.New("transfer not found")
	ErrTransferExists   = errors.New("transfer already exists")
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StepName identifies a workflow step.
type StepName string

const (
	StepInitiated            StepName = "initiated"
	StepConsultRoomCreated   StepName = "consult_room_created"
	StepCallerOnHold         StepName = "caller_on_hold"
	StepAgentsConnected      StepName = "agents_connected"
	StepSummaryGenerated     StepName = "summary_generated"
	StepSummaryPlayed        StepName = "summary_played"
	StepConsultationComplete StepName = "consultation_complete"
	StepTransferComplete     StepName = "transfer_complete"
	StepFailed               StepName = "failed"
	StepCancelled            StepName = "transfer_cancelled"
)

// Step is one entry of the step log.
type Step struct {
	Name   StepName  `json:"step"`
	At     time.Time `json:"timestamp"`
	Detail string    `json:"detail,omitempty"`
}

// Participants maps transfer roles to identities.
type Participants struct {
	Caller string `json:"caller"`
	AgentA string `json:"agent_a"`
	AgentB string `json:"agent_b"`
}

// Transfer is the state of one warm transfer.
type Transfer struct {
	ID           string          `json:"transfer_id"`
	Status       Status          `json:"status"`
	OriginalRoom string          `json:"original_room_id"`
	ConsultRoom  string          `json:"consultation_room_id"`
	TargetRoom   string          `json:"target_room_id,omitempty"`
	Participants Participants    `json:"participants"`
	Context      string          `json:"context,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Steps        []Step          `json:"steps"`
	Summary      string          `json:"call_summary,omitempty"`
	KeyPoints    []string        `json:"key_points,omitempty"`
	Briefing     string          `json:"briefing,omitempty"`
	ErrorDetails string          `json:"error_details,omitempty"`
	ErrorCode    types.ErrorCode `json:"error_code,omitempty"`
	AgentBToken  string          `json:"agent_b_token,omitempty"`
}

// Clone returns a deep copy of t.
func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	c := *t
	c.Steps = append([]Step(nil), t.Steps...)
	c.KeyPoints = append([]string(nil), t.KeyPoints...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// HasStep reports whether name is in the step log.
func (t *Transfer) HasStep(name StepName) bool {
	for _, s := range t.Steps {
		if s.Name == name {
			return true
		}
	}
	return false
}

// StepNames returns the step log as names.
func (t *Transfer) StepNames() []StepName {
	out := make([]StepName, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Name
	}
	return out
}

func (t *Transfer) appendStep(name StepName, at time.Time, detail string) {
	t.Steps = append(t.Steps, Step{Name: name, At: at, Detail: detail})
	t.UpdatedAt = at
}

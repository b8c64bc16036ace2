package api

import (
	"time"

	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/summary"
	"github.com/BaSui01/warmtransfer/transfer"
)

// =============================================================================
// 房间
// =============================================================================

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	RoomName        string         `json:"room_name"`
	RoomType        room.Type      `json:"room_type,omitempty" example:"call"`
	MaxParticipants int            `json:"max_participants,omitempty" example:"10"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// CreateRoomResponse 创建房间响应
type CreateRoomResponse struct {
	RoomID     string    `json:"room_id"`
	RoomName   string    `json:"room_name"`
	RoomType   room.Type `json:"room_type"`
	CreatedAt  time.Time `json:"created_at"`
	LiveKitURL string    `json:"livekit_url,omitempty"`
}

// RoomListResponse 房间列表
type RoomListResponse struct {
	Rooms []*room.Room `json:"rooms"`
	Total int          `json:"total"`
}

// DeleteRoomResponse 删除房间响应
type DeleteRoomResponse struct {
	RoomID  string `json:"room_id"`
	Deleted bool   `json:"deleted"`
}

// CleanupResponse 清理结果
type CleanupResponse struct {
	Cleaned       int `json:"cleaned"`
	MaxAgeMinutes int `json:"max_age_minutes"`
}

// =============================================================================
// 参与者
// =============================================================================

// TokenRequest 加入令牌请求
type TokenRequest struct {
	RoomID   string         `json:"room_id"`
	Identity string         `json:"identity"`
	Name     string         `json:"name,omitempty"`
	Role     room.Role      `json:"role,omitempty" example:"caller"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TokenResponse 加入令牌响应
type TokenResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url,omitempty"`
	RoomID    string    `json:"room_id"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConnectedRequest 媒体服务器上报的连接状态
type ConnectedRequest struct {
	RoomID    string `json:"room_id"`
	Identity  string `json:"identity"`
	Connected bool   `json:"connected"`
}

// HoldRequest 保持/恢复请求
type HoldRequest struct {
	RoomID              string `json:"room_id"`
	ParticipantIdentity string `json:"participant_identity"`
}

// HoldResponse 保持/恢复响应
type HoldResponse struct {
	Success             bool       `json:"success"`
	ParticipantIdentity string     `json:"participant_identity"`
	OnHold              bool       `json:"is_on_hold"`
	HoldStartedAt       *time.Time `json:"hold_started_at,omitempty"`
}

// MoveRequest 把参与者移动到另一个房间
type MoveRequest struct {
	Identity   string    `json:"identity"`
	Name       string    `json:"name,omitempty"`
	FromRoomID string    `json:"from_room_id"`
	ToRoomID   string    `json:"to_room_id"`
	Role       room.Role `json:"role,omitempty"`
}

// RemoveParticipantResponse 移除参与者响应
type RemoveParticipantResponse struct {
	RoomID   string `json:"room_id"`
	Identity string `json:"identity"`
	Removed  bool   `json:"removed"`
}

// =============================================================================
// 通话
// =============================================================================

// TranscriptEntryRequest 追加转写条目
type TranscriptEntryRequest struct {
	SpeakerIdentity string    `json:"speaker_identity"`
	SpeakerName     string    `json:"speaker_name,omitempty"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
	Confidence      *float64  `json:"confidence,omitempty"`
}

// TranscriptResponse 房间转写
type TranscriptResponse struct {
	RoomID               string                    `json:"room_id"`
	Entries              []summary.TranscriptEntry `json:"entries"`
	TotalDurationSeconds int                       `json:"total_duration_seconds"`
	GeneratedAt          time.Time                 `json:"generated_at"`
}

// SummaryRequest 生成摘要请求，空请求体使用默认值
type SummaryRequest struct {
	IncludeTranscript  *bool  `json:"include_transcript,omitempty"`
	MaxDurationMinutes int    `json:"max_duration_minutes,omitempty"`
	Context            string `json:"context,omitempty"`
}

// SummaryListResponse 摘要列表
type SummaryListResponse struct {
	RoomID    string                 `json:"room_id"`
	Summaries []*summary.CallSummary `json:"summaries"`
}

// BriefingRequest 交接简报请求
type BriefingRequest struct {
	AgentBName        string `json:"agent_b_name"`
	CallerName        string `json:"caller_name,omitempty" example:"Customer"`
	AdditionalContext string `json:"additional_context,omitempty"`
}

// BriefingResponse 交接简报响应
type BriefingResponse struct {
	Briefing    string    `json:"briefing"`
	SummaryID   string    `json:"summary_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// =============================================================================
// 转接
// =============================================================================

// InitiateTransferRequest 发起热转接。caller_identity 与 agent_a_identity
// 缺省时按原房间中的角色推断。
type InitiateTransferRequest struct {
	RoomID         string `json:"room_id"`
	TargetAgentID  string `json:"target_agent_id"`
	CallerIdentity string `json:"caller_identity,omitempty"`
	AgentAIdentity string `json:"agent_a_identity,omitempty"`
	Context        string `json:"call_summary,omitempty"`
}

// InitiateTransferResponse 发起转接响应
type InitiateTransferResponse struct {
	TransferID    string          `json:"transfer_id"`
	ConsultRoomID string          `json:"consult_room_id"`
	TokenAgentA   string          `json:"consult_token_agent_a"`
	TokenAgentB   string          `json:"consult_token_agent_b"`
	Status        transfer.Status `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	LiveKitURL    string          `json:"livekit_url,omitempty"`
}

// ConsultationCompleteRequest agent_a 结束咨询
type ConsultationCompleteRequest struct {
	AgentIdentity string `json:"agent_identity"`
	Notes         string `json:"notes,omitempty"`
}

// TransferActionResponse 信号与取消的响应
type TransferActionResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	TransferID string          `json:"transfer_id"`
	Status     transfer.Status `json:"status"`
	At         time.Time       `json:"at"`
}

// TransferListResponse 转接列表
type TransferListResponse struct {
	Transfers []*transfer.Transfer `json:"transfers"`
	Total     int                  `json:"total"`
}

// StepsResponse 转接步骤日志
type StepsResponse struct {
	TransferID string          `json:"transfer_id"`
	Steps      []transfer.Step `json:"steps"`
}

// HandoffTokenResponse agent_b 在原房间的接管凭证
type HandoffTokenResponse struct {
	TransferID string `json:"transfer_id"`
	RoomID     string `json:"room_id"`
	Identity   string `json:"identity"`
	Token      string `json:"token"`
	LiveKitURL string `json:"livekit_url"`
}

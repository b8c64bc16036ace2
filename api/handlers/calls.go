package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/api"
	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/summary"
	"github.com/BaSui01/warmtransfer/types"
)

// =============================================================================
// 📞 通话 Handler
// =============================================================================

// CallHandler 转写、摘要与交接简报处理器
type CallHandler struct {
	rooms     *room.Manager
	summaries *summary.Service
	logger    *zap.Logger
}

// NewCallHandler 创建通话处理器
func NewCallHandler(rooms *room.Manager, summaries *summary.Service, logger *zap.Logger) *CallHandler {
	return &CallHandler{
		rooms:     rooms,
		summaries: summaries,
		logger:    logger.With(zap.String("handler", "calls")),
	}
}

// Register 注册路由
func (h *CallHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/calls/{room_id}/transcript", h.HandleAppendTranscript)
	mux.HandleFunc("GET /api/calls/{room_id}/transcript", h.HandleGetTranscript)
	mux.HandleFunc("POST /api/calls/{room_id}/summary", h.HandleSummary)
	mux.HandleFunc("GET /api/calls/{room_id}/summaries", h.HandleListSummaries)
	mux.HandleFunc("POST /api/calls/{room_id}/briefing", h.HandleBriefing)
}

func (h *CallHandler) requireRoom(w http.ResponseWriter, r *http.Request, id string) bool {
	if _, ok := h.rooms.GetRoomInfo(r.Context(), id); !ok {
		WriteError(w, r, types.NewNotFoundError("room", id), h.logger)
		return false
	}
	return true
}

// HandleAppendTranscript 追加一条转写
// @Summary 追加转写
// @Tags 通话
// @Accept json
// @Produce json
// @Param room_id path string true "房间 ID"
// @Param request body api.TranscriptEntryRequest true "转写条目"
// @Success 201 {object} Response
// @Router /api/calls/{room_id}/transcript [post]
func (h *CallHandler) HandleAppendTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	var req api.TranscriptEntryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	entry := summary.TranscriptEntry{
		SpeakerIdentity: req.SpeakerIdentity,
		SpeakerName:     req.SpeakerName,
		Text:            req.Text,
		Timestamp:       req.Timestamp,
		Confidence:      req.Confidence,
	}
	if entry.SpeakerName == "" {
		entry.SpeakerName = entry.SpeakerIdentity
	}
	if err := h.summaries.AddEntry(r.Context(), id, entry); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, http.StatusCreated, map[string]string{"room_id": id})
}

// HandleGetTranscript 返回房间转写
// @Summary 查询转写
// @Tags 通话
// @Produce json
// @Param room_id path string true "房间 ID"
// @Success 200 {object} Response{data=api.TranscriptResponse}
// @Router /api/calls/{room_id}/transcript [get]
func (h *CallHandler) HandleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	entries, err := h.summaries.Transcript(r.Context(), id)
	if err != nil {
		WriteError(w, r, types.NewUpstreamError("transcript store", err), h.logger)
		return
	}
	if entries == nil {
		entries = []summary.TranscriptEntry{}
	}
	WriteSuccess(w, r, api.TranscriptResponse{
		RoomID:               id,
		Entries:              entries,
		TotalDurationSeconds: summary.Duration(entries),
		GeneratedAt:          time.Now(),
	})
}

func summaryOptions(req api.SummaryRequest) summary.GenerateOptions {
	return summary.GenerateOptions{
		ExcludeTranscript: req.IncludeTranscript != nil && !*req.IncludeTranscript,
		MaxAge:            time.Duration(req.MaxDurationMinutes) * time.Minute,
		Context:           req.Context,
	}
}

// HandleSummary 生成通话摘要
// @Summary 生成摘要
// @Tags 通话
// @Accept json
// @Produce json
// @Param room_id path string true "房间 ID"
// @Param request body api.SummaryRequest false "摘要选项"
// @Success 200 {object} Response{data=summary.CallSummary}
// @Failure 404 {object} Response
// @Failure 502 {object} Response
// @Router /api/calls/{room_id}/summary [post]
func (h *CallHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	var req api.SummaryRequest
	if err := decodeOptionalJSON(w, r, &req, h.logger); err != nil {
		return
	}
	if !h.requireRoom(w, r, id) {
		return
	}
	sum, err := h.summaries.Generate(r.Context(), id, summaryOptions(req))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, sum)
}

// HandleListSummaries 列出房间已生成的摘要
func (h *CallHandler) HandleListSummaries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	WriteSuccess(w, r, api.SummaryListResponse{RoomID: id, Summaries: h.summaries.List(id)})
}

// HandleBriefing 为接手的坐席生成交接简报
// @Summary 交接简报
// @Tags 通话
// @Accept json
// @Produce json
// @Param room_id path string true "房间 ID"
// @Param request body api.BriefingRequest true "简报参数"
// @Success 200 {object} Response{data=api.BriefingResponse}
// @Router /api/calls/{room_id}/briefing [post]
func (h *CallHandler) HandleBriefing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	var req api.BriefingRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentBName == "" {
		WriteError(w, r, types.NewInvalidRequestError("agent_b_name is required"), h.logger)
		return
	}
	if req.CallerName == "" {
		req.CallerName = "Customer"
	}
	if !h.requireRoom(w, r, id) {
		return
	}

	sum, err := h.summaries.Generate(r.Context(), id, summary.GenerateOptions{})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	brief, err := h.summaries.Provider().Brief(r.Context(), summary.BriefRequest{
		Summary:    sum.Content,
		AgentName:  req.AgentBName,
		CallerName: req.CallerName,
		Extra:      req.AdditionalContext,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.BriefingResponse{Briefing: brief, SummaryID: sum.ID, GeneratedAt: time.Now()})
}

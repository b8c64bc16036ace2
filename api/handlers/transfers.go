package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/api"
	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/transfer"
	"github.com/BaSui01/warmtransfer/types"
)

// =============================================================================
// 🔀 转接 Handler
// =============================================================================

// TransferHandler 热转接处理器
type TransferHandler struct {
	engine     *transfer.Engine
	rooms      *room.Manager
	livekitURL string
	logger     *zap.Logger
}

// NewTransferHandler 创建转接处理器
func NewTransferHandler(engine *transfer.Engine, rooms *room.Manager, livekitURL string, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		engine:     engine,
		rooms:      rooms,
		livekitURL: livekitURL,
		logger:     logger.With(zap.String("handler", "transfers")),
	}
}

// Register 注册路由
func (h *TransferHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/transfers", h.HandleInitiate)
	mux.HandleFunc("GET /api/transfers", h.HandleList)
	mux.HandleFunc("GET /api/transfers/{transfer_id}", h.HandleGet)
	mux.HandleFunc("GET /api/transfers/{transfer_id}/steps", h.HandleSteps)
	mux.HandleFunc("GET /api/transfers/{transfer_id}/agent-b-token", h.HandleAgentBToken)
	mux.HandleFunc("POST /api/transfers/{transfer_id}/consultation-complete", h.HandleConsultationComplete)
	mux.HandleFunc("POST /api/transfers/{transfer_id}/cancel", h.HandleCancel)
}

// publicView hides agent_b's join token, which only the initiator receives.
func publicView(t *transfer.Transfer) *transfer.Transfer {
	c := t.Clone()
	c.AgentBToken = ""
	return c
}

// orderedParticipants sorts by join time, then identity.
func orderedParticipants(r *room.Room) []*room.ParticipantInfo {
	out := make([]*room.ParticipantInfo, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Identity < out[j].Identity
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// inferIdentities fills caller and agent_a from participant roles in the
// original room. Without a role match the caller is the earliest
// participant and agent_a the earliest remaining one; agent_b never counts.
func inferIdentities(r *room.Room, caller, agentA, agentB string) (string, string, error) {
	ordered := orderedParticipants(r)
	pick := func(role room.Role, skip ...string) string {
		if p, ok := r.FindByRole(role); ok && !contains(skip, p.Identity) {
			return p.Identity
		}
		for _, p := range ordered {
			if !contains(skip, p.Identity) {
				return p.Identity
			}
		}
		return ""
	}

	if caller == "" {
		caller = pick(room.RoleCaller, agentA, agentB)
	}
	if agentA == "" {
		agentA = pick(room.RoleAgentA, caller, agentB)
	}
	if caller == "" || agentA == "" {
		return "", "", types.NewInvalidRequestError("cannot infer caller and agent_a from room participants; pass caller_identity and agent_a_identity")
	}
	return caller, agentA, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v != "" && v == s {
			return true
		}
	}
	return false
}

// HandleInitiate 发起热转接
// @Summary 发起转接
// @Tags 转接
// @Accept json
// @Produce json
// @Param request body api.InitiateTransferRequest true "转接参数"
// @Success 201 {object} Response{data=api.InitiateTransferResponse}
// @Failure 400 {object} Response
// @Failure 404 {object} Response "原房间不存在"
// @Router /api/transfers [post]
func (h *TransferHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req api.InitiateTransferRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	req.TargetAgentID = strings.TrimSpace(req.TargetAgentID)
	if req.RoomID == "" || req.TargetAgentID == "" {
		WriteError(w, r, types.NewInvalidRequestError("room_id and target_agent_id are required"), h.logger)
		return
	}

	original, ok := h.rooms.GetRoomInfo(r.Context(), req.RoomID)
	if !ok {
		WriteError(w, r, types.NewNotFoundError("room", req.RoomID), h.logger)
		return
	}
	caller, agentA, err := inferIdentities(original, req.CallerIdentity, req.AgentAIdentity, req.TargetAgentID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.engine.Initiate(r.Context(), transfer.InitiateRequest{
		OriginalRoom: req.RoomID,
		Caller:       caller,
		AgentA:       agentA,
		AgentB:       req.TargetAgentID,
		Context:      req.Context,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	WriteStatus(w, r, http.StatusCreated, api.InitiateTransferResponse{
		TransferID:    res.TransferID,
		ConsultRoomID: res.ConsultRoomID,
		TokenAgentA:   res.TokenAgentA,
		TokenAgentB:   res.TokenAgentB,
		Status:        res.Transfer.Status,
		CreatedAt:     res.Transfer.CreatedAt,
		LiveKitURL:    h.livekitURL,
	})
}

// HandleList 列出转接
// @Summary 转接列表
// @Tags 转接
// @Produce json
// @Param status query string false "状态过滤"
// @Param limit query int false "数量上限" default(50)
// @Success 200 {object} Response{data=api.TransferListResponse}
// @Router /api/transfers [get]
func (h *TransferHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := transfer.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		WriteError(w, r, types.NewInvalidRequestError("unknown status "+string(status)), h.logger)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	list, err := h.engine.List(r.Context(), transfer.ListOptions{Status: status, Limit: limit})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	out := make([]*transfer.Transfer, len(list))
	for i, t := range list {
		out[i] = publicView(t)
	}
	WriteSuccess(w, r, api.TransferListResponse{Transfers: out, Total: len(out)})
}

// HandleGet 查询转接状态
// @Summary 转接详情
// @Tags 转接
// @Produce json
// @Param transfer_id path string true "转接 ID"
// @Success 200 {object} Response{data=transfer.Transfer}
// @Failure 404 {object} Response
// @Router /api/transfers/{transfer_id} [get]
func (h *TransferHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("transfer_id")
	t, ok := h.engine.GetStatus(r.Context(), id)
	if !ok {
		WriteError(w, r, types.NewNotFoundError("transfer", id), h.logger)
		return
	}
	WriteSuccess(w, r, publicView(t))
}

// HandleSteps 返回步骤日志
// @Summary 转接步骤
// @Tags 转接
// @Produce json
// @Param transfer_id path string true "转接 ID"
// @Success 200 {object} Response{data=api.StepsResponse}
// @Failure 404 {object} Response
// @Router /api/transfers/{transfer_id}/steps [get]
func (h *TransferHandler) HandleSteps(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("transfer_id")
	steps, err := h.engine.GetSteps(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.StepsResponse{TransferID: id, Steps: steps})
}

// HandleAgentBToken 返回 agent_b 接管原房间的令牌
// @Summary agent_b 接管令牌
// @Tags 转接
// @Produce json
// @Param transfer_id path string true "转接 ID"
// @Param identity query string true "agent_b 身份"
// @Success 200 {object} Response{data=api.HandoffTokenResponse}
// @Failure 401 {object} Response "非 agent_b"
// @Failure 404 {object} Response
// @Failure 409 {object} Response "转接未完成"
// @Router /api/transfers/{transfer_id}/agent-b-token [get]
func (h *TransferHandler) HandleAgentBToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("transfer_id")
	identity := strings.TrimSpace(r.URL.Query().Get("identity"))
	cred, err := h.engine.HandoffCredential(r.Context(), id, identity)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.HandoffTokenResponse{
		TransferID: cred.TransferID,
		RoomID:     cred.RoomID,
		Identity:   cred.Identity,
		Token:      cred.Token,
		LiveKitURL: h.livekitURL,
	})
}

func (h *TransferHandler) actionResponse(r *http.Request, id, message string) api.TransferActionResponse {
	resp := api.TransferActionResponse{Success: true, Message: message, TransferID: id, At: time.Now()}
	if t, ok := h.engine.GetStatus(r.Context(), id); ok {
		resp.Status = t.Status
	}
	return resp
}

// HandleConsultationComplete agent_a 结束咨询
// @Summary 咨询完成
// @Tags 转接
// @Accept json
// @Produce json
// @Param transfer_id path string true "转接 ID"
// @Param request body api.ConsultationCompleteRequest true "签名身份"
// @Success 200 {object} Response{data=api.TransferActionResponse}
// @Failure 401 {object} Response "非 agent_a"
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /api/transfers/{transfer_id}/consultation-complete [post]
func (h *TransferHandler) HandleConsultationComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("transfer_id")
	var req api.ConsultationCompleteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := h.engine.SignalConsultationComplete(r.Context(), id, req.AgentIdentity); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if req.Notes != "" {
		h.logger.Info("consultation notes", zap.String("transfer_id", id), zap.String("notes", req.Notes))
	}
	WriteSuccess(w, r, h.actionResponse(r, id, "consultation marked complete"))
}

// HandleCancel 取消转接
// @Summary 取消转接
// @Tags 转接
// @Produce json
// @Param transfer_id path string true "转接 ID"
// @Success 200 {object} Response{data=api.TransferActionResponse}
// @Failure 404 {object} Response
// @Failure 409 {object} Response "转接已结束"
// @Router /api/transfers/{transfer_id}/cancel [post]
func (h *TransferHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("transfer_id")
	if err := h.engine.Cancel(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, h.actionResponse(r, id, "transfer cancelled"))
}

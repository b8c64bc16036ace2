package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/api"
	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/types"
)

// =============================================================================
// 👥 参与者 Handler
// =============================================================================

// ParticipantHandler 参与者令牌与状态处理器
type ParticipantHandler struct {
	rooms      *room.Manager
	tokenTTL   time.Duration
	livekitURL string
	logger     *zap.Logger
}

// NewParticipantHandler 创建参与者处理器
func NewParticipantHandler(rooms *room.Manager, tokenTTL time.Duration, livekitURL string, logger *zap.Logger) *ParticipantHandler {
	return &ParticipantHandler{
		rooms:      rooms,
		tokenTTL:   tokenTTL,
		livekitURL: livekitURL,
		logger:     logger.With(zap.String("handler", "participants")),
	}
}

// Register 注册路由
func (h *ParticipantHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/participants/token", h.HandleToken)
	mux.HandleFunc("POST /api/participants/connected", h.HandleConnected)
	mux.HandleFunc("POST /api/participants/hold", h.holdHandler(true))
	mux.HandleFunc("POST /api/participants/resume", h.holdHandler(false))
	mux.HandleFunc("POST /api/participants/move", h.HandleMove)
}

func (h *ParticipantHandler) tokenResponse(token, roomID, identity string) api.TokenResponse {
	return api.TokenResponse{
		Token:     token,
		URL:       h.livekitURL,
		RoomID:    roomID,
		Identity:  identity,
		ExpiresAt: time.Now().Add(h.tokenTTL),
	}
}

// HandleToken 签发加入令牌并登记参与者
// @Summary 加入令牌
// @Tags 参与者
// @Accept json
// @Produce json
// @Param request body api.TokenRequest true "令牌参数"
// @Success 200 {object} Response{data=api.TokenResponse}
// @Failure 400 {object} Response
// @Failure 500 {object} Response "未配置媒体服务器凭据"
// @Router /api/participants/token [post]
func (h *ParticipantHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req api.TokenRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	token, err := h.rooms.GenerateJoinToken(r.Context(), room.TokenRequest{
		RoomID:   req.RoomID,
		Identity: req.Identity,
		Name:     req.Name,
		Role:     req.Role,
		Metadata: req.Metadata,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, h.tokenResponse(token, req.RoomID, req.Identity))
}

// HandleConnected 记录媒体服务器的入会/离会通知
// @Summary 更新连接状态
// @Tags 参与者
// @Accept json
// @Produce json
// @Param request body api.ConnectedRequest true "连接状态"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/participants/connected [post]
func (h *ParticipantHandler) HandleConnected(w http.ResponseWriter, r *http.Request) {
	var req api.ConnectedRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.RoomID == "" || req.Identity == "" {
		WriteError(w, r, types.NewInvalidRequestError("room_id and identity are required"), h.logger)
		return
	}
	if err := h.rooms.SetParticipantConnected(r.Context(), req.RoomID, req.Identity, req.Connected); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, req)
}

// holdHandler 保持或恢复参与者
func (h *ParticipantHandler) holdHandler(onHold bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.HoldRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		if req.RoomID == "" || req.ParticipantIdentity == "" {
			WriteError(w, r, types.NewInvalidRequestError("room_id and participant_identity are required"), h.logger)
			return
		}
		if err := h.rooms.SetParticipantHold(r.Context(), req.RoomID, req.ParticipantIdentity, onHold); err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		resp := api.HoldResponse{Success: true, ParticipantIdentity: req.ParticipantIdentity, OnHold: onHold}
		if onHold {
			now := time.Now()
			resp.HoldStartedAt = &now
		}
		WriteSuccess(w, r, resp)
	}
}

// HandleMove 把参与者移到另一个房间并返回新令牌
// @Summary 移动参与者
// @Tags 参与者
// @Accept json
// @Produce json
// @Param request body api.MoveRequest true "移动参数"
// @Success 200 {object} Response{data=api.TokenResponse}
// @Router /api/participants/move [post]
func (h *ParticipantHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req api.MoveRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.FromRoomID == "" || req.ToRoomID == "" {
		WriteError(w, r, types.NewInvalidRequestError("from_room_id and to_room_id are required"), h.logger)
		return
	}
	token, err := h.rooms.MoveParticipant(r.Context(), req.FromRoomID, req.ToRoomID, req.Identity, req.Name, req.Role)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, h.tokenResponse(token, req.ToRoomID, req.Identity))
}

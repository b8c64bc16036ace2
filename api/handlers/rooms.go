package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/api"
	"github.com/BaSui01/warmtransfer/internal/events"
	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/types"
)

const defaultCleanupMinutes = 60

// =============================================================================
// 🏠 房间 Handler
// =============================================================================

// RoomHandler 房间生命周期处理器
type RoomHandler struct {
	rooms      *room.Manager
	hub        *events.Hub
	livekitURL string
	logger     *zap.Logger
}

// NewRoomHandler 创建房间处理器。hub 为 nil 时事件流端点返回 404。
func NewRoomHandler(rooms *room.Manager, hub *events.Hub, livekitURL string, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:      rooms,
		hub:        hub,
		livekitURL: livekitURL,
		logger:     logger.With(zap.String("handler", "rooms")),
	}
}

// Register 注册路由
func (h *RoomHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms", h.HandleCreate)
	mux.HandleFunc("GET /api/rooms", h.HandleList)
	mux.HandleFunc("POST /api/rooms/cleanup", h.HandleCleanup)
	mux.HandleFunc("GET /api/rooms/{room_id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/rooms/{room_id}", h.HandleDelete)
	mux.HandleFunc("DELETE /api/rooms/{room_id}/participants/{identity}", h.HandleRemoveParticipant)
	mux.HandleFunc("GET /api/rooms/{room_id}/events", h.HandleEvents)
}

// HandleCreate 创建房间
// @Summary 创建房间
// @Tags 房间
// @Accept json
// @Produce json
// @Param request body api.CreateRoomRequest true "房间参数"
// @Success 201 {object} Response{data=api.CreateRoomResponse}
// @Failure 400 {object} Response
// @Router /api/rooms [post]
func (h *RoomHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRoomRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.RoomName = strings.TrimSpace(req.RoomName)
	if req.RoomName == "" {
		WriteError(w, r, types.NewInvalidRequestError("room_name is required"), h.logger)
		return
	}
	if req.RoomType == "" {
		req.RoomType = room.TypeCall
	}

	var opts []room.CreateOption
	if len(req.Metadata) > 0 {
		opts = append(opts, room.WithRoomMetadata(req.Metadata))
	}
	id, err := h.rooms.CreateRoom(r.Context(), req.RoomName, req.RoomType, req.MaxParticipants, opts...)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	resp := api.CreateRoomResponse{
		RoomID:     id,
		RoomName:   req.RoomName,
		RoomType:   req.RoomType,
		CreatedAt:  time.Now(),
		LiveKitURL: h.livekitURL,
	}
	if info, ok := h.rooms.GetRoomInfo(r.Context(), id); ok {
		resp.CreatedAt = info.CreatedAt
	}
	WriteStatus(w, r, http.StatusCreated, resp)
}

// HandleList 列出活跃房间
// @Summary 房间列表
// @Tags 房间
// @Produce json
// @Success 200 {object} Response{data=api.RoomListResponse}
// @Router /api/rooms [get]
func (h *RoomHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	rooms := h.rooms.ListRooms(r.Context())
	if rooms == nil {
		rooms = []*room.Room{}
	}
	WriteSuccess(w, r, api.RoomListResponse{Rooms: rooms, Total: len(rooms)})
}

// HandleGet 查询房间，先与媒体服务器同步连接状态
// @Summary 房间详情
// @Tags 房间
// @Produce json
// @Param room_id path string true "房间 ID"
// @Success 200 {object} Response{data=room.Room}
// @Failure 404 {object} Response
// @Router /api/rooms/{room_id} [get]
func (h *RoomHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	if err := h.rooms.SyncParticipants(r.Context(), id); err != nil {
		h.logger.Warn("participant sync failed", zap.String("room_id", id), zap.Error(err))
	}
	info, ok := h.rooms.GetRoomInfo(r.Context(), id)
	if !ok {
		WriteError(w, r, types.NewNotFoundError("room", id), h.logger)
		return
	}
	WriteSuccess(w, r, info)
}

// HandleDelete 删除房间（幂等）
// @Summary 删除房间
// @Tags 房间
// @Produce json
// @Param room_id path string true "房间 ID"
// @Success 200 {object} Response{data=api.DeleteRoomResponse}
// @Failure 502 {object} Response
// @Router /api/rooms/{room_id} [delete]
func (h *RoomHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	deleted, err := h.rooms.DeleteRoom(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.DeleteRoomResponse{RoomID: id, Deleted: deleted})
}

// HandleCleanup 清理空闲房间
// @Summary 清理空闲房间
// @Tags 房间
// @Produce json
// @Param max_age_minutes query int false "空闲阈值（分钟）" default(60)
// @Success 200 {object} Response{data=api.CleanupResponse}
// @Router /api/rooms/cleanup [post]
func (h *RoomHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	minutes, err := queryInt(r, "max_age_minutes", defaultCleanupMinutes)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	n := h.rooms.CleanupInactiveRooms(r.Context(), time.Duration(minutes)*time.Minute)
	WriteSuccess(w, r, api.CleanupResponse{Cleaned: n, MaxAgeMinutes: minutes})
}

// HandleRemoveParticipant 从房间移除参与者
// @Summary 移除参与者
// @Tags 房间
// @Produce json
// @Param room_id path string true "房间 ID"
// @Param identity path string true "参与者身份"
// @Success 200 {object} Response{data=api.RemoveParticipantResponse}
// @Router /api/rooms/{room_id}/participants/{identity} [delete]
func (h *RoomHandler) HandleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	id, identity := r.PathValue("room_id"), r.PathValue("identity")
	removed, err := h.rooms.RemoveParticipant(r.Context(), id, identity)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.RemoveParticipantResponse{RoomID: id, Identity: identity, Removed: removed})
}

// HandleEvents 订阅房间事件流（WebSocket）
// @Summary 房间事件流
// @Tags 房间
// @Param room_id path string true "房间 ID"
// @Success 101
// @Failure 404 {object} Response
// @Router /api/rooms/{room_id}/events [get]
func (h *RoomHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	if h.hub == nil {
		WriteError(w, r, types.NewNotFoundError("event stream", id), h.logger)
		return
	}
	if _, ok := h.rooms.GetRoomInfo(r.Context(), id); !ok {
		WriteError(w, r, types.NewNotFoundError("room", id), h.logger)
		return
	}
	h.hub.Serve(w, r, id)
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"JamFM/cache"
	"JamFM/core/auth"
	"JamFM/core/room"
	"JamFM/core/session"
	"JamFM/logger"
	"JamFM/repository"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// SessionHandler 一起听分组的 HTTP/WebSocket 处理器。
// 写路径全部走 WebSocket 事件，REST 只提供只读查询。
type SessionHandler struct {
	registry     *session.Registry
	hub          *room.Hub
	router       *room.Router
	activityRepo repository.ActivityRepository
	presence     *cache.PresenceCache
	jwtSecret    string
	upgrader     websocket.Upgrader
}

// NewSessionHandler 创建处理器
func NewSessionHandler(
	registry *session.Registry,
	hub *room.Hub,
	router *room.Router,
	activityRepo repository.ActivityRepository,
	presence *cache.PresenceCache,
	jwtSecret string,
) *SessionHandler {
	return &SessionHandler{
		registry:     registry,
		hub:          hub,
		router:       router,
		activityRepo: activityRepo,
		presence:     presence,
		jwtSecret:    jwtSecret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ========== REST 处理器 ==========

// GetSessionHandler 查询分组完整快照
func (h *SessionHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]

	snap, ok := h.registry.Snapshot(groupID)
	if !ok {
		http.Error(w, "分组不存在", http.StatusNotFound)
		return
	}

	writeJSON(w, snap)
}

// GetQueueHandler 查询分组队列
func (h *SessionHandler) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]

	snap, ok := h.registry.Snapshot(groupID)
	if !ok {
		http.Error(w, "分组不存在", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]interface{}{
		"queue":             snap.Queue,
		"currentQueueIndex": snap.CurrentQueueIndex,
		"currentSongId":     snap.CurrentSongID,
	})
}

// GetPlaybackHandler 查询分组播放状态，附带服务器时间供客户端对时
func (h *SessionHandler) GetPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]

	snap, ok := h.registry.Snapshot(groupID)
	if !ok {
		http.Error(w, "分组不存在", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]interface{}{
		"playback":    snap.Playback,
		"currentItem": snap.CurrentItem,
		"serverTime":  snap.ServerTime,
	})
}

// GetActivitiesHandler 查询分组活动消息（倒序分页）
func (h *SessionHandler) GetActivitiesHandler(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	rows, err := h.activityRepo.GetByGroup(r.Context(), groupID, limit, offset)
	if err != nil {
		logger.Error("查询活动消息失败", logger.ErrorField(err), logger.String("groupId", groupID))
		http.Error(w, "查询失败", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"activities": rows})
}

// GetOnlineHandler 查询分组在线人数（来自 Redis 心跳镜像）
func (h *SessionHandler) GetOnlineHandler(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]

	if !h.registry.Exists(groupID) {
		http.Error(w, "分组不存在", http.StatusNotFound)
		return
	}

	count, err := h.presence.OnlineCount(r.Context(), groupID)
	if err != nil {
		logger.Warn("查询在线人数失败", logger.ErrorField(err), logger.String("groupId", groupID))
	}

	writeJSON(w, map[string]interface{}{
		"groupId": groupID,
		"online":  count,
	})
}

// GetMySessionsHandler 查询当前用户所在的分组列表
func (h *SessionHandler) GetMySessionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, _, ok := identityFromContext(r.Context())
	if !ok {
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	groupIDs := h.registry.SessionsOf(userID)
	sessions := make([]interface{}, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		if snap, ok := h.registry.Snapshot(groupID); ok {
			sessions = append(sessions, snap)
		}
	}

	writeJSON(w, map[string]interface{}{"sessions": sessions})
}

// ========== WebSocket 处理器 ==========

// WebSocketHandler 建立 WebSocket 连接。
// WebSocket 无法通过 header 传递 token，从查询参数取
func (h *SessionHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "缺少认证信息", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ParseToken(h.jwtSecret, token)
	if err != nil {
		http.Error(w, "无效的令牌", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	conn := &room.Conn{
		Hub:      h.hub,
		WS:       ws,
		Send:     make(chan []byte, 256),
		UserID:   claims.UserID,
		Username: claims.Username,
		Avatar:   claims.Avatar,
	}
	h.hub.Register(conn)

	// 重连的用户把他还在的分组重新挂回广播范围
	for _, groupID := range h.registry.SessionsOf(claims.UserID) {
		h.hub.JoinRoom(groupID, claims.UserID)
	}

	from := room.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Avatar:   claims.Avatar,
	}

	go conn.WritePump()
	go conn.ReadPump(context.Background(), func(ctx context.Context, c *room.Conn, msg *room.WSMessage) {
		h.router.Dispatch(ctx, from, msg)
	})

	logger.Info("WebSocket 连接建立",
		logger.Int64("userId", claims.UserID),
		logger.String("username", claims.Username))
}

// ========== 路由注册 ==========

// RegisterSessionRoutes 注册一起听相关的路由
func RegisterSessionRoutes(r *mux.Router, handler *SessionHandler, jwtSecret string) {
	r.HandleFunc("/api/sessions/my", AuthMiddleware(jwtSecret, handler.GetMySessionsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", handler.GetSessionHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/queue", handler.GetQueueHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/playback", handler.GetPlaybackHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/activities", handler.GetActivitiesHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/online", handler.GetOnlineHandler).Methods(http.MethodGet)

	// WebSocket 路由
	r.HandleFunc("/ws", handler.WebSocketHandler)

	logger.Info("一起听API端点注册完成",
		logger.String("endpoints", "GET /api/sessions/my, GET /api/sessions/{id}, GET /api/sessions/{id}/queue, GET /api/sessions/{id}/playback, GET /api/sessions/{id}/activities, GET /api/sessions/{id}/online, WS /ws"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("响应编码失败", logger.ErrorField(err))
	}
}

package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"JamFM/logger"

	"github.com/gorilla/websocket"
)

// Conn 一条已认证的 WebSocket 连接。
// 连接不绑定具体分组：同一条连接通过事件加入/离开任意多个分组。
type Conn struct {
	Hub      *Hub
	WS       *websocket.Conn
	Send     chan []byte
	UserID   int64
	Username string
	Avatar   string
}

// Hub 连接管理中心：用户 -> 连接，分组 -> 在组内的连接集合
type Hub struct {
	// 一个用户同时只保留一条连接，新连接会顶掉旧的
	conns map[int64]*Conn

	// 分组 -> (userID -> 连接)，决定广播送达范围
	rooms map[string]map[int64]*Conn

	register   chan *Conn
	unregister chan *Conn
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}

	// onConnect / onDisconnect 由路由层挂接（取消/挂起延迟离开）
	onConnect    func(userID int64)
	onDisconnect func(userID int64)

	// heartbeat 收到 ping 帧时回调（刷新 Redis 在线心跳）
	heartbeat func(userID int64)
}

type broadcastMessage struct {
	GroupID   string
	Message   []byte
	ExcludeID int64
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[int64]*Conn),
		rooms:      make(map[string]map[int64]*Conn),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// OnConnect 注册连接建立回调
func (h *Hub) OnConnect(fn func(userID int64)) { h.onConnect = fn }

// OnDisconnect 注册连接断开回调
func (h *Hub) OnDisconnect(fn func(userID int64)) { h.onDisconnect = fn }

// OnHeartbeat 注册心跳回调
func (h *Hub) OnHeartbeat(fn func(userID int64)) { h.heartbeat = fn }

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.registerConn(conn)

		case conn := <-h.unregister:
			h.unregisterConn(conn)

		case msg := <-h.broadcast:
			h.broadcastToRoom(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

// Register 注册连接
func (h *Hub) Register(conn *Conn) {
	h.register <- conn
}

// Unregister 注销连接
func (h *Hub) Unregister(conn *Conn) {
	h.unregister <- conn
}

func (h *Hub) registerConn(conn *Conn) {
	h.mu.Lock()
	if old, exists := h.conns[conn.UserID]; exists {
		h.removeConnLocked(old)
	}
	h.conns[conn.UserID] = conn
	h.mu.Unlock()

	if h.onConnect != nil {
		h.onConnect(conn.UserID)
	}

	logger.Info("client registered",
		logger.Int64("user", conn.UserID),
		logger.String("username", conn.Username))
}

func (h *Hub) unregisterConn(conn *Conn) {
	h.mu.Lock()
	// 只有当前连接仍是该用户的活跃连接时才算真正断开，
	// 被新连接顶掉的旧连接不触发断开回调
	current := h.conns[conn.UserID] == conn
	if current {
		h.removeConnLocked(conn)
	}
	h.mu.Unlock()

	if current && h.onDisconnect != nil {
		h.onDisconnect(conn.UserID)
	}

	if current {
		logger.Info("client unregistered", logger.Int64("user", conn.UserID))
	}
}

// removeConnLocked 移除连接（内部方法，需要持有锁）
func (h *Hub) removeConnLocked(conn *Conn) {
	if h.conns[conn.UserID] == conn {
		delete(h.conns, conn.UserID)
	}
	for groupID, members := range h.rooms {
		if members[conn.UserID] == conn {
			delete(members, conn.UserID)
			if len(members) == 0 {
				delete(h.rooms, groupID)
			}
		}
	}
	close(conn.Send)
}

// JoinRoom 把用户的连接加入分组的广播范围
func (h *Hub) JoinRoom(groupID string, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[userID]
	if !ok {
		return
	}
	if h.rooms[groupID] == nil {
		h.rooms[groupID] = make(map[int64]*Conn)
	}
	h.rooms[groupID][userID] = conn
}

// LeaveRoom 把用户移出分组的广播范围
func (h *Hub) LeaveRoom(groupID string, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[groupID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// DropRoom 分组销毁，清掉整个广播范围
func (h *Hub) DropRoom(groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, groupID)
}

// IsConnected 用户当前是否有活跃连接（Presence 实现）
func (h *Hub) IsConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[userID]
	return ok
}

// RoomConnCount 分组内的连接数
func (h *Hub) RoomConnCount(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[groupID])
}

func (h *Hub) broadcastToRoom(msg *broadcastMessage) {
	h.mu.RLock()
	members, ok := h.rooms[msg.GroupID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// 复制连接列表，避免发送时长时间持锁
	connList := make([]*Conn, 0, len(members))
	for userID, conn := range members {
		if msg.ExcludeID > 0 && userID == msg.ExcludeID {
			continue
		}
		connList = append(connList, conn)
	}
	h.mu.RUnlock()

	for _, conn := range connList {
		select {
		case conn.Send <- msg.Message:
		default:
			// 发送缓冲区满，判定为死连接直接移除。
			// 这里运行在 Run 协程内，不能再往 unregister 通道投递
			h.unregisterConn(conn)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.conns {
		close(conn.Send)
	}
	h.conns = make(map[int64]*Conn)
	h.rooms = make(map[string]map[int64]*Conn)
}

// Broadcast 向分组广播 WSMessage，excludeUserID > 0 时跳过该用户
func (h *Hub) Broadcast(groupID string, msg *WSMessage, excludeUserID int64) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast <- &broadcastMessage{
		GroupID:   groupID,
		Message:   data,
		ExcludeID: excludeUserID,
	}
}

// SendToUser 发送消息给指定用户
func (h *Hub) SendToUser(userID int64, msg *WSMessage) error {
	h.mu.RLock()
	conn := h.conns[userID]
	h.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("user not connected: %d", userID)
	}

	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case conn.Send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for user: %d", userID)
	}
}

// ========== Conn 方法 ==========

// ReadPump 读取消息循环
func (c *Conn) ReadPump(ctx context.Context, handler func(ctx context.Context, conn *Conn, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.WS.Close()
	}()

	c.WS.SetReadLimit(4096) // 4KB
	c.WS.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.WS.SetPongHandler(func(string) error {
		c.WS.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.WS.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.Int64("user", c.UserID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("invalid message format",
					logger.ErrorField(err),
					logger.Int64("user", c.UserID))
				continue
			}

			// 处理心跳
			if msg.Type == EvtPing {
				if c.Hub.heartbeat != nil {
					c.Hub.heartbeat(c.UserID)
				}
				pong := &WSMessage{Type: EvtPong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
				continue
			}

			handler(ctx, c, &msg)
		}
	}
}

// WritePump 写入消息循环
func (c *Conn) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.WS.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.WS.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.WS.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.WS.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.WS.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给该连接，缓冲区满时静默丢弃
func (c *Conn) SendMessage(msg *WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return nil
	}
}

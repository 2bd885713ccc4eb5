package session

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"JamFM/logger"
	"JamFM/model"
)

// Registry 分组会话注册表，持有全部会话状态和用户<->会话双向索引。
// 状态全部在内存里，进程重启即消失；跨进程扩展不在本服务职责内。
//
// 所有领域操作都在注册表锁内一次执行完毕，等价于单线程协作调度，
// 因此引擎内的幂等判断不需要额外协调。
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*model.Session
	userSessions map[int64]map[string]struct{}
	defaults     model.SessionSettings
	rnd          *rand.Rand
}

// NewRegistry 创建注册表。defaults 为新会话的默认设置。
func NewRegistry(defaults model.SessionSettings) *Registry {
	if defaults.MaxQueueSize <= 0 {
		defaults.MaxQueueSize = 50
	}
	if defaults.MaxMembers <= 0 {
		defaults.MaxMembers = 10
	}
	return &Registry{
		sessions:     make(map[string]*model.Session),
		userSessions: make(map[int64]map[string]struct{}),
		defaults:     defaults,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateSession 创建分组，创建者自动成为第一个成员
func (r *Registry) CreateSession(name string, creator model.Member) (*model.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	groupID, err := r.generateUniqueGroupID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	creator.JoinedAt = now.UnixMilli()

	s := &model.Session{
		ID:                groupID,
		Name:              name,
		CreatorID:         creator.UserID,
		CreatedAt:         now,
		Members:           []model.Member{creator},
		Queue:             make([]model.QueueItem, 0),
		CurrentQueueIndex: -1,
		Settings:          r.defaults,
	}
	r.sessions[groupID] = s
	r.indexAdd(creator.UserID, groupID)

	logger.Info("分组创建成功",
		logger.String("groupId", groupID),
		logger.Int64("creatorId", creator.UserID),
		logger.String("name", name))

	return s.Snapshot(now.UnixMilli()), nil
}

// generateUniqueGroupID 生成唯一的6位数字分组ID，调用方需持有写锁
func (r *Registry) generateUniqueGroupID() (string, error) {
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("%06d", r.rnd.Intn(900000)+100000)
		if _, exists := r.sessions[id]; !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("无法生成唯一分组ID")
}

// With 在写锁内对指定会话执行 fn。会话不存在时返回 false，fn 不会被调用。
func (r *Registry) With(groupID string, fn func(s *model.Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[groupID]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Snapshot 读取会话快照
func (r *Registry) Snapshot(groupID string) (*model.SessionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[groupID]
	if !ok {
		return nil, false
	}
	return s.Snapshot(time.Now().UnixMilli()), true
}

// Exists 检查分组是否存在
func (r *Registry) Exists(groupID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[groupID]
	return ok
}

// Count 当前活跃分组数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// JoinResult 加入分组的结果
type JoinResult struct {
	Found    bool // 分组存在
	Joined   bool // 本次真正加入（幂等重入时为 false）
	Full     bool // 分组已满
	Member   model.Member
	Snapshot *model.SessionSnapshot
}

// Join 加入分组。同一用户重复加入是无副作用的幂等操作，
// 重入时仍返回完整快照供客户端恢复状态。
func (r *Registry) Join(groupID string, m model.Member) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[groupID]
	if !ok {
		return JoinResult{Found: false}
	}

	now := time.Now().UnixMilli()
	if s.HasMember(m.UserID) {
		return JoinResult{Found: true, Joined: false, Member: m, Snapshot: s.Snapshot(now)}
	}
	if max := s.Settings.MaxMembers; max > 0 && len(s.Members) >= max {
		return JoinResult{Found: true, Full: true}
	}

	m.JoinedAt = now
	s.Members = append(s.Members, m)
	r.indexAdd(m.UserID, groupID)

	logger.Info("用户加入分组",
		logger.String("groupId", groupID),
		logger.Int64("userId", m.UserID),
		logger.String("username", m.Username))

	return JoinResult{Found: true, Joined: true, Member: m, Snapshot: s.Snapshot(now)}
}

// LeaveResult 离开分组的结果
type LeaveResult struct {
	Found     bool
	Removed   bool
	Destroyed bool // 成员清空，分组已销毁
	Member    model.Member
}

// Leave 离开分组。最后一个成员离开时分组随之销毁。
func (r *Registry) Leave(groupID string, userID int64) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(groupID, userID)
}

func (r *Registry) leaveLocked(groupID string, userID int64) LeaveResult {
	s, ok := r.sessions[groupID]
	if !ok {
		return LeaveResult{Found: false}
	}

	res := LeaveResult{Found: true}
	for i := range s.Members {
		if s.Members[i].UserID == userID {
			res.Removed = true
			res.Member = s.Members[i]
			s.Members = append(s.Members[:i], s.Members[i+1:]...)
			break
		}
	}
	if !res.Removed {
		return res
	}

	r.indexRemove(userID, groupID)

	logger.Info("用户离开分组",
		logger.String("groupId", groupID),
		logger.Int64("userId", userID))

	if len(s.Members) == 0 {
		delete(r.sessions, groupID)
		res.Destroyed = true
		logger.Info("分组成员清空，已销毁", logger.String("groupId", groupID))
	}
	return res
}

// Departure 一次离开动作波及的单个分组
type Departure struct {
	GroupID   string
	Member    model.Member
	Destroyed bool
}

// LeaveAll 将用户从其所有分组中移除（断线宽限期到期时使用）
func (r *Registry) LeaveAll(userID int64) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make([]string, 0, len(r.userSessions[userID]))
	for groupID := range r.userSessions[userID] {
		groups = append(groups, groupID)
	}

	departures := make([]Departure, 0, len(groups))
	for _, groupID := range groups {
		res := r.leaveLocked(groupID, userID)
		if res.Removed {
			departures = append(departures, Departure{
				GroupID:   groupID,
				Member:    res.Member,
				Destroyed: res.Destroyed,
			})
		}
	}
	return departures
}

// SessionsOf 返回用户当前所属的分组ID列表
func (r *Registry) SessionsOf(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.userSessions[userID]))
	for groupID := range r.userSessions[userID] {
		ids = append(ids, groupID)
	}
	return ids
}

// DestroySession 强制销毁分组并清理索引
func (r *Registry) DestroySession(groupID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[groupID]
	if !ok {
		return false
	}
	for i := range s.Members {
		r.indexRemove(s.Members[i].UserID, groupID)
	}
	delete(r.sessions, groupID)

	logger.Info("分组已销毁", logger.String("groupId", groupID))
	return true
}

// indexAdd 维护用户->分组索引，调用方需持有写锁
func (r *Registry) indexAdd(userID int64, groupID string) {
	if r.userSessions[userID] == nil {
		r.userSessions[userID] = make(map[string]struct{})
	}
	r.userSessions[userID][groupID] = struct{}{}
}

// indexRemove 维护用户->分组索引，调用方需持有写锁
func (r *Registry) indexRemove(userID int64, groupID string) {
	if set, ok := r.userSessions[userID]; ok {
		delete(set, groupID)
		if len(set) == 0 {
			delete(r.userSessions, userID)
		}
	}
}

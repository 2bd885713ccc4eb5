package model

import (
	"time"
)

// Track 曲目描述符，由外部曲库服务提供，引擎内部不解释其内容
type Track struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Artist    string `json:"artist"`
	Cover     string `json:"cover,omitempty"`
	Duration  int    `json:"duration"`            // 毫秒
	StreamURL string `json:"streamUrl,omitempty"` // 播放地址
	Source    string `json:"source,omitempty"`
}

// Member 分组成员
type Member struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	JoinedAt int64  `json:"joinedAt"` // Unix 毫秒时间戳
}

// QueueItem 队列中的一首歌
type QueueItem struct {
	ID      string `json:"id"` // 队列项唯一标识
	Track   Track  `json:"track"`
	AddedBy Member `json:"addedBy"`
	AddedAt int64  `json:"addedAt"`
	Status  string `json:"status"` // pending, playing, played（单调前进，不回退）
}

// SessionSettings 分组会话设置
type SessionSettings struct {
	MaxQueueSize     int  `json:"maxQueueSize"`
	AllowAnyoneToAdd bool `json:"allowAnyoneToAdd"`
	MaxTracksPerUser int  `json:"maxTracksPerUser"` // 单用户点歌配额，0 不限制
	MaxMembers       int  `json:"maxMembers"`
}

// PlaybackState 播放时钟状态
type PlaybackState struct {
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime"`             // 秒
	LastUpdate    int64   `json:"lastUpdate"`              // 服务器时间戳（毫秒）
	ScheduledTime int64   `json:"scheduledTime,omitempty"` // 约定的未来执行时刻（毫秒）
	UpdatedBy     int64   `json:"updatedBy,omitempty"`
}

// Session 一个共享的一起听分组，全部状态驻留内存，进程重启即消失
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatorID int64     `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`

	Members []Member    `json:"members"`
	Queue   []QueueItem `json:"queue"`

	// CurrentQueueIndex == -1 当且仅当 CurrentSongID == ""
	CurrentQueueIndex int    `json:"currentQueueIndex"`
	CurrentSongID     string `json:"currentSongId,omitempty"`

	Playback PlaybackState   `json:"playback"`
	Settings SessionSettings `json:"settings"`
}

// 队列项状态
const (
	QueueStatusPending = "pending"
	QueueStatusPlaying = "playing"
	QueueStatusPlayed  = "played"
)

// CurrentItem 返回当前播放的队列项，没有则返回 nil
func (s *Session) CurrentItem() *QueueItem {
	if s.CurrentQueueIndex < 0 || s.CurrentQueueIndex >= len(s.Queue) {
		return nil
	}
	return &s.Queue[s.CurrentQueueIndex]
}

// CurrentTrack 返回当前播放的曲目，没有则返回 nil
func (s *Session) CurrentTrack() *Track {
	item := s.CurrentItem()
	if item == nil {
		return nil
	}
	track := item.Track
	return &track
}

// HasMember 检查用户是否已在成员列表中
func (s *Session) HasMember(userID int64) bool {
	for i := range s.Members {
		if s.Members[i].UserID == userID {
			return true
		}
	}
	return false
}

// FindItem 按队列项ID查找，返回下标，未找到返回 -1
func (s *Session) FindItem(itemID string) int {
	for i := range s.Queue {
		if s.Queue[i].ID == itemID {
			return i
		}
	}
	return -1
}

// CountAddedBy 统计某用户当前在队列中的点歌数
func (s *Session) CountAddedBy(userID int64) int {
	n := 0
	for i := range s.Queue {
		if s.Queue[i].AddedBy.UserID == userID {
			n++
		}
	}
	return n
}

// SessionSnapshot 会话完整快照，供重连/同步时整体下发
type SessionSnapshot struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	CreatorID         int64           `json:"creatorId"`
	Members           []Member        `json:"members"`
	Queue             []QueueItem     `json:"queue"`
	CurrentQueueIndex int             `json:"currentQueueIndex"`
	CurrentSongID     string          `json:"currentSongId,omitempty"`
	CurrentItem       *QueueItem      `json:"currentItem,omitempty"`
	Playback          PlaybackState   `json:"playback"`
	Settings          SessionSettings `json:"settings"`
	ServerTime        int64           `json:"serverTime"` // 毫秒
}

// Snapshot 生成会话快照（深拷贝切片，避免逃逸的内部状态被并发读写）
func (s *Session) Snapshot(serverTime int64) *SessionSnapshot {
	snap := &SessionSnapshot{
		ID:                s.ID,
		Name:              s.Name,
		CreatorID:         s.CreatorID,
		Members:           make([]Member, len(s.Members)),
		Queue:             make([]QueueItem, len(s.Queue)),
		CurrentQueueIndex: s.CurrentQueueIndex,
		CurrentSongID:     s.CurrentSongID,
		Playback:          s.Playback,
		Settings:          s.Settings,
		ServerTime:        serverTime,
	}
	copy(snap.Members, s.Members)
	copy(snap.Queue, s.Queue)

	if item := s.CurrentItem(); item != nil {
		itemCopy := *item
		snap.CurrentItem = &itemCopy
	}
	return snap
}

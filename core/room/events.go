package room

import (
	"encoding/json"

	"JamFM/core/playback"
	"JamFM/core/queue"
	"JamFM/model"
)

// EventType 消息类型
type EventType string

const (
	// 系统消息
	EvtPing EventType = "ping" // 心跳
	EvtPong EventType = "pong" // 心跳响应

	// 分组生命周期
	EvtCreateGroup  EventType = "create-group"  // 创建分组
	EvtJoinGroup    EventType = "join-group"    // 加入分组
	EvtRejoinGroup  EventType = "rejoin-group"  // 重连后恢复
	EvtLeaveGroup   EventType = "leave-group"   // 主动离开
	EvtGroupCreated EventType = "group-created" // 创建成功应答
	EvtGroupSync    EventType = "group-sync"    // 完整快照应答
	EvtGroupEnded   EventType = "group-ended"   // 分组销毁
	EvtMemberJoined EventType = "member-joined" // 成员加入
	EvtMemberLeft   EventType = "member-left"   // 成员离开

	// 队列操作
	EvtAddToQueue      EventType = "add-to-queue"
	EvtRemoveFromQueue EventType = "remove-from-queue"
	EvtSkipSong        EventType = "skip-song"
	EvtSongEnded       EventType = "song-ended"
	EvtReorderQueue    EventType = "reorder-queue"
	EvtQueueUpdated    EventType = "queue-updated" // 队列变更广播（整队列快照）
	EvtQueueEnded      EventType = "queue-ended"   // 队列播完
	EvtQueueError      EventType = "queue-error"   // 仅发给请求者的错误

	// 播放控制
	EvtMusicPlayback  EventType = "music-playback"  // 播放/暂停
	EvtMusicSeek      EventType = "music-seek"      // 进度跳转
	EvtMusicUpdate    EventType = "music-update"    // 当前曲目变更广播
	EvtPlaybackUpdate EventType = "playback-update" // 播放状态广播

	// 时钟同步
	EvtTimeSyncRequest  EventType = "time-sync-request"
	EvtTimeSyncResponse EventType = "time-sync-response"
	EvtRequestSync      EventType = "request-sync"

	// 活动消息
	EvtActivity EventType = "activity-message"
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      EventType       `json:"type"`
	GroupID   string          `json:"groupId,omitempty"`
	UserID    int64           `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ========== 入站数据 ==========

// CreateGroupData 创建分组请求数据
type CreateGroupData struct {
	Name string `json:"name"`
}

// GroupRefData 只携带分组ID的请求数据
type GroupRefData struct {
	GroupID string `json:"groupId"`
}

// AddToQueueData 点歌请求数据
type AddToQueueData struct {
	GroupID string      `json:"groupId"`
	Track   model.Track `json:"track"`
}

// RemoveFromQueueData 删除队列项请求数据
type RemoveFromQueueData struct {
	GroupID string `json:"groupId"`
	ItemID  string `json:"itemId"`
}

// SongEndedData 播放结束上报数据
type SongEndedData struct {
	GroupID string `json:"groupId"`
	SongID  string `json:"songId"` // 结束的队列项ID，幂等保护用
}

// ReorderQueueData 队列重排请求数据
type ReorderQueueData struct {
	GroupID   string `json:"groupId"`
	FromIndex int    `json:"fromIndex"`
	ToIndex   int    `json:"toIndex"`
}

// PlaybackData 播放/暂停请求数据
type PlaybackData struct {
	GroupID       string  `json:"groupId"`
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime"`
	ScheduledTime int64   `json:"scheduledTime,omitempty"` // 约定执行时刻（毫秒）
}

// SeekData 进度跳转请求数据
type SeekData struct {
	GroupID       string  `json:"groupId"`
	CurrentTime   float64 `json:"currentTime"`
	ScheduledTime int64   `json:"scheduledTime,omitempty"`
}

// TimeSyncData 时钟握手请求数据
type TimeSyncData struct {
	ClientTime int64 `json:"clientTime"`
}

// ========== 出站数据 ==========

// QueueUpdatedData 队列变更广播：下发整个队列的重算结果而不是差量，
// 队列有长度上限，整体替换换一点带宽省掉补丁乱序的坑
type QueueUpdatedData struct {
	Action            string            `json:"action"`
	Queue             []model.QueueItem `json:"queue"`
	CurrentQueueIndex int               `json:"currentQueueIndex"`
	CurrentSongID     string            `json:"currentSongId,omitempty"`
}

// MusicUpdateData 当前曲目变更广播
type MusicUpdateData struct {
	Track       *model.Track     `json:"track,omitempty"`
	CurrentTime float64          `json:"currentTime"`
	QueueItem   *model.QueueItem `json:"queueItem,omitempty"`
}

// PlaybackUpdateData 播放状态广播
type PlaybackUpdateData struct {
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime"`
	ScheduledTime int64   `json:"scheduledTime,omitempty"`
	ServerTime    int64   `json:"serverTime"`
}

// QueueErrorData 队列操作错误，只发给请求者
type QueueErrorData struct {
	Action    string          `json:"action"`
	ErrorKind queue.ErrorKind `json:"errorKind"`
}

// MemberEventData 成员变更广播
type MemberEventData struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// ActivityData 活动消息广播
type ActivityData struct {
	ActivityType string `json:"activityType"`
	Content      string `json:"content"`
}

// TimeSyncResponseData 时钟握手应答
type TimeSyncResponseData = playback.SyncPoint

func mustMarshal(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

package activity

import (
	"context"
	"fmt"
	"time"
)

// Type 分组活动类别
type Type string

const (
	TypeGroupCreated   Type = "group_created"
	TypeGroupEnded     Type = "group_ended"
	TypeMemberJoined   Type = "member_joined"
	TypeMemberLeft     Type = "member_left"
	TypeTrackAdded     Type = "track_added"
	TypeTrackRemoved   Type = "track_removed"
	TypeTrackSkipped   Type = "track_skipped"
	TypeQueueEnded     Type = "queue_ended"
	TypePlaybackPlay   Type = "playback_play"
	TypePlaybackPause  Type = "playback_pause"
	TypePlaybackSeek   Type = "playback_seek"
	TypeQueueReordered Type = "queue_reordered"
)

// Payload 模板填充所需的字段，按活动类别取用
type Payload struct {
	Username  string
	GroupName string
	TrackName string
	Artist    string
}

// Format 把一次状态变化渲染成房间内的可读消息。
// 纯函数，无状态无副作用，仅用于让多人操作对房间里的人可见。
func Format(t Type, p Payload) string {
	switch t {
	case TypeGroupCreated:
		return fmt.Sprintf("%s 创建了分组「%s」", p.Username, p.GroupName)
	case TypeGroupEnded:
		return "分组已结束"
	case TypeMemberJoined:
		return fmt.Sprintf("%s 加入了分组", p.Username)
	case TypeMemberLeft:
		return fmt.Sprintf("%s 离开了分组", p.Username)
	case TypeTrackAdded:
		return fmt.Sprintf("%s 添加了《%s》到播放队列", p.Username, p.TrackName)
	case TypeTrackRemoved:
		return fmt.Sprintf("%s 移除了《%s》", p.Username, p.TrackName)
	case TypeTrackSkipped:
		return fmt.Sprintf("%s 切到了下一首", p.Username)
	case TypeQueueEnded:
		return "队列播完了，再点几首吧"
	case TypePlaybackPlay:
		return fmt.Sprintf("%s 恢复了播放", p.Username)
	case TypePlaybackPause:
		return fmt.Sprintf("%s 暂停了播放", p.Username)
	case TypePlaybackSeek:
		return fmt.Sprintf("%s 调整了播放进度", p.Username)
	case TypeQueueReordered:
		return fmt.Sprintf("%s 调整了队列顺序", p.Username)
	default:
		return ""
	}
}

// Entry 一条待落库的活动消息
type Entry struct {
	GroupID      string
	UserID       int64
	Username     string
	ActivityType Type
	Content      string
	CreatedAt    time.Time
}

// Sink 活动消息的持久化出口（聊天面板归聊天系统负责展示，这里只投递）
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

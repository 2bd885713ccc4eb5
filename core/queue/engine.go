package queue

import (
	"time"

	"JamFM/model"

	"github.com/google/uuid"
)

// ErrorKind 队列操作错误类别，全部为可恢复的业务错误
type ErrorKind string

const (
	ErrQueueFull           ErrorKind = "QUEUE_FULL"
	ErrItemNotFound        ErrorKind = "ITEM_NOT_FOUND"
	ErrNotAuthorized       ErrorKind = "NOT_AUTHORIZED"
	ErrCannotRemovePlaying ErrorKind = "CANNOT_REMOVE_PLAYING"
	ErrInvalidRange        ErrorKind = "INVALID_RANGE"
	ErrGroupNotFound       ErrorKind = "GROUP_NOT_FOUND"
	ErrGroupFull           ErrorKind = "GROUP_FULL"
	ErrUserQuotaExceeded   ErrorKind = "USER_QUOTA_EXCEEDED"
)

// Result 队列操作的标记结果：要么 OK 携带数据，要么失败携带 Err。
// 失败时会话状态保证未被修改。
type Result struct {
	OK  bool
	Err ErrorKind

	// Item 本次操作涉及的队列项（新增/移除的项）
	Item *model.QueueItem

	// TrackChanged 当前播放曲目发生了变化，需要额外广播 music-update
	TrackChanged bool

	// QueueEnded 队列播完，当前无曲目
	QueueEnded bool

	// AlreadyAdvanced skip 的幂等快速路径：期望的歌曲已不是当前曲目，什么都没做
	AlreadyAdvanced bool
}

func failure(kind ErrorKind) Result {
	return Result{OK: false, Err: kind}
}

// Add 向队列追加一首歌。队列为空闲状态（无当前曲目）时新项自动晋升为播放中。
func Add(s *model.Session, track model.Track, addedBy model.Member) Result {
	if !s.Settings.AllowAnyoneToAdd && addedBy.UserID != s.CreatorID {
		return failure(ErrNotAuthorized)
	}
	if len(s.Queue) >= s.Settings.MaxQueueSize {
		return failure(ErrQueueFull)
	}
	if quota := s.Settings.MaxTracksPerUser; quota > 0 && s.CountAddedBy(addedBy.UserID) >= quota {
		return failure(ErrUserQuotaExceeded)
	}

	now := time.Now().UnixMilli()
	item := model.QueueItem{
		ID:      uuid.NewString(),
		Track:   track,
		AddedBy: addedBy,
		AddedAt: now,
		Status:  model.QueueStatusPending,
	}
	s.Queue = append(s.Queue, item)

	res := Result{OK: true}
	if s.CurrentQueueIndex == -1 {
		// 空闲队列，自动开始播放刚加入的歌
		promote(s, len(s.Queue)-1, now)
		res.TrackChanged = true
	}

	added := s.Queue[len(s.Queue)-1]
	res.Item = &added
	return res
}

// Remove 从队列移除一项。只有点歌人或创建者可以移除，播放中的项受保护。
func Remove(s *model.Session, itemID string, requesterID int64) Result {
	idx := s.FindItem(itemID)
	if idx == -1 {
		return failure(ErrItemNotFound)
	}

	item := s.Queue[idx]
	if item.AddedBy.UserID != requesterID && requesterID != s.CreatorID {
		return failure(ErrNotAuthorized)
	}
	if idx == s.CurrentQueueIndex {
		// 当前播放的歌不允许直接删除，调用方应当 skip
		return failure(ErrCannotRemovePlaying)
	}

	s.Queue = append(s.Queue[:idx], s.Queue[idx+1:]...)
	if idx < s.CurrentQueueIndex {
		// 移除了当前曲目之前的项，指针前移一位保持指向不变
		s.CurrentQueueIndex--
	}

	return Result{OK: true, Item: &item}
}

// SkipToNext 切到下一首。expectedSongID 非空时做幂等保护：
// 多个客户端并发上报同一首歌播放结束，只有第一个生效，其余原样返回 AlreadyAdvanced。
func SkipToNext(s *model.Session, expectedSongID string) Result {
	if expectedSongID != "" && expectedSongID != s.CurrentSongID {
		return Result{OK: false, AlreadyAdvanced: true}
	}

	now := time.Now().UnixMilli()

	// 只有仍处于 playing 的项才标记 played，重入时不回退状态
	if cur := s.CurrentItem(); cur != nil && cur.Status == model.QueueStatusPlaying {
		cur.Status = model.QueueStatusPlayed
	}

	next := s.CurrentQueueIndex + 1
	if s.CurrentQueueIndex != -1 && next < len(s.Queue) {
		promote(s, next, now)
		return Result{OK: true, TrackChanged: true}
	}

	// 队列播完
	s.CurrentQueueIndex = -1
	s.CurrentSongID = ""
	s.Playback = model.PlaybackState{IsPlaying: false, LastUpdate: now}
	return Result{OK: true, TrackChanged: true, QueueEnded: true}
}

// Reorder 把 from 位置的项移动到 to。已播放和播放中的历史区间不允许重排。
func Reorder(s *model.Session, from, to int) Result {
	if from < 0 || from >= len(s.Queue) || to < 0 || to >= len(s.Queue) {
		return failure(ErrInvalidRange)
	}
	if from <= s.CurrentQueueIndex || to <= s.CurrentQueueIndex {
		return failure(ErrInvalidRange)
	}
	if from == to {
		return Result{OK: true}
	}

	item := s.Queue[from]
	rest := append(s.Queue[:from], s.Queue[from+1:]...)
	s.Queue = append(rest[:to], append([]model.QueueItem{item}, rest[to:]...)...)

	return Result{OK: true}
}

// promote 把 idx 位置的项设为当前播放，并把播放时钟归零起播
func promote(s *model.Session, idx int, now int64) {
	s.Queue[idx].Status = model.QueueStatusPlaying
	s.CurrentQueueIndex = idx
	s.CurrentSongID = s.Queue[idx].ID
	s.Playback = model.PlaybackState{
		IsPlaying:   true,
		CurrentTime: 0,
		LastUpdate:  now,
	}
}

package playback

import (
	"JamFM/model"
)

// SyncPoint 时钟握手应答：原样回传客户端时间并附上服务器时间，
// 客户端用往返时延估算 serverTime - clientTime - RTT/2 的偏移量。
type SyncPoint struct {
	ClientTime int64 `json:"clientTime"`
	ServerTime int64 `json:"serverTime"`
}

// Echo 应答一次时钟握手
func Echo(clientTime, now int64) SyncPoint {
	return SyncPoint{ClientTime: clientTime, ServerTime: now}
}

// SetPlaying 更新播放/暂停状态。scheduledTime 为约定的未来执行时刻（毫秒），
// 下发后所有客户端在同一墙钟时刻执行，而不是收到消息就立即执行。
func SetPlaying(s *model.Session, isPlaying bool, currentTime float64, scheduledTime int64, by int64, now int64) {
	s.Playback.IsPlaying = isPlaying
	s.Playback.CurrentTime = currentTime
	s.Playback.ScheduledTime = scheduledTime
	s.Playback.LastUpdate = now
	s.Playback.UpdatedBy = by
}

// Seek 跳转到指定进度，播放/暂停状态不变
func Seek(s *model.Session, currentTime float64, scheduledTime int64, by int64, now int64) {
	s.Playback.CurrentTime = currentTime
	s.Playback.ScheduledTime = scheduledTime
	s.Playback.LastUpdate = now
	s.Playback.UpdatedBy = by
}

// Position 重建当前应处的播放进度（秒）。播放中时为
// currentTime + (now - lastUpdate)，暂停时即 currentTime。
func Position(s *model.Session, now int64) float64 {
	if !s.Playback.IsPlaying {
		return s.Playback.CurrentTime
	}
	elapsed := float64(now-s.Playback.LastUpdate) / 1000.0
	if elapsed < 0 {
		elapsed = 0
	}
	return s.Playback.CurrentTime + elapsed
}

package room

import (
	"context"
	"encoding/json"
	"time"

	"JamFM/core/activity"
	"JamFM/core/playback"
	"JamFM/core/queue"
	"JamFM/core/session"
	"JamFM/logger"
	"JamFM/model"
)

// Broadcaster 传输层出口，由 Hub 实现，测试时可替换
type Broadcaster interface {
	Broadcast(groupID string, msg *WSMessage, excludeUserID int64)
	SendToUser(userID int64, msg *WSMessage) error
	JoinRoom(groupID string, userID int64)
	LeaveRoom(groupID string, userID int64)
	DropRoom(groupID string)
}

// Notifier 站内通知出口，用户不在线时兜底告知（可选依赖）
type Notifier interface {
	Notify(userID int64, message string)
}

// Identity 已认证的请求者身份，来自连接建立时的 JWT
type Identity struct {
	UserID   int64
	Username string
	Avatar   string
}

// Router 把入站事件分发到领域操作，再把结果播回分组。
//
// 错误只回给请求者（queue-error），成功广播给全组；
// 队列变更统一下发整队列快照，当前曲目变化额外带一条 music-update。
type Router struct {
	reg       *session.Registry
	transport Broadcaster
	sink      activity.Sink
	notifier  Notifier
}

// NewRouter 创建路由器。sink 和 notifier 可以为 nil。
func NewRouter(reg *session.Registry, transport Broadcaster, sink activity.Sink, notifier Notifier) *Router {
	return &Router{
		reg:       reg,
		transport: transport,
		sink:      sink,
		notifier:  notifier,
	}
}

// Dispatch 处理一条入站消息
func (r *Router) Dispatch(ctx context.Context, from Identity, msg *WSMessage) {
	switch msg.Type {
	case EvtCreateGroup:
		r.handleCreateGroup(ctx, from, msg)
	case EvtJoinGroup, EvtRejoinGroup:
		r.handleJoinGroup(ctx, from, msg)
	case EvtLeaveGroup:
		r.handleLeaveGroup(ctx, from, msg)
	case EvtRequestSync:
		r.handleRequestSync(from, msg)
	case EvtTimeSyncRequest:
		r.handleTimeSync(from, msg)
	case EvtAddToQueue:
		r.handleAddToQueue(ctx, from, msg)
	case EvtRemoveFromQueue:
		r.handleRemoveFromQueue(ctx, from, msg)
	case EvtSkipSong, EvtSongEnded:
		r.handleAdvance(ctx, from, msg)
	case EvtReorderQueue:
		r.handleReorder(ctx, from, msg)
	case EvtMusicPlayback:
		r.handlePlayback(ctx, from, msg)
	case EvtMusicSeek:
		r.handleSeek(ctx, from, msg)
	default:
		logger.Warn("未知的消息类型",
			logger.String("type", string(msg.Type)),
			logger.Int64("userId", from.UserID))
	}
}

// HandleDeparture 断线宽限期到期后的善后：广播成员离开，
// 分组被销毁时广播结束，并把用户移出传输层的广播范围。
func (r *Router) HandleDeparture(ctx context.Context, userID int64, dep session.Departure) {
	r.transport.LeaveRoom(dep.GroupID, userID)

	if dep.Destroyed {
		r.transport.Broadcast(dep.GroupID, &WSMessage{
			Type:    EvtGroupEnded,
			GroupID: dep.GroupID,
		}, 0)
		r.transport.DropRoom(dep.GroupID)
	} else {
		r.transport.Broadcast(dep.GroupID, &WSMessage{
			Type:    EvtMemberLeft,
			GroupID: dep.GroupID,
			Data: mustMarshal(MemberEventData{
				UserID:   dep.Member.UserID,
				Username: dep.Member.Username,
				Avatar:   dep.Member.Avatar,
			}),
		}, 0)
		r.recordActivity(ctx, dep.GroupID, dep.Member.UserID, dep.Member.Username,
			activity.TypeMemberLeft, activity.Payload{Username: dep.Member.Username})
	}

	if r.notifier != nil {
		r.notifier.Notify(userID, "连接断开超时，已退出一起听分组")
	}
}

// ========== 分组生命周期 ==========

func (r *Router) handleCreateGroup(ctx context.Context, from Identity, msg *WSMessage) {
	var data CreateGroupData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	snap, err := r.reg.CreateSession(data.Name, model.Member{
		UserID:   from.UserID,
		Username: from.Username,
		Avatar:   from.Avatar,
	})
	if err != nil {
		logger.Error("创建分组失败", logger.ErrorField(err), logger.Int64("userId", from.UserID))
		r.sendError(from.UserID, "create-group", queue.ErrGroupNotFound)
		return
	}

	r.transport.JoinRoom(snap.ID, from.UserID)
	r.transport.SendToUser(from.UserID, &WSMessage{
		Type:    EvtGroupCreated,
		GroupID: snap.ID,
		Data:    mustMarshal(snap),
	})

	r.recordActivity(ctx, snap.ID, from.UserID, from.Username,
		activity.TypeGroupCreated, activity.Payload{Username: from.Username, GroupName: snap.Name})
}

func (r *Router) handleJoinGroup(ctx context.Context, from Identity, msg *WSMessage) {
	var data GroupRefData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	res := r.reg.Join(data.GroupID, model.Member{
		UserID:   from.UserID,
		Username: from.Username,
		Avatar:   from.Avatar,
	})
	if !res.Found {
		r.sendError(from.UserID, "join-group", queue.ErrGroupNotFound)
		return
	}
	if res.Full {
		r.sendError(from.UserID, "join-group", queue.ErrGroupFull)
		return
	}

	// 幂等重入同样回完整快照，断线重连的客户端靠它恢复本地状态
	r.transport.JoinRoom(data.GroupID, from.UserID)
	r.transport.SendToUser(from.UserID, &WSMessage{
		Type:    EvtGroupSync,
		GroupID: data.GroupID,
		Data:    mustMarshal(res.Snapshot),
	})

	if res.Joined {
		r.transport.Broadcast(data.GroupID, &WSMessage{
			Type:    EvtMemberJoined,
			GroupID: data.GroupID,
			Data: mustMarshal(MemberEventData{
				UserID:   from.UserID,
				Username: from.Username,
				Avatar:   from.Avatar,
			}),
		}, from.UserID)
		r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
			activity.TypeMemberJoined, activity.Payload{Username: from.Username})
	}
}

func (r *Router) handleLeaveGroup(ctx context.Context, from Identity, msg *WSMessage) {
	var data GroupRefData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	res := r.reg.Leave(data.GroupID, from.UserID)
	r.transport.LeaveRoom(data.GroupID, from.UserID)
	if !res.Found || !res.Removed {
		return
	}

	if res.Destroyed {
		r.transport.Broadcast(data.GroupID, &WSMessage{
			Type:    EvtGroupEnded,
			GroupID: data.GroupID,
		}, 0)
		r.transport.DropRoom(data.GroupID)
		return
	}

	r.transport.Broadcast(data.GroupID, &WSMessage{
		Type:    EvtMemberLeft,
		GroupID: data.GroupID,
		Data: mustMarshal(MemberEventData{
			UserID:   from.UserID,
			Username: from.Username,
			Avatar:   from.Avatar,
		}),
	}, from.UserID)

	r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
		activity.TypeMemberLeft, activity.Payload{Username: from.Username})
}

func (r *Router) handleRequestSync(from Identity, msg *WSMessage) {
	var data GroupRefData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	snap, ok := r.reg.Snapshot(data.GroupID)
	if !ok {
		r.sendError(from.UserID, "request-sync", queue.ErrGroupNotFound)
		return
	}

	r.transport.SendToUser(from.UserID, &WSMessage{
		Type:    EvtGroupSync,
		GroupID: data.GroupID,
		Data:    mustMarshal(snap),
	})
}

func (r *Router) handleTimeSync(from Identity, msg *WSMessage) {
	var data TimeSyncData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	point := playback.Echo(data.ClientTime, time.Now().UnixMilli())
	r.transport.SendToUser(from.UserID, &WSMessage{
		Type: EvtTimeSyncResponse,
		Data: mustMarshal(point),
	})
}

// ========== 队列操作 ==========

func (r *Router) handleAddToQueue(ctx context.Context, from Identity, msg *WSMessage) {
	var data AddToQueueData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	var (
		res  queue.Result
		snap *model.SessionSnapshot
	)
	found := r.reg.With(data.GroupID, func(s *model.Session) {
		if !s.HasMember(from.UserID) {
			res = queue.Result{OK: false, Err: queue.ErrNotAuthorized}
			return
		}
		res = queue.Add(s, data.Track, model.Member{
			UserID:   from.UserID,
			Username: from.Username,
			Avatar:   from.Avatar,
		})
		if res.OK {
			snap = s.Snapshot(time.Now().UnixMilli())
		}
	})
	if !found {
		r.sendError(from.UserID, "add", queue.ErrGroupNotFound)
		return
	}
	if !res.OK {
		r.sendError(from.UserID, "add", res.Err)
		return
	}

	r.broadcastQueue(data.GroupID, "add", snap)
	if res.TrackChanged {
		r.broadcastMusicUpdate(data.GroupID, snap)
	}

	r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
		activity.TypeTrackAdded, activity.Payload{
			Username:  from.Username,
			TrackName: data.Track.Name,
			Artist:    data.Track.Artist,
		})
}

func (r *Router) handleRemoveFromQueue(ctx context.Context, from Identity, msg *WSMessage) {
	var data RemoveFromQueueData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	var (
		res  queue.Result
		snap *model.SessionSnapshot
	)
	found := r.reg.With(data.GroupID, func(s *model.Session) {
		if !s.HasMember(from.UserID) {
			res = queue.Result{OK: false, Err: queue.ErrNotAuthorized}
			return
		}
		res = queue.Remove(s, data.ItemID, from.UserID)
		if res.OK {
			snap = s.Snapshot(time.Now().UnixMilli())
		}
	})
	if !found {
		r.sendError(from.UserID, "remove", queue.ErrGroupNotFound)
		return
	}
	if !res.OK {
		r.sendError(from.UserID, "remove", res.Err)
		return
	}

	r.broadcastQueue(data.GroupID, "remove", snap)

	trackName := ""
	if res.Item != nil {
		trackName = res.Item.Track.Name
	}
	r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
		activity.TypeTrackRemoved, activity.Payload{Username: from.Username, TrackName: trackName})
}

// handleAdvance 处理主动切歌和播放结束上报，两者共用同一个推进逻辑。
// song-ended 带上结束的歌曲ID做幂等保护，N 个客户端同时上报只推进一次。
func (r *Router) handleAdvance(ctx context.Context, from Identity, msg *WSMessage) {
	var data SongEndedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	var (
		res  queue.Result
		snap *model.SessionSnapshot
	)
	found := r.reg.With(data.GroupID, func(s *model.Session) {
		if !s.HasMember(from.UserID) {
			res = queue.Result{OK: false, Err: queue.ErrNotAuthorized}
			return
		}
		res = queue.SkipToNext(s, data.SongID)
		if res.OK {
			snap = s.Snapshot(time.Now().UnixMilli())
		}
	})
	if !found {
		r.sendError(from.UserID, "skip", queue.ErrGroupNotFound)
		return
	}
	if res.AlreadyAdvanced {
		// 迟到的重复上报，队列早已推进，静默吞掉不广播
		return
	}
	if !res.OK {
		r.sendError(from.UserID, "skip", res.Err)
		return
	}

	r.broadcastQueue(data.GroupID, "skip", snap)
	r.broadcastMusicUpdate(data.GroupID, snap)

	if res.QueueEnded {
		r.transport.Broadcast(data.GroupID, &WSMessage{
			Type:    EvtQueueEnded,
			GroupID: data.GroupID,
		}, 0)
		r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
			activity.TypeQueueEnded, activity.Payload{})
		return
	}

	if msg.Type == EvtSkipSong {
		r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
			activity.TypeTrackSkipped, activity.Payload{Username: from.Username})
	}
}

func (r *Router) handleReorder(ctx context.Context, from Identity, msg *WSMessage) {
	var data ReorderQueueData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	var (
		res  queue.Result
		snap *model.SessionSnapshot
	)
	found := r.reg.With(data.GroupID, func(s *model.Session) {
		if !s.HasMember(from.UserID) {
			res = queue.Result{OK: false, Err: queue.ErrNotAuthorized}
			return
		}
		res = queue.Reorder(s, data.FromIndex, data.ToIndex)
		if res.OK {
			snap = s.Snapshot(time.Now().UnixMilli())
		}
	})
	if !found {
		r.sendError(from.UserID, "reorder", queue.ErrGroupNotFound)
		return
	}
	if !res.OK {
		r.sendError(from.UserID, "reorder", res.Err)
		return
	}

	r.broadcastQueue(data.GroupID, "reorder", snap)
	r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
		activity.TypeQueueReordered, activity.Payload{Username: from.Username})
}

// ========== 播放控制 ==========

func (r *Router) handlePlayback(ctx context.Context, from Identity, msg *WSMessage) {
	var data PlaybackData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	var state model.PlaybackState
	authorized := false
	found := r.reg.With(data.GroupID, func(s *model.Session) {
		if !s.HasMember(from.UserID) {
			return
		}
		authorized = true
		playback.SetPlaying(s, data.IsPlaying, data.CurrentTime, data.ScheduledTime,
			from.UserID, time.Now().UnixMilli())
		state = s.Playback
	})
	if !found {
		r.sendError(from.UserID, "playback", queue.ErrGroupNotFound)
		return
	}
	if !authorized {
		r.sendError(from.UserID, "playback", queue.ErrNotAuthorized)
		return
	}

	r.broadcastPlayback(data.GroupID, state)

	actType := activity.TypePlaybackPause
	if data.IsPlaying {
		actType = activity.TypePlaybackPlay
	}
	r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
		actType, activity.Payload{Username: from.Username})
}

func (r *Router) handleSeek(ctx context.Context, from Identity, msg *WSMessage) {
	var data SeekData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return
	}

	var state model.PlaybackState
	authorized := false
	found := r.reg.With(data.GroupID, func(s *model.Session) {
		if !s.HasMember(from.UserID) {
			return
		}
		authorized = true
		playback.Seek(s, data.CurrentTime, data.ScheduledTime,
			from.UserID, time.Now().UnixMilli())
		state = s.Playback
	})
	if !found {
		r.sendError(from.UserID, "seek", queue.ErrGroupNotFound)
		return
	}
	if !authorized {
		r.sendError(from.UserID, "seek", queue.ErrNotAuthorized)
		return
	}

	r.broadcastPlayback(data.GroupID, state)
	r.recordActivity(ctx, data.GroupID, from.UserID, from.Username,
		activity.TypePlaybackSeek, activity.Payload{Username: from.Username})
}

// ========== 广播辅助 ==========

func (r *Router) sendError(userID int64, action string, kind queue.ErrorKind) {
	r.transport.SendToUser(userID, &WSMessage{
		Type: EvtQueueError,
		Data: mustMarshal(QueueErrorData{Action: action, ErrorKind: kind}),
	})
}

func (r *Router) broadcastQueue(groupID, action string, snap *model.SessionSnapshot) {
	r.transport.Broadcast(groupID, &WSMessage{
		Type:    EvtQueueUpdated,
		GroupID: groupID,
		Data: mustMarshal(QueueUpdatedData{
			Action:            action,
			Queue:             snap.Queue,
			CurrentQueueIndex: snap.CurrentQueueIndex,
			CurrentSongID:     snap.CurrentSongID,
		}),
	}, 0)
}

func (r *Router) broadcastMusicUpdate(groupID string, snap *model.SessionSnapshot) {
	data := MusicUpdateData{CurrentTime: snap.Playback.CurrentTime}
	if snap.CurrentItem != nil {
		track := snap.CurrentItem.Track
		data.Track = &track
		data.QueueItem = snap.CurrentItem
	}
	r.transport.Broadcast(groupID, &WSMessage{
		Type:    EvtMusicUpdate,
		GroupID: groupID,
		Data:    mustMarshal(data),
	}, 0)
}

func (r *Router) broadcastPlayback(groupID string, state model.PlaybackState) {
	r.transport.Broadcast(groupID, &WSMessage{
		Type:    EvtPlaybackUpdate,
		GroupID: groupID,
		Data: mustMarshal(PlaybackUpdateData{
			IsPlaying:     state.IsPlaying,
			CurrentTime:   state.CurrentTime,
			ScheduledTime: state.ScheduledTime,
			ServerTime:    time.Now().UnixMilli(),
		}),
	}, 0)
}

// recordActivity 渲染活动消息，广播到分组并落库
func (r *Router) recordActivity(ctx context.Context, groupID string, userID int64, username string, t activity.Type, p activity.Payload) {
	content := activity.Format(t, p)
	if content == "" {
		return
	}

	r.transport.Broadcast(groupID, &WSMessage{
		Type:    EvtActivity,
		GroupID: groupID,
		Data: mustMarshal(ActivityData{
			ActivityType: string(t),
			Content:      content,
		}),
	}, 0)

	if r.sink == nil {
		return
	}
	if err := r.sink.Record(ctx, activity.Entry{
		GroupID:      groupID,
		UserID:       userID,
		Username:     username,
		ActivityType: t,
		Content:      content,
		CreatedAt:    time.Now(),
	}); err != nil {
		logger.Warn("活动消息落库失败",
			logger.ErrorField(err),
			logger.String("groupId", groupID))
	}
}

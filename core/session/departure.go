package session

import (
	"sync"
	"time"

	"JamFM/logger"
)

// Presence 连接在线状态查询，由传输层（Hub）实现
type Presence interface {
	IsConnected(userID int64) bool
}

// DepartureScheduler 断线延迟离开调度器。
//
// 传输层断开不立即移除成员，而是为该用户挂一个宽限期定时器；
// 到期时重新检查连接状态，仍然离线才从所有分组移除。
// 每个用户最多只有一个挂起的定时器：重复断线会替换旧定时器，
// 重连会显式取消，到期时的在线复查兜底处理没有被取消掉的定时器。
// 这样快速的「断开-重连-断开」不会堆积出含义不明的多个定时器。
type DepartureScheduler struct {
	mu       sync.Mutex
	registry *Registry
	presence Presence
	grace    time.Duration
	pending  map[int64]*time.Timer

	// onDeparted 在宽限期到期且用户确实离线后，对每个波及的分组回调一次
	onDeparted func(userID int64, dep Departure)
}

// NewDepartureScheduler 创建调度器
func NewDepartureScheduler(registry *Registry, presence Presence, grace time.Duration) *DepartureScheduler {
	return &DepartureScheduler{
		registry: registry,
		presence: presence,
		grace:    grace,
		pending:  make(map[int64]*time.Timer),
	}
}

// OnDeparted 注册离开回调（广播 member-left / group-ended 等）
func (d *DepartureScheduler) OnDeparted(fn func(userID int64, dep Departure)) {
	d.onDeparted = fn
}

// Schedule 用户断线，宽限期后复查。已有挂起的定时器会被替换。
func (d *DepartureScheduler) Schedule(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.pending[userID]; ok {
		old.Stop()
	}
	d.pending[userID] = time.AfterFunc(d.grace, func() {
		d.fire(userID)
	})

	logger.Debug("已挂起延迟离开检查",
		logger.Int64("userId", userID),
		logger.Duration("grace", d.grace))
}

// Cancel 用户重连，取消挂起的离开检查
func (d *DepartureScheduler) Cancel(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.pending[userID]; ok {
		t.Stop()
		delete(d.pending, userID)
		logger.Debug("用户重连，取消延迟离开", logger.Int64("userId", userID))
	}
}

// Stop 停止全部挂起的定时器
func (d *DepartureScheduler) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for userID, t := range d.pending {
		t.Stop()
		delete(d.pending, userID)
	}
}

// fire 宽限期到期：复查在线状态，仍离线则从所有分组移除
func (d *DepartureScheduler) fire(userID int64) {
	d.mu.Lock()
	delete(d.pending, userID)
	d.mu.Unlock()

	if d.presence != nil && d.presence.IsConnected(userID) {
		// 宽限期内已经重连
		return
	}

	departures := d.registry.LeaveAll(userID)
	if len(departures) == 0 {
		return
	}

	logger.Info("断线宽限期到期，移除用户",
		logger.Int64("userId", userID),
		logger.Int("groups", len(departures)))

	if d.onDeparted != nil {
		for _, dep := range departures {
			d.onDeparted(userID, dep)
		}
	}
}

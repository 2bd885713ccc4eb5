package session

import (
	"sync"
	"testing"
	"time"

	"JamFM/model"
)

// fakePresence 可控的在线状态
type fakePresence struct {
	mu     sync.Mutex
	online map[int64]bool
}

func (p *fakePresence) IsConnected(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePresence) set(userID int64, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = on
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[int64]bool)}
}

func TestGraceExpiryRemovesUser(t *testing.T) {
	reg := testRegistry()
	presence := newFakePresence()
	sched := NewDepartureScheduler(reg, presence, 20*time.Millisecond)
	defer sched.Stop()

	snap, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})
	reg.Join(snap.ID, model.Member{UserID: 2, Username: "b"})

	done := make(chan Departure, 4)
	sched.OnDeparted(func(userID int64, dep Departure) {
		done <- dep
	})

	sched.Schedule(2)

	select {
	case dep := <-done:
		if dep.GroupID != snap.ID || dep.Member.UserID != 2 {
			t.Fatalf("unexpected departure: %+v", dep)
		}
		if dep.Destroyed {
			t.Fatal("group with remaining member must not be destroyed")
		}
	case <-time.After(time.Second):
		t.Fatal("departure never fired")
	}

	if s, _ := reg.Snapshot(snap.ID); len(s.Members) != 1 {
		t.Fatalf("expected 1 remaining member, got %d", len(s.Members))
	}
}

func TestReconnectCancelsDeparture(t *testing.T) {
	reg := testRegistry()
	presence := newFakePresence()
	sched := NewDepartureScheduler(reg, presence, 20*time.Millisecond)
	defer sched.Stop()

	snap, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})

	fired := make(chan struct{}, 1)
	sched.OnDeparted(func(userID int64, dep Departure) {
		fired <- struct{}{}
	})

	sched.Schedule(1)
	sched.Cancel(1)

	select {
	case <-fired:
		t.Fatal("cancelled departure must not fire")
	case <-time.After(100 * time.Millisecond):
	}

	if s, ok := reg.Snapshot(snap.ID); !ok || len(s.Members) != 1 {
		t.Fatal("member list must be unchanged after reconnect")
	}
}

func TestPresenceRecheckSwallowsStaleTimer(t *testing.T) {
	reg := testRegistry()
	presence := newFakePresence()
	sched := NewDepartureScheduler(reg, presence, 20*time.Millisecond)
	defer sched.Stop()

	snap, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})

	// 定时器没被取消，但到期时用户已经重连
	presence.set(1, true)
	sched.Schedule(1)

	time.Sleep(100 * time.Millisecond)

	if s, ok := reg.Snapshot(snap.ID); !ok || len(s.Members) != 1 {
		t.Fatal("online user must survive a stale timer")
	}
}

func TestRescheduleReplacesTimer(t *testing.T) {
	reg := testRegistry()
	presence := newFakePresence()
	sched := NewDepartureScheduler(reg, presence, 30*time.Millisecond)
	defer sched.Stop()

	reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})

	count := make(chan struct{}, 8)
	sched.OnDeparted(func(userID int64, dep Departure) {
		count <- struct{}{}
	})

	// 快速的断开-断开序列，旧定时器被替换，最终只触发一次
	sched.Schedule(1)
	sched.Schedule(1)
	sched.Schedule(1)

	time.Sleep(150 * time.Millisecond)

	if n := len(count); n != 1 {
		t.Fatalf("expected exactly one departure, got %d", n)
	}
}

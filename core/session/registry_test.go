package session

import (
	"testing"

	"JamFM/model"
)

func testRegistry() *Registry {
	return NewRegistry(model.SessionSettings{
		MaxQueueSize:     50,
		AllowAnyoneToAdd: true,
		MaxMembers:       3,
	})
}

func TestCreateSessionAutoJoinsCreator(t *testing.T) {
	reg := testRegistry()

	snap, err := reg.CreateSession("周五夜电台", model.Member{UserID: 1, Username: "alice"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if len(snap.ID) != 6 {
		t.Fatalf("expected 6-digit group id, got %q", snap.ID)
	}
	if len(snap.Members) != 1 || snap.Members[0].UserID != 1 {
		t.Fatalf("creator not auto-joined: %+v", snap.Members)
	}
	if snap.CurrentQueueIndex != -1 || snap.CurrentSongID != "" {
		t.Fatalf("new session must start idle, got idx=%d", snap.CurrentQueueIndex)
	}
	if !reg.Exists(snap.ID) || reg.Count() != 1 {
		t.Fatal("session not registered")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	reg := testRegistry()
	snap, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "alice"})

	res := reg.Join(snap.ID, model.Member{UserID: 2, Username: "bob"})
	if !res.Found || !res.Joined {
		t.Fatalf("first join failed: %+v", res)
	}

	// 重复加入不产生副作用，但仍然拿到快照
	res = reg.Join(snap.ID, model.Member{UserID: 2, Username: "bob"})
	if !res.Found || res.Joined {
		t.Fatalf("rejoin must be a no-op: %+v", res)
	}
	if res.Snapshot == nil || len(res.Snapshot.Members) != 2 {
		t.Fatal("rejoin must still return a full snapshot")
	}
}

func TestJoinUnknownGroup(t *testing.T) {
	reg := testRegistry()

	res := reg.Join("999999", model.Member{UserID: 2, Username: "bob"})
	if res.Found {
		t.Fatal("expected Found=false for unknown group")
	}
}

func TestJoinFullGroup(t *testing.T) {
	reg := testRegistry()
	snap, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})
	reg.Join(snap.ID, model.Member{UserID: 2, Username: "b"})
	reg.Join(snap.ID, model.Member{UserID: 3, Username: "c"})

	res := reg.Join(snap.ID, model.Member{UserID: 4, Username: "d"})
	if !res.Found || !res.Full {
		t.Fatalf("expected Full, got %+v", res)
	}

	// 已在组里的成员不受满员限制
	res = reg.Join(snap.ID, model.Member{UserID: 3, Username: "c"})
	if res.Full || res.Snapshot == nil {
		t.Fatalf("existing member must pass the cap: %+v", res)
	}
}

func TestLeaveDestroysEmptyGroup(t *testing.T) {
	reg := testRegistry()
	snap, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})
	reg.Join(snap.ID, model.Member{UserID: 2, Username: "b"})

	res := reg.Leave(snap.ID, 1)
	if !res.Removed || res.Destroyed {
		t.Fatalf("group with remaining members must survive: %+v", res)
	}

	res = reg.Leave(snap.ID, 2)
	if !res.Removed || !res.Destroyed {
		t.Fatalf("last leave must destroy the group: %+v", res)
	}
	if reg.Exists(snap.ID) {
		t.Fatal("destroyed group still registered")
	}
}

func TestLeaveAllSpansGroups(t *testing.T) {
	reg := testRegistry()
	first, _ := reg.CreateSession("one", model.Member{UserID: 1, Username: "a"})
	second, _ := reg.CreateSession("two", model.Member{UserID: 1, Username: "a"})
	reg.Join(second.ID, model.Member{UserID: 2, Username: "b"})

	departures := reg.LeaveAll(1)
	if len(departures) != 2 {
		t.Fatalf("expected 2 departures, got %d", len(departures))
	}

	destroyed := map[string]bool{}
	for _, dep := range departures {
		destroyed[dep.GroupID] = dep.Destroyed
	}
	if !destroyed[first.ID] {
		t.Fatal("solo group must be destroyed")
	}
	if destroyed[second.ID] {
		t.Fatal("group with another member must survive")
	}
	if len(reg.SessionsOf(1)) != 0 {
		t.Fatal("user index not cleared")
	}
	if len(reg.SessionsOf(2)) != 1 {
		t.Fatal("other user's index must be intact")
	}
}

func TestDestroySessionClearsIndex(t *testing.T) {
	reg := testRegistry()
	snap, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})
	reg.Join(snap.ID, model.Member{UserID: 2, Username: "b"})

	if !reg.DestroySession(snap.ID) {
		t.Fatal("DestroySession returned false")
	}
	if reg.Exists(snap.ID) {
		t.Fatal("session still present")
	}
	if len(reg.SessionsOf(1)) != 0 || len(reg.SessionsOf(2)) != 0 {
		t.Fatal("member indexes not cleared")
	}
}

func TestWithReportsMissingGroup(t *testing.T) {
	reg := testRegistry()

	called := false
	if reg.With("000000", func(s *model.Session) { called = true }) {
		t.Fatal("With must return false for unknown group")
	}
	if called {
		t.Fatal("fn must not run for unknown group")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	reg := testRegistry()
	created, _ := reg.CreateSession("test", model.Member{UserID: 1, Username: "a"})

	snap, ok := reg.Snapshot(created.ID)
	if !ok {
		t.Fatal("Snapshot failed")
	}
	snap.Members[0].Username = "mutated"

	again, _ := reg.Snapshot(created.ID)
	if again.Members[0].Username != "a" {
		t.Fatal("snapshot shares backing storage with live session")
	}
}

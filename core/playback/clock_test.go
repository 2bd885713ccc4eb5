package playback

import (
	"testing"

	"JamFM/model"
)

func TestEchoCarriesClientTime(t *testing.T) {
	point := Echo(12345, 67890)
	if point.ClientTime != 12345 {
		t.Fatalf("client time must be echoed verbatim, got %d", point.ClientTime)
	}
	if point.ServerTime != 67890 {
		t.Fatalf("unexpected server time %d", point.ServerTime)
	}
}

func TestPositionWhilePlaying(t *testing.T) {
	s := &model.Session{
		Playback: model.PlaybackState{
			IsPlaying:   true,
			CurrentTime: 30,
			LastUpdate:  1000,
		},
	}

	// 5 秒后
	if got := Position(s, 6000); got != 35 {
		t.Fatalf("expected position 35, got %v", got)
	}
}

func TestPositionWhilePaused(t *testing.T) {
	s := &model.Session{
		Playback: model.PlaybackState{
			IsPlaying:   false,
			CurrentTime: 30,
			LastUpdate:  1000,
		},
	}

	// 暂停状态下进度不随时间前进
	if got := Position(s, 100000); got != 30 {
		t.Fatalf("expected position 30, got %v", got)
	}
}

func TestPositionClampsClockSkew(t *testing.T) {
	s := &model.Session{
		Playback: model.PlaybackState{
			IsPlaying:   true,
			CurrentTime: 30,
			LastUpdate:  5000,
		},
	}

	// now 早于 lastUpdate 时不回退
	if got := Position(s, 4000); got != 30 {
		t.Fatalf("expected clamped position 30, got %v", got)
	}
}

func TestSetPlayingStampsState(t *testing.T) {
	s := &model.Session{}

	SetPlaying(s, true, 42.5, 9000, 7, 8000)
	if !s.Playback.IsPlaying || s.Playback.CurrentTime != 42.5 {
		t.Fatalf("unexpected state %+v", s.Playback)
	}
	if s.Playback.ScheduledTime != 9000 || s.Playback.LastUpdate != 8000 || s.Playback.UpdatedBy != 7 {
		t.Fatalf("timestamps not recorded: %+v", s.Playback)
	}
}

func TestSeekKeepsPlayState(t *testing.T) {
	s := &model.Session{
		Playback: model.PlaybackState{IsPlaying: true, CurrentTime: 10},
	}

	Seek(s, 90, 0, 7, 8000)
	if !s.Playback.IsPlaying {
		t.Fatal("seek must not change play state")
	}
	if s.Playback.CurrentTime != 90 || s.Playback.LastUpdate != 8000 {
		t.Fatalf("unexpected state %+v", s.Playback)
	}
}

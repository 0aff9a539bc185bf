package player

import (
	"errors"
	"math"
	"testing"

	"soundstorm/pkg/models"
)

func testQueue() []models.Track {
	return []models.Track{
		{ID: 1, Title: "A", PreviewURL: "http://x/a.m4a"},
		{ID: 2, Title: "B", PreviewURL: "http://x/b.m4a"},
		{ID: 3, Title: "C", PreviewURL: "http://x/c.m4a"},
	}
}

// playing loads track and drives the attempt through a successful load.
func playing(t *testing.T, s *Session, track models.Track, queue []models.Track) Command {
	t.Helper()
	cmd := s.Load(track, queue)
	if cmd.Action != ActionBegin {
		t.Fatalf("Load action = %v, want ActionBegin", cmd.Action)
	}
	if !s.LoadSucceeded(cmd.Attempt) {
		t.Fatal("LoadSucceeded returned false")
	}
	return cmd
}

func TestNewSessionIsIdle(t *testing.T) {
	s := NewSession(0.7, true)
	st := s.State()
	if st.Status != StatusIdle || st.Track != nil || st.CurrentIndex != -1 {
		t.Fatalf("unexpected initial state: %+v", st)
	}
	if st.Volume != 0.7 || !st.AutoPlay {
		t.Errorf("volume/autoplay = %v/%v", st.Volume, st.AutoPlay)
	}
}

func TestLoadSetsQueueAndIndex(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	cmd := s.Load(q[1], q)

	st := s.State()
	if cmd.Action != ActionBegin || cmd.Track.ID != 2 {
		t.Fatalf("command = %+v", cmd)
	}
	if st.Status != StatusLoading || st.CurrentIndex != 1 || len(st.Queue) != 3 {
		t.Fatalf("state = %+v", st)
	}

	q[0].Title = "mutated"
	if s.State().Queue[0].Title != "A" {
		t.Error("session queue aliases the caller's slice")
	}
}

func TestLoadWithoutQueueKeepsQueue(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	playing(t, s, q[0], q)

	s.Load(q[2], nil)
	st := s.State()
	if len(st.Queue) != 3 || st.CurrentIndex != 2 {
		t.Fatalf("queue=%d index=%d", len(st.Queue), st.CurrentIndex)
	}

	s.Load(models.Track{ID: 99}, nil)
	if got := s.State().CurrentIndex; got != -1 {
		t.Errorf("index for track outside queue = %d, want -1", got)
	}
}

func TestLoadEmptyQueueClears(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	playing(t, s, q[0], q)

	s.Load(q[1], []models.Track{})
	st := s.State()
	if len(st.Queue) != 0 || st.CurrentIndex != -1 {
		t.Fatalf("queue=%d index=%d", len(st.Queue), st.CurrentIndex)
	}
}

func TestLoadSameTrackToggles(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	first := playing(t, s, q[0], q)

	cmd := s.Load(q[0], q)
	if cmd.Action != ActionPause || s.State().Status != StatusPaused {
		t.Fatalf("second load: action=%v status=%s", cmd.Action, s.State().Status)
	}

	cmd = s.Load(q[0], q)
	if cmd.Action != ActionResume || s.State().Status != StatusPlaying {
		t.Fatalf("third load: action=%v status=%s", cmd.Action, s.State().Status)
	}
	if s.Attempt() != first.Attempt {
		t.Error("toggling started a new attempt")
	}
}

func TestLoadSameTrackWhileLoadingReloads(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	first := s.Load(q[0], q)
	second := s.Load(q[0], q)
	if second.Action != ActionBegin || second.Attempt == first.Attempt {
		t.Fatalf("second = %+v", second)
	}
}

func TestLastLoadWins(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	a := s.Load(q[0], q)
	b := s.Load(q[1], q)

	if s.LoadSucceeded(a.Attempt) {
		t.Fatal("superseded attempt was applied")
	}
	if s.LoadFailed(a.Attempt, errors.New("late")) {
		t.Fatal("superseded failure was applied")
	}
	if !s.LoadSucceeded(b.Attempt) {
		t.Fatal("current attempt was rejected")
	}

	st := s.State()
	if st.Track.ID != 2 || st.Status != StatusPlaying || st.LastError != "" {
		t.Fatalf("state = %+v", st)
	}
}

func TestLoadFailedThenPlayRetries(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	cmd := s.Load(q[0], q)
	s.LoadFailed(cmd.Attempt, errors.New("boom"))

	st := s.State()
	if st.Status != StatusPaused || st.LastError != "boom" || st.Track == nil {
		t.Fatalf("after failure: %+v", st)
	}

	retry := s.Play()
	if retry.Action != ActionBegin || retry.Track.ID != 1 || retry.Attempt == cmd.Attempt {
		t.Fatalf("retry = %+v", retry)
	}
	if s.State().LastError != "" {
		t.Error("retry kept the stale error")
	}

	again := s.Load(q[0], q)
	if again.Action != ActionBegin {
		t.Errorf("load while loading = %v, want ActionBegin", again.Action)
	}
}

func TestNextPreviousWrap(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	playing(t, s, q[2], q)

	cmd := s.Next()
	if cmd.Action != ActionBegin || cmd.Track.ID != 1 || s.State().CurrentIndex != 0 {
		t.Fatalf("next from last = %+v index=%d", cmd, s.State().CurrentIndex)
	}

	cmd = s.Previous()
	if cmd.Track.ID != 3 || s.State().CurrentIndex != 2 {
		t.Fatalf("previous from first = %+v index=%d", cmd, s.State().CurrentIndex)
	}
}

func TestNextCyclesBackToStart(t *testing.T) {
	for n := 1; n <= 5; n++ {
		q := make([]models.Track, n)
		for i := range q {
			q[i] = models.Track{ID: i + 1, PreviewURL: "http://x/t.m4a"}
		}
		for start := 0; start < n; start++ {
			s := NewSession(1, true)
			playing(t, s, q[start], q)
			for step := 1; step <= n; step++ {
				cmd := s.Next()
				want := (start + step) % n
				if got := s.State().CurrentIndex; got != want || cmd.Track.ID != q[want].ID {
					t.Fatalf("n=%d start=%d step=%d: index=%d track=%d, want %d", n, start, step, got, cmd.Track.ID, want)
				}
				s.LoadSucceeded(cmd.Attempt)
			}
			for step := 1; step <= n; step++ {
				s.LoadSucceeded(s.Previous().Attempt)
			}
			if got := s.State().CurrentIndex; got != start {
				t.Errorf("n=%d: previous %d times ended at %d, want %d", n, n, got, start)
			}
		}
	}
}

func TestNextSequenceABC(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	playing(t, s, q[0], q)

	for _, want := range []struct{ id, index int }{{2, 1}, {3, 2}, {1, 0}} {
		cmd := s.Next()
		st := s.State()
		if cmd.Track.ID != want.id || st.Track.ID != want.id || st.CurrentIndex != want.index {
			t.Fatalf("next loaded %d at index %d, want %d at %d", st.Track.ID, st.CurrentIndex, want.id, want.index)
		}
		s.LoadSucceeded(cmd.Attempt)
	}
}

func TestNextOnEmptyQueue(t *testing.T) {
	s := NewSession(1, true)
	if cmd := s.Next(); cmd.Action != ActionNone {
		t.Fatalf("next on empty queue = %v", cmd.Action)
	}
	if cmd := s.Previous(); cmd.Action != ActionNone {
		t.Fatalf("previous on empty queue = %v", cmd.Action)
	}
	if s.State().Status != StatusIdle {
		t.Error("state changed")
	}
}

func TestSeek(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()

	if _, ok := s.Seek(10); ok {
		t.Fatal("seek accepted while idle")
	}

	cmd := playing(t, s, q[0], q)
	if _, ok := s.Seek(10); ok {
		t.Fatal("seek accepted before duration known")
	}
	s.MetadataReady(cmd.Attempt, 30)

	tests := []struct {
		name string
		in   int
		want int
	}{
		{"inside", 12, 12},
		{"negative", -4, 0},
		{"past end", 45, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Seek(tt.in)
			if !ok || got != tt.want || s.State().PositionSeconds != tt.want {
				t.Errorf("Seek(%d) = %d,%v position=%d", tt.in, got, ok, s.State().PositionSeconds)
			}
		})
	}
}

func TestVolumeAndMute(t *testing.T) {
	s := NewSession(0.5, true)

	tests := []struct {
		in, want float64
	}{
		{0.3, 0.3},
		{-1, 0},
		{2, 1},
		{math.NaN(), 1},
	}
	for _, tt := range tests {
		if got := s.SetVolume(tt.in); got != tt.want {
			t.Errorf("SetVolume(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	s.SetVolume(0.4)
	s.SetMuted(true)
	st := s.State()
	if st.EffectiveVolume() != 0 || st.Volume != 0.4 {
		t.Fatalf("muted: effective=%v stored=%v", st.EffectiveVolume(), st.Volume)
	}
	s.SetMuted(false)
	if got := s.State().EffectiveVolume(); got != 0.4 {
		t.Errorf("unmuted effective = %v", got)
	}
}

func TestEndedWithAutoPlay(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	cmd := playing(t, s, q[0], q)
	s.MetadataReady(cmd.Attempt, 30)

	advance, ok := s.Ended(cmd.Attempt)
	if !ok || !advance {
		t.Fatalf("Ended = %v,%v", advance, ok)
	}
	next := s.Next()
	if next.Track.ID != 2 {
		t.Errorf("advanced to %d", next.Track.ID)
	}
}

func TestEndedWithoutAutoPlay(t *testing.T) {
	s := NewSession(1, false)
	q := testQueue()
	cmd := playing(t, s, q[0], q)
	s.MetadataReady(cmd.Attempt, 30)

	advance, ok := s.Ended(cmd.Attempt)
	if !ok || advance {
		t.Fatalf("Ended = %v,%v", advance, ok)
	}
	st := s.State()
	if st.Status != StatusEnded || st.PositionSeconds != 30 {
		t.Fatalf("state = %+v", st)
	}

	restart := s.Play()
	if restart.Action != ActionRestart || s.State().PositionSeconds != 0 {
		t.Errorf("play from ended = %+v position=%d", restart, s.State().PositionSeconds)
	}
}

func TestStaleEventsIgnored(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	old := playing(t, s, q[0], q)
	cur := playing(t, s, q[1], q)

	if s.MetadataReady(old.Attempt, 99) {
		t.Error("stale metadata applied")
	}
	if s.Progress(old.Attempt, 5) {
		t.Error("stale progress applied")
	}
	if _, ok := s.Ended(old.Attempt); ok {
		t.Error("stale end applied")
	}
	if !s.MetadataReady(cur.Attempt, 30) || !s.Progress(cur.Attempt, 3) {
		t.Error("current events rejected")
	}
}

func TestProgressClampsToDuration(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	cmd := playing(t, s, q[0], q)
	s.MetadataReady(cmd.Attempt, 30)

	s.Progress(cmd.Attempt, 31)
	if got := s.State().PositionSeconds; got != 30 {
		t.Errorf("position = %d, want 30", got)
	}
}

func TestSleepFired(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	playing(t, s, q[0], q)
	s.SetSleepTimer(15)

	if !s.SleepFired() {
		t.Fatal("sleep did not pause a playing session")
	}
	st := s.State()
	if st.Status != StatusPaused || st.SleepTimerMinutes != 0 {
		t.Fatalf("state = %+v", st)
	}
	if s.SleepFired() {
		t.Error("sleep paused an already paused session")
	}
}

func TestSleepFiredWhileLoading(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	cmd := s.Load(q[0], q)
	s.SetSleepTimer(5)

	if s.SleepFired() {
		t.Fatal("sleep reported a pause before the load settled")
	}
	if st := s.State(); st.Status != StatusLoading || st.SleepTimerMinutes != 0 {
		t.Fatalf("state = %+v", st)
	}

	if !s.LoadSucceeded(cmd.Attempt) {
		t.Fatal("LoadSucceeded returned false")
	}
	if got := s.State().Status; got != StatusPaused {
		t.Fatalf("status after load = %s, want paused", got)
	}
	if resume := s.Play(); resume.Action != ActionResume {
		t.Errorf("play after sleep = %v, want ActionResume", resume.Action)
	}
}

func TestNewLoadClearsPendingSleepPause(t *testing.T) {
	s := NewSession(1, true)
	q := testQueue()
	s.Load(q[0], q)
	s.SleepFired()

	cmd := s.Load(q[1], q)
	s.LoadSucceeded(cmd.Attempt)
	if got := s.State().Status; got != StatusPlaying {
		t.Errorf("status = %s, want playing", got)
	}
}

func TestReset(t *testing.T) {
	s := NewSession(0.6, true)
	q := testQueue()
	cmd := playing(t, s, q[0], q)
	s.SetSleepTimer(5)
	s.Reset()

	st := s.State()
	if st.Status != StatusIdle || st.Track != nil || len(st.Queue) != 0 || st.SleepTimerMinutes != 0 {
		t.Fatalf("state = %+v", st)
	}
	if st.Volume != 0.6 {
		t.Errorf("reset changed volume to %v", st.Volume)
	}
	if s.MetadataReady(cmd.Attempt, 30) {
		t.Error("attempt survived reset")
	}
}

func TestVersionAdvances(t *testing.T) {
	s := NewSession(1, true)
	v := s.Version()
	s.SetMuted(true)
	if s.Version() <= v {
		t.Error("version did not advance")
	}
}

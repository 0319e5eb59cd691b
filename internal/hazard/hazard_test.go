package hazard

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type publish struct {
	value bool
	at    time.Time
}

// recorder implements Publisher and Sink and records every call.
type recorder struct {
	clock      *fakeClock
	publishes  []publish
	alerts     []Alert
	captures   []Capture
	publishErr error
}

func (r *recorder) PublishDetect(_ context.Context, detected bool) error {
	r.publishes = append(r.publishes, publish{value: detected, at: r.clock.Now()})
	return r.publishErr
}

func (r *recorder) Alert(a Alert)     { r.alerts = append(r.alerts, a) }
func (r *recorder) Capture(c Capture) { r.captures = append(r.captures, c) }

type stubFrame struct {
	data []byte
	err  error
}

func (f stubFrame) JPEG() ([]byte, error) { return f.data, f.err }

var testFrame = stubFrame{data: []byte{0xff, 0xd8, 0xff, 0xd9}}

func newTestController(t *testing.T, cfg Config, opts ...Option) (*Controller, *recorder, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)}
	rec := &recorder{clock: clock}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	c, err := NewController(cfg, rec, rec, opts...)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c, rec, clock
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero debounce", Config{Debounce: 0, UploadCooldown: time.Second, MaxUploads: 3}, true},
		{"negative cooldown", Config{Debounce: time.Second, UploadCooldown: -1, MaxUploads: 3}, true},
		{"negative max", Config{Debounce: time.Second, UploadCooldown: time.Second, MaxUploads: -1}, true},
		{"zero max uploads", Config{Debounce: time.Second, UploadCooldown: time.Second}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewController_RejectsNilDeps(t *testing.T) {
	rec := &recorder{clock: &fakeClock{}}
	if _, err := NewController(DefaultConfig(), nil, rec); err == nil {
		t.Error("expected error for nil publisher")
	}
	if _, err := NewController(DefaultConfig(), rec, nil); err == nil {
		t.Error("expected error for nil sink")
	}
}

// Debounce 10s, cooldown 2s, one tick per second, signal true for the
// first three ticks and false afterwards.
func TestController_FifteenTickScenario(t *testing.T) {
	c, rec, clock := newTestController(t, Config{
		Debounce:       10 * time.Second,
		UploadCooldown: 2 * time.Second,
		MaxUploads:     3,
	})
	start := clock.Now()

	tickAt := make(map[time.Time]int)
	var uploadsAtTick6 int
	for tick := 1; tick <= 15; tick++ {
		clock.t = start.Add(time.Duration(tick) * time.Second)
		tickAt[clock.Now()] = tick

		signal := tick <= 3
		if err := c.Tick(context.Background(), signal, testFrame); err != nil {
			t.Fatalf("tick %d: Tick() error = %v", tick, err)
		}
		if tick == 6 {
			uploadsAtTick6 = c.Episode().UploadsSent
			if c.Episode().Open {
				t.Error("episode should close at tick 6")
			}
		}
	}

	if len(rec.publishes) != 2 {
		t.Fatalf("got %d publishes, want 2: %+v", len(rec.publishes), rec.publishes)
	}
	if !rec.publishes[0].value || tickAt[rec.publishes[0].at] != 1 {
		t.Errorf("first publish = %+v, want true at tick 1", rec.publishes[0])
	}
	if rec.publishes[1].value || tickAt[rec.publishes[1].at] != 11 {
		t.Errorf("second publish = %+v, want false at tick 11", rec.publishes[1])
	}

	if len(rec.alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(rec.alerts))
	}

	wantTicks := []int{1, 3, 5}
	if len(rec.captures) != len(wantTicks) {
		t.Fatalf("got %d captures, want %d", len(rec.captures), len(wantTicks))
	}
	for i, capture := range rec.captures {
		if got := tickAt[capture.At]; got != wantTicks[i] {
			t.Errorf("capture %d at tick %d, want %d", i+1, got, wantTicks[i])
		}
		if capture.Index != i+1 {
			t.Errorf("capture %d index = %d", i+1, capture.Index)
		}
		if capture.Episode != rec.alerts[0].Episode {
			t.Errorf("capture %d episode = %q, want %q", i+1, capture.Episode, rec.alerts[0].Episode)
		}
	}
	if uploadsAtTick6 != 0 {
		t.Errorf("uploads after close = %d, want 0", uploadsAtTick6)
	}
	if c.Detected() {
		t.Error("final state should be false")
	}
}

func TestController_EpisodeKeyFormat(t *testing.T) {
	c, rec, clock := newTestController(t, DefaultConfig())
	clock.t = time.Date(2026, 7, 4, 18, 5, 9, 0, time.UTC)

	if err := c.Tick(context.Background(), true, testFrame); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(rec.alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(rec.alerts))
	}
	if got, want := rec.alerts[0].Episode, "2026-07-04/18:05:09"; got != want {
		t.Errorf("episode key = %q, want %q", got, want)
	}
}

func TestController_ContinuousHazardReAlertsPerWindow(t *testing.T) {
	c, rec, clock := newTestController(t, Config{
		Debounce:       10 * time.Second,
		UploadCooldown: 2 * time.Second,
		MaxUploads:     3,
	})
	start := clock.Now()

	// 35 seconds of held hazard at 2 ticks per second.
	for i := 0; i <= 70; i++ {
		clock.t = start.Add(time.Duration(i) * 500 * time.Millisecond)
		if err := c.Tick(context.Background(), true, testFrame); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	// Publishes at 0s, 10s, 20s, 30s.
	if len(rec.publishes) != 4 {
		t.Fatalf("got %d publishes, want 4", len(rec.publishes))
	}
	for i := 1; i < len(rec.publishes); i++ {
		if !rec.publishes[i].value {
			t.Errorf("publish %d = false, want true", i)
		}
		gap := rec.publishes[i].at.Sub(rec.publishes[i-1].at)
		if gap < 10*time.Second {
			t.Errorf("publishes %d and %d only %v apart", i-1, i, gap)
		}
	}
	if len(rec.alerts) != 4 {
		t.Errorf("got %d alerts, want one per window", len(rec.alerts))
	}
	// Each re-alert restarts the episode, so every window gets three captures.
	if len(rec.captures) != 12 {
		t.Errorf("got %d captures, want 12", len(rec.captures))
	}
}

func TestController_SinglePulse(t *testing.T) {
	c, rec, clock := newTestController(t, Config{
		Debounce:       10 * time.Second,
		UploadCooldown: 2 * time.Second,
		MaxUploads:     3,
	})
	start := clock.Now()

	for i := 0; i <= 30; i++ {
		clock.t = start.Add(time.Duration(i) * time.Second)
		if err := c.Tick(context.Background(), i == 0, testFrame); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}

	if len(rec.publishes) != 2 {
		t.Fatalf("got %d publishes, want 2", len(rec.publishes))
	}
	if !rec.publishes[0].value || rec.publishes[1].value {
		t.Errorf("publishes = %+v, want true then false", rec.publishes)
	}
	if gap := rec.publishes[1].at.Sub(rec.publishes[0].at); gap != 10*time.Second {
		t.Errorf("false published %v after true, want 10s", gap)
	}
}

func TestController_QuietSignalNeverPublishes(t *testing.T) {
	c, rec, clock := newTestController(t, DefaultConfig())
	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
		if err := c.Tick(context.Background(), false, testFrame); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if len(rec.publishes) != 0 || len(rec.captures) != 0 {
		t.Errorf("publishes=%d captures=%d, want none", len(rec.publishes), len(rec.captures))
	}
}

func TestController_UploadSpacingAndCap(t *testing.T) {
	cfg := Config{
		Debounce:       time.Minute,
		UploadCooldown: 2 * time.Second,
		MaxUploads:     3,
	}
	c, rec, clock := newTestController(t, cfg)

	for i := 0; i < 100; i++ {
		if err := c.Tick(context.Background(), true, testFrame); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		clock.Advance(250 * time.Millisecond)
	}

	if len(rec.captures) != 3 {
		t.Fatalf("got %d captures, want 3", len(rec.captures))
	}
	for i := 1; i < len(rec.captures); i++ {
		if gap := rec.captures[i].At.Sub(rec.captures[i-1].At); gap < cfg.UploadCooldown {
			t.Errorf("captures %d and %d only %v apart", i-1, i, gap)
		}
	}
	if c.Episode().Open {
		t.Error("episode should be closed after the cap")
	}
	if c.Episode().UploadsSent != 0 {
		t.Errorf("UploadsSent = %d after close, want 0", c.Episode().UploadsSent)
	}
}

func TestController_ZeroMaxUploadsClosesImmediately(t *testing.T) {
	c, rec, _ := newTestController(t, Config{
		Debounce:       10 * time.Second,
		UploadCooldown: 2 * time.Second,
		MaxUploads:     0,
	})
	if err := c.Tick(context.Background(), true, testFrame); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(rec.alerts) != 1 {
		t.Errorf("got %d alerts, want 1", len(rec.alerts))
	}
	if len(rec.captures) != 0 {
		t.Errorf("got %d captures, want 0", len(rec.captures))
	}
	if c.Episode().Open {
		t.Error("episode should be closed")
	}
}

func TestController_PublishFailureKeepsBookkeeping(t *testing.T) {
	c, rec, _ := newTestController(t, DefaultConfig())
	rec.publishErr = errors.New("connection refused")

	err := c.Tick(context.Background(), true, testFrame)
	if err == nil {
		t.Fatal("expected publish error")
	}
	if !errors.Is(err, rec.publishErr) {
		t.Errorf("error %v does not wrap the publish error", err)
	}

	if !c.Detected() {
		t.Error("mirrored state should be updated despite the failure")
	}
	if !c.Status().DebounceActive {
		t.Error("debounce should be active despite the failure")
	}
	if len(rec.alerts) != 1 {
		t.Errorf("got %d alerts, want 1", len(rec.alerts))
	}
	if len(rec.captures) != 1 {
		t.Errorf("got %d captures, want 1", len(rec.captures))
	}
}

func TestController_SeededInitialState(t *testing.T) {
	t.Run("seeded true publishes false on quiet signal", func(t *testing.T) {
		c, rec, _ := newTestController(t, DefaultConfig(), WithInitialState(true))
		if err := c.Tick(context.Background(), false, testFrame); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		if len(rec.publishes) != 1 || rec.publishes[0].value {
			t.Errorf("publishes = %+v, want a single false", rec.publishes)
		}
		if len(rec.alerts) != 0 {
			t.Error("a false publish must not alert")
		}
	})

	t.Run("seeded false stays quiet", func(t *testing.T) {
		c, rec, _ := newTestController(t, DefaultConfig(), WithInitialState(false))
		if err := c.Tick(context.Background(), false, testFrame); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		if len(rec.publishes) != 0 {
			t.Errorf("publishes = %+v, want none", rec.publishes)
		}
	})
}

func TestController_EncodeFailure(t *testing.T) {
	c, rec, clock := newTestController(t, DefaultConfig())
	bad := stubFrame{err: errors.New("empty frame")}

	if err := c.Tick(context.Background(), true, bad); err == nil {
		t.Fatal("expected encode error")
	}
	if len(rec.captures) != 0 {
		t.Fatalf("got %d captures, want 0", len(rec.captures))
	}
	if got := c.Episode().UploadsSent; got != 0 {
		t.Errorf("failed encode consumed a slot: UploadsSent = %d", got)
	}

	clock.Advance(100 * time.Millisecond)
	if err := c.Tick(context.Background(), true, testFrame); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(rec.captures) != 1 || rec.captures[0].Index != 1 {
		t.Errorf("captures = %+v, want index 1 on the next good frame", rec.captures)
	}
}

func TestController_NilFrameSkipsCapture(t *testing.T) {
	c, rec, _ := newTestController(t, DefaultConfig())
	if err := c.Tick(context.Background(), true, nil); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(rec.captures) != 0 {
		t.Errorf("got %d captures, want 0", len(rec.captures))
	}
	if !c.Episode().Open {
		t.Error("episode should stay open")
	}
}

func TestController_Status(t *testing.T) {
	c, _, clock := newTestController(t, DefaultConfig())
	if err := c.Tick(context.Background(), true, testFrame); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	clock.Advance(4 * time.Second)

	st := c.Status()
	if !st.Detected || !st.Episode.Open || !st.DebounceActive {
		t.Errorf("Status() = %+v", st)
	}
	if st.DebounceLeft != 6*time.Second {
		t.Errorf("DebounceLeft = %v, want 6s", st.DebounceLeft)
	}
	if st.Episode.UploadsSent != 1 {
		t.Errorf("UploadsSent = %d, want 1", st.Episode.UploadsSent)
	}
}

func TestEpisode_KeyClosed(t *testing.T) {
	if got := (Episode{StartedAt: time.Now()}).Key(); got != "" {
		t.Errorf("closed episode Key() = %q, want empty", got)
	}
}

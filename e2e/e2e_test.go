package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/agni/internal/app"
	"github.com/ayusman/agni/internal/capture"
	"github.com/ayusman/agni/internal/capture/capturetest"
	"github.com/ayusman/agni/internal/detector"
	"github.com/ayusman/agni/internal/device"
	"github.com/ayusman/agni/internal/dispatch"
	"github.com/ayusman/agni/internal/hazard"
	"github.com/ayusman/agni/internal/notify"
	"github.com/ayusman/agni/internal/objectstore"
	"github.com/ayusman/agni/internal/plugin"
	"github.com/ayusman/agni/internal/server"
	"github.com/ayusman/agni/internal/statestore"
	"github.com/ayusman/agni/internal/store"
)

const deviceID = "cam-1"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// steppedCamera moves the clock one second per frame.
type steppedCamera struct {
	capture.Camera
	clock *clock
}

func (c steppedCamera) ReadFrame() (*gocv.Mat, error) {
	c.clock.mu.Lock()
	c.clock.now = c.clock.now.Add(time.Second)
	c.clock.mu.Unlock()
	return c.Camera.ReadFrame()
}

const hookScript = `#!/bin/sh
cat >> events.log
echo >> events.log
echo '{"success": true}'
`

func writeHook(t *testing.T, hooksDir string) string {
	t.Helper()

	dir := filepath.Join(hooksDir, "recorder")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}
	manifest := `{"name": "recorder", "version": "1.0.0", "executable": "hook.sh", "events": ["alert", "state", "capture"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "hook.sh"), []byte(hookScript), 0755); err != nil {
		t.Fatalf("failed to write hook: %v", err)
	}
	return filepath.Join(dir, "events.log")
}

func readHookLog(t *testing.T, path string) []plugin.Request {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open hook log: %v", err)
	}
	defer f.Close()

	var reqs []plugin.Request
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var req plugin.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			t.Fatalf("bad hook log line %q: %v", line, err)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func TestE2E_HazardEpisode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks need a unix shell")
	}

	tmpDir := t.TempDir()
	ctx := context.Background()

	// Remote state with one owner holding a registration token.
	state := statestore.NewFakeStore()
	if err := state.Set(ctx, "devices/"+deviceID, map[string]any{
		"name":  "Garage",
		"users": map[string]any{"owner": true},
	}); err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}
	if err := state.Set(ctx, "users/owner/token", "tok-owner"); err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}

	s, err := store.New(filepath.Join(tmpDir, "agni.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	reg, err := device.New(state, device.Config{ID: deviceID})
	if err != nil {
		t.Fatalf("device.New() error = %v", err)
	}
	uploader, err := objectstore.NewDir(filepath.Join(tmpDir, "media"), "http://garage.local/media")
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}

	hooksDir := filepath.Join(tmpDir, "hooks")
	hookLog := writeHook(t, hooksDir)
	manager := plugin.NewManager(hooksDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	hooks := plugin.NewRunner(manager, plugin.NewExecutor(5*time.Second))

	push := &notify.Recorder{}
	queue := dispatch.New(dispatch.Config{Workers: 2, QueueSize: 32, Timeout: 10 * time.Second}, nil)

	// Fire in the first three of fifteen frames, one second apart.
	frames := capturetest.Sequence(15, func(i int) bool { return i < 3 })
	defer capturetest.CloseAll(frames)
	fire := []detector.Detection{detector.FireDetection()}
	det := detector.NewMockDetector()
	det.SetSequence([][]detector.Detection{fire, fire, fire})

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	application, err := app.New(app.Config{
		Hazard:     hazard.Config{Debounce: 10 * time.Second, UploadCooldown: 2 * time.Second, MaxUploads: 3},
		Confidence: 0.5,
		FPS:        1000,
		Clock:      clk.Now,
	}, app.Deps{
		Camera:   steppedCamera{Camera: capture.NewMockCamera(frames, false), clock: clk},
		Detector: det,
		Device:   reg,
		Queue:    queue,
		Store:    s,
		Uploader: uploader,
		Notifier: notify.Multi{push, hooks.Notifier()},
		Hooks:    hooks,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	srv := server.New(server.Config{App: application, EventsPerSecond: 100})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Events().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := application.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := queue.Close(closeCtx); err != nil {
		t.Fatalf("queue.Close() error = %v", err)
	}

	t.Run("EventFeed", func(t *testing.T) {
		counts := map[string]int{}
		for i := 0; i < 6; i++ {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("read event %d: %v", i, err)
			}
			var e app.Event
			if err := json.Unmarshal(msg, &e); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			counts[e.Type]++
		}
		if counts[app.EventState] != 2 || counts[app.EventAlert] != 1 || counts[app.EventCapture] != 3 {
			t.Errorf("event counts = %v, want 2 state, 1 alert, 3 capture", counts)
		}
	})

	t.Run("Notification", func(t *testing.T) {
		msgs := push.Messages()
		if len(msgs) != 1 {
			t.Fatalf("notifications = %d, want 1", len(msgs))
		}
		if msgs[0].Token != "tok-owner" || msgs[0].Title != "NOTIFICATION OF Garage" {
			t.Errorf("notification = %+v", msgs[0])
		}
	})

	t.Run("RemoteState", func(t *testing.T) {
		detect, err := state.Get(ctx, "devices/"+deviceID+"/detect")
		if err != nil || detect != false {
			t.Errorf("detect = %v (%v), want false", detect, err)
		}
		online, err := state.Get(ctx, "devices/"+deviceID+"/online")
		if err != nil || online != false {
			t.Errorf("online = %v (%v), want false", online, err)
		}
		captured, err := state.Get(ctx, "devices/"+deviceID+"/captured/2024-05-01/12:00:01")
		if err != nil {
			t.Fatalf("captured record missing: %v", err)
		}
		if m, ok := captured.(map[string]any); !ok || len(m) != 3 {
			t.Errorf("captured = %v, want 3 entries", captured)
		}
	})

	t.Run("CapturesAPI", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/captures?episode=2024-05-01/12:00:01")
		if err != nil {
			t.Fatalf("GET /api/captures error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var body struct {
			Captures []store.Capture `json:"captures"`
			Total    int             `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Total != 3 || len(body.Captures) != 3 {
			t.Fatalf("captures = %d (total %d), want 3", len(body.Captures), body.Total)
		}
		for i, c := range body.Captures {
			if c.UploadIndex != i+1 || !strings.HasPrefix(c.URL, "http://garage.local/media/captured/cam-1/") {
				t.Errorf("capture %d = %+v", i, c)
			}
			if _, err := os.Stat(filepath.Join(uploader.Root(), filepath.FromSlash(c.ObjectKey))); err != nil {
				t.Errorf("uploaded object %s missing: %v", c.ObjectKey, err)
			}
		}
	})

	t.Run("StatusAPI", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/status")
		if err != nil {
			t.Fatalf("GET /api/status error = %v", err)
		}
		defer resp.Body.Close()

		var status struct {
			DeviceName string `json:"device_name"`
			Running    bool   `json:"running"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.DeviceName != "Garage" || status.Running {
			t.Errorf("status = %+v, want Garage and stopped", status)
		}
	})

	t.Run("Hooks", func(t *testing.T) {
		counts := map[string]int{}
		for _, req := range readHookLog(t, hookLog) {
			if req.DeviceID != deviceID {
				t.Errorf("hook request for device %q", req.DeviceID)
			}
			counts[req.Event]++
		}
		if counts[plugin.EventAlert] != 1 || counts[plugin.EventState] != 2 || counts[plugin.EventCapture] != 3 {
			t.Errorf("hook events = %v, want 1 alert, 2 state, 3 capture", counts)
		}
	})
}

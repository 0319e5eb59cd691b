// Package app runs the Agni detection loop: it reads frames, detects fire
// and smoke, drives the hazard controller and hands side effects to the
// background queue.
package app

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/agni/internal/alarm"
	"github.com/ayusman/agni/internal/capture"
	"github.com/ayusman/agni/internal/detector"
	"github.com/ayusman/agni/internal/device"
	"github.com/ayusman/agni/internal/dispatch"
	"github.com/ayusman/agni/internal/hazard"
	"github.com/ayusman/agni/internal/log"
	"github.com/ayusman/agni/internal/metrics"
	"github.com/ayusman/agni/internal/notify"
	"github.com/ayusman/agni/internal/objectstore"
	"github.com/ayusman/agni/internal/plugin"
	"github.com/ayusman/agni/internal/store"
)

// Config holds configuration options for the application.
type Config struct {
	Hazard hazard.Config
	// Confidence is the initial detection threshold; a stored setting wins.
	Confidence float64
	// FPS paces the loop.
	FPS int
	// Display shows annotated frames in a window; 'q' quits.
	Display bool
	// SoundOnAlert also sounds the alarm when an alert is raised.
	SoundOnAlert bool
	// Clock replaces time.Now, for tests.
	Clock func() time.Time
}

// Deps are the collaborators the loop drives. Camera, Detector, Device and
// Queue are required; the rest may be nil.
type Deps struct {
	Camera   capture.Camera
	Detector detector.Detector
	Device   *device.Registry
	Queue    *dispatch.Queue

	Store    *store.Store
	Uploader objectstore.Uploader
	Notifier notify.Notifier
	Hooks    *plugin.Runner
	Alarm    alarm.Alarm
	Motion   *capture.MotionGate
	Metrics  *metrics.Metrics
}

// Status is the application state exposed to the API and the tray.
type Status struct {
	hazard.Status
	DeviceID   string  `json:"device_id"`
	DeviceName string  `json:"device_name"`
	Enabled    bool    `json:"enabled"`
	Confidence float64 `json:"confidence"`
	Running    bool    `json:"running"`
}

// App is the main application that orchestrates detection and alerting.
type App struct {
	config Config
	deps   Deps
	now    func() time.Time
	events broadcaster

	mu         sync.RWMutex
	enabled    bool
	confidence float64
	running    bool
	status     hazard.Status
}

// New validates deps and loads the persisted settings.
func New(config Config, deps Deps) (*App, error) {
	if deps.Camera == nil || deps.Detector == nil || deps.Device == nil || deps.Queue == nil {
		return nil, errors.New("app: camera, detector, device and queue are required")
	}
	if err := config.Hazard.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}
	if deps.Alarm == nil {
		deps.Alarm = alarm.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	deps.Metrics.WatchQueue(deps.Queue)

	a := &App{
		config:     config,
		deps:       deps,
		now:        config.Clock,
		enabled:    true,
		confidence: config.Confidence,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if deps.Store != nil {
		settings := deps.Store.Settings()
		a.enabled = settings.Bool(store.SettingEnabled, true)
		a.confidence = settings.Float(store.SettingConfidence, config.Confidence)
	}
	return a, nil
}

// SetEnabled arms or disarms detection. A disarmed appliance keeps reading
// frames but treats every frame as clear.
func (a *App) SetEnabled(enabled bool) error {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	log.Info(log.Fields{"enabled": enabled}, "detection toggled")
	if a.deps.Store == nil {
		return nil
	}
	return a.deps.Store.Settings().Set(store.SettingEnabled, strconv.FormatBool(enabled))
}

// IsEnabled returns whether detection is currently armed.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetConfidence changes the detection threshold.
func (a *App) SetConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", c)
	}
	a.mu.Lock()
	a.confidence = c
	a.mu.Unlock()

	if a.deps.Store == nil {
		return nil
	}
	return a.deps.Store.Settings().Set(store.SettingConfidence, strconv.FormatFloat(c, 'f', -1, 64))
}

// Confidence returns the current detection threshold.
func (a *App) Confidence() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.confidence
}

// Status returns a snapshot taken after the latest tick.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		Status:     a.status,
		DeviceID:   a.deps.Device.ID(),
		DeviceName: a.deps.Device.Name(),
		Enabled:    a.enabled,
		Confidence: a.confidence,
		Running:    a.running,
	}
}

// OnEvent registers fn for state, alert and capture events. fn must not block.
func (a *App) OnEvent(fn func(Event)) {
	a.events.onEvent(fn)
}

// OnFrame registers fn for annotated JPEG preview frames. Frames are only
// encoded while at least one listener exists. fn must not block.
func (a *App) OnFrame(fn func([]byte)) {
	a.events.onFrame(fn)
}

// Metrics returns the metrics the loop reports to.
func (a *App) Metrics() *metrics.Metrics {
	return a.deps.Metrics
}

// Store returns the local store, which may be nil.
func (a *App) Store() *store.Store {
	return a.deps.Store
}

// Device returns the device registry.
func (a *App) Device() *device.Registry {
	return a.deps.Device
}

func (a *App) setRunning(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = v
}

func (a *App) setStatus(s hazard.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

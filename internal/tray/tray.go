// Package tray provides a system tray interface for the Agni detection appliance.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/agni/internal/app"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle    func(enabled bool)
	onDashboard func()
	onQuit      func()
	enabled     bool
	hazard      bool
	lastEvent   string
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuState     *systray.MenuItem
	menuLastEvent *systray.MenuItem
}

// New creates a new Tray. enabled mirrors the persisted detection switch.
func New(enabled bool) *Tray {
	return &Tray{
		enabled:   enabled,
		lastEvent: "none",
	}
}

// OnToggle sets the callback function to be called when detection is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Agni")
	systray.SetTooltip("Agni fire and smoke detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Arm or disarm detection")
	systray.AddSeparator()

	t.menuState = systray.AddMenuItem(stateTitle(t.hazard), "Current hazard state")
	t.menuState.Disable()
	t.menuLastEvent = systray.AddMenuItem("Last: "+t.lastEvent, "Last detection event")
	t.menuLastEvent.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Agni")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// HandleEvent updates the menu from an app event. It is safe to register
// with app.OnEvent and to call before the tray is ready.
func (t *Tray) HandleEvent(e app.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Type == app.EventState && e.Detected != nil {
		t.hazard = *e.Detected
		if t.menuState != nil {
			t.menuState.SetTitle(stateTitle(t.hazard))
		}
	}
	t.lastEvent = EventLabel(e)
	if t.menuLastEvent != nil {
		t.menuLastEvent.SetTitle("Last: " + t.lastEvent)
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Hazard reports whether the last state event was a detection.
func (t *Tray) Hazard() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hazard
}

// LastEvent returns the label shown for the last event.
func (t *Tray) LastEvent() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastEvent
}

// EventLabel renders e for the menu.
func EventLabel(e app.Event) string {
	at := e.At.Format("15:04:05")
	switch e.Type {
	case app.EventState:
		if e.Detected != nil && *e.Detected {
			return "hazard detected " + at
		}
		return "all clear " + at
	case app.EventAlert:
		return "alert sent " + at
	case app.EventCapture:
		if e.Error != "" {
			return fmt.Sprintf("capture #%d failed %s", e.Index, at)
		}
		return fmt.Sprintf("capture #%d %s", e.Index, at)
	default:
		return e.Type + " " + at
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Armed"
	}
	return "○ Disarmed"
}

func stateTitle(hazard bool) string {
	if hazard {
		return "Status: HAZARD"
	}
	return "Status: clear"
}

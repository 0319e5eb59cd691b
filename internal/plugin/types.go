// Package plugin discovers and runs hook executables that react to hazard
// events, such as switching a relay or calling a webhook.
//
// Each hook lives in its own subdirectory of the hooks directory with a
// plugin.json manifest. The executor writes one JSON Request to the hook's
// stdin and reads one JSON Response from its stdout.
package plugin

import (
	"encoding/json"
	"time"
)

// Events a hook can subscribe to.
const (
	EventAlert   = "alert"
	EventCapture = "capture"
	EventState   = "state"
)

// Manifest describes a hook's metadata and subscriptions.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Subscribes reports whether the manifest lists event.
func (m Manifest) Subscribes(event string) bool {
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request represents a request sent to a hook.
type Request struct {
	Event      string          `json:"event"`
	DeviceID   string          `json:"device_id"`
	DeviceName string          `json:"device_name"`
	Episode    string          `json:"episode,omitempty"`
	Detected   *bool           `json:"detected,omitempty"`
	Index      int             `json:"index,omitempty"`
	URL        string          `json:"url,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response represents the response from a hook.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered hook with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

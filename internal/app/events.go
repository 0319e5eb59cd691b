package app

import (
	"sync"
	"time"
)

// Event kinds delivered to listeners.
const (
	EventState   = "state"
	EventAlert   = "alert"
	EventCapture = "capture"
)

// Event is a hazard state change or side effect, as seen by observers such
// as the websocket feed and the tray.
type Event struct {
	Type     string    `json:"type"`
	DeviceID string    `json:"device_id"`
	Detected *bool     `json:"detected,omitempty"`
	Episode  string    `json:"episode,omitempty"`
	Index    int       `json:"index,omitempty"`
	URL      string    `json:"url,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// broadcaster fans events and preview frames out to listeners. Listeners are
// called synchronously and must not block.
type broadcaster struct {
	mu     sync.RWMutex
	events []func(Event)
	frames []func([]byte)
}

func (b *broadcaster) onEvent(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, fn)
}

func (b *broadcaster) onFrame(fn func([]byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, fn)
}

func (b *broadcaster) emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.events {
		fn(e)
	}
}

func (b *broadcaster) wantsFrames() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames) > 0
}

func (b *broadcaster) frame(jpeg []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.frames {
		fn(jpeg)
	}
}

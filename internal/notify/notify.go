// Package notify delivers hazard alerts to people and systems.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoRecipient is returned when a notifier has nobody to deliver to.
var ErrNoRecipient = errors.New("notify: no recipient")

// Message is one hazard alert.
type Message struct {
	// Token is the push registration token; only FCM uses it.
	Token      string
	Title      string
	Body       string
	DeviceID   string
	DeviceName string
	Episode    string
	At         time.Time
}

// Data returns the key/value payload carried by push messages.
func (m Message) Data() map[string]string {
	return map[string]string{
		"title":       m.Title,
		"body":        m.Body,
		"device_id":   m.DeviceID,
		"device_name": m.DeviceName,
	}
}

// Notifier sends a Message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, msg Message) error

func (f Func) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Multi sends to every notifier concurrently and joins their errors.
// Notifiers without a recipient are ignored unless none had one.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	if len(m) == 0 {
		return ErrNoRecipient
	}

	errs := make([]error, len(m))
	var wg sync.WaitGroup
	for i, n := range m {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			if err := n.Send(ctx, msg); err != nil {
				errs[i] = fmt.Errorf("%T: %w", n, err)
			}
		}(i, n)
	}
	wg.Wait()

	var failed []error
	skipped := 0
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, ErrNoRecipient):
			skipped++
		default:
			failed = append(failed, err)
		}
	}
	if skipped == len(m) {
		return ErrNoRecipient
	}
	return errors.Join(failed...)
}

// Recorder is a Notifier that keeps every message, for tests.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

// SetError makes Send fail with err after recording.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Package hazard turns a per-frame "hazard present" signal into debounced
// state publishes, alerts and a bounded burst of evidence captures.
//
// A Controller is driven by a single polling loop. It owns two timers: the
// debounce window, during which the signal is not evaluated at all, and the
// upload cooldown, which spaces captures within an episode. Side effects that
// may be slow (notifications and uploads) are handed to a Sink, which must
// return immediately. The state publish is the only blocking call.
package hazard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/agni/internal/timer"
)

// EpisodeLayout formats an episode start time. The slash splits the date and
// time into two path segments of the capture tree.
const EpisodeLayout = "2006-01-02/15:04:05"

// Defaults used by the appliance.
const (
	DefaultDebounce       = 10 * time.Second
	DefaultUploadCooldown = 2 * time.Second
	DefaultMaxUploads     = 3
)

// Config holds the controller timings.
type Config struct {
	Debounce       time.Duration `yaml:"debounce"`
	UploadCooldown time.Duration `yaml:"upload_cooldown"`
	MaxUploads     int           `yaml:"max_uploads"`
}

// DefaultConfig returns the appliance timings.
func DefaultConfig() Config {
	return Config{
		Debounce:       DefaultDebounce,
		UploadCooldown: DefaultUploadCooldown,
		MaxUploads:     DefaultMaxUploads,
	}
}

// Validate reports a configuration the controller cannot run with.
func (c Config) Validate() error {
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %v", c.Debounce)
	}
	if c.UploadCooldown <= 0 {
		return fmt.Errorf("upload cooldown must be positive, got %v", c.UploadCooldown)
	}
	if c.MaxUploads < 0 {
		return fmt.Errorf("max uploads must not be negative, got %d", c.MaxUploads)
	}
	return nil
}

// Publisher writes the confirmed detection state to the remote store.
type Publisher interface {
	PublishDetect(ctx context.Context, detected bool) error
}

// Alert is emitted when a hazard is confirmed.
type Alert struct {
	Episode string
	At      time.Time
}

// Capture is one evidence frame of an episode. Index starts at 1.
type Capture struct {
	Episode string
	Index   int
	JPEG    []byte
	At      time.Time
}

// Sink receives fire-and-forget side effects. Implementations must not block.
type Sink interface {
	Alert(Alert)
	Capture(Capture)
}

// Frame is the current camera frame, encoded only when a capture is due.
type Frame interface {
	JPEG() ([]byte, error)
}

// Episode is the upload bookkeeping for one confirmed hazard.
type Episode struct {
	Open        bool      `json:"open"`
	StartedAt   time.Time `json:"started_at"`
	UploadsSent int       `json:"uploads_sent"`
}

// Key returns the episode timestamp used in capture paths, or "" when closed.
func (e Episode) Key() string {
	if !e.Open {
		return ""
	}
	return e.StartedAt.Format(EpisodeLayout)
}

// Status is a point-in-time copy of the controller state.
type Status struct {
	Detected        bool          `json:"detected"`
	Episode         Episode       `json:"episode"`
	DebounceActive  bool          `json:"debounce_active"`
	DebounceLeft    time.Duration `json:"debounce_left"`
	CooldownActive  bool          `json:"cooldown_active"`
	LastPublishedAt time.Time     `json:"last_published_at"`
}

// Controller is the detection state machine plus the upload gate.
// It is not safe for concurrent use.
type Controller struct {
	cfg  Config
	pub  Publisher
	sink Sink
	now  func() time.Time

	debounce *timer.Timer
	cooldown *timer.Timer

	detected      bool
	episode       Episode
	lastPublished time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for the controller and both timers.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithInitialState seeds the mirrored state, normally from the remote flag.
func WithInitialState(detected bool) Option {
	return func(c *Controller) {
		c.detected = detected
	}
}

// NewController creates a controller. Both timers start inactive.
func NewController(cfg Config, pub Publisher, sink Sink, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, errors.New("hazard: nil publisher")
	}
	if sink == nil {
		return nil, errors.New("hazard: nil sink")
	}

	c := &Controller{
		cfg:  cfg,
		pub:  pub,
		sink: sink,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.debounce = timer.New(cfg.Debounce, c.now)
	c.cooldown = timer.New(cfg.UploadCooldown, c.now)
	return c, nil
}

// Tick advances the controller by one frame. The timers are polled first,
// then the signal is evaluated, then the upload gate runs against frame.
//
// A publish or encode error is returned after all local bookkeeping for the
// tick is done; the controller stays consistent and the caller may continue.
func (c *Controller) Tick(ctx context.Context, signal bool, frame Frame) error {
	c.debounce.Update()
	c.cooldown.Update()

	var errs []error
	if !c.debounce.Active() {
		if err := c.evaluate(ctx, signal); err != nil {
			errs = append(errs, err)
		}
	}
	if c.episode.Open {
		if err := c.gate(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) evaluate(ctx context.Context, signal bool) error {
	// A held hazard re-enters here every debounce window and re-alerts.
	if !signal && c.detected == signal {
		return nil
	}

	c.debounce.Activate()
	c.detected = signal
	c.lastPublished = c.now()
	err := c.pub.PublishDetect(ctx, signal)
	if err != nil {
		err = fmt.Errorf("publish detect=%t: %w", signal, err)
	}

	if signal {
		c.episode = Episode{Open: true, StartedAt: c.now()}
		c.cooldown.Deactivate()
		c.sink.Alert(Alert{Episode: c.episode.Key(), At: c.episode.StartedAt})
	}
	return err
}

func (c *Controller) gate(frame Frame) error {
	if c.episode.UploadsSent >= c.cfg.MaxUploads {
		c.closeEpisode()
		return nil
	}
	if c.cooldown.Active() || frame == nil {
		return nil
	}

	data, err := frame.JPEG()
	if err != nil {
		return fmt.Errorf("encode capture %d: %w", c.episode.UploadsSent+1, err)
	}

	c.episode.UploadsSent++
	c.cooldown.Activate()
	c.sink.Capture(Capture{
		Episode: c.episode.Key(),
		Index:   c.episode.UploadsSent,
		JPEG:    data,
		At:      c.now(),
	})
	return nil
}

func (c *Controller) closeEpisode() {
	c.episode = Episode{}
	c.cooldown.Deactivate()
}

// Detected returns the mirrored remote state.
func (c *Controller) Detected() bool {
	return c.detected
}

// Episode returns the current episode bookkeeping.
func (c *Controller) Episode() Episode {
	return c.episode
}

// Status returns a snapshot for observers.
func (c *Controller) Status() Status {
	return Status{
		Detected:        c.detected,
		Episode:         c.episode,
		DebounceActive:  c.debounce.Active(),
		DebounceLeft:    c.debounce.Remaining(),
		CooldownActive:  c.cooldown.Active(),
		LastPublishedAt: c.lastPublished,
	}
}

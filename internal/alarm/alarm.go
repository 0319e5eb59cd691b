// Package alarm sounds a local alarm when a hazard is visible.
//
// An alarm plays at most once at a time: Sound on a busy alarm does nothing,
// so callers may invoke it on every frame.
package alarm

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/ayusman/agni/internal/log"
)

// Alarm is a local audible or visible warning.
type Alarm interface {
	// Sound starts the alarm unless it is already playing and reports
	// whether it started.
	Sound() bool
	Busy() bool
	Close() error
}

// Config selects and configures the alarm backend.
type Config struct {
	// Kind is "exec", "gpio" or "" for none.
	Kind string `yaml:"kind"`
	// Command is the player for "exec", e.g. ["aplay", "-q", "alarm.wav"].
	Command []string   `yaml:"command"`
	GPIO    GPIOConfig `yaml:"gpio"`
	// OnAlert also sounds the alarm when a notification goes out, not only
	// while a hazard is on screen.
	OnAlert bool `yaml:"on_alert"`
}

// New builds the configured alarm. An empty Kind returns Nop.
func New(cfg Config) (Alarm, error) {
	switch cfg.Kind {
	case "":
		return Nop{}, nil
	case "exec":
		return NewExec(cfg.Command)
	case "gpio":
		return NewGPIO(cfg.GPIO)
	default:
		return nil, errors.New("alarm: unknown kind " + cfg.Kind)
	}
}

// Nop never sounds.
type Nop struct{}

func (Nop) Sound() bool  { return false }
func (Nop) Busy() bool   { return false }
func (Nop) Close() error { return nil }

// Exec plays the alarm by running an external command to completion.
type Exec struct {
	command []string
	busy    atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExec creates an exec alarm. The command must not be empty.
func NewExec(command []string) (*Exec, error) {
	if len(command) == 0 {
		return nil, errors.New("alarm: empty command")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Exec{command: command, ctx: ctx, cancel: cancel}, nil
}

func (e *Exec) Sound() bool {
	if !e.busy.CompareAndSwap(false, true) {
		return false
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.busy.Store(false)

		cmd := exec.CommandContext(e.ctx, e.command[0], e.command[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil && e.ctx.Err() == nil {
			log.Warn(log.Fields{"command": e.command[0], "error": err, "output": string(out)}, "alarm command failed")
		}
	}()
	return true
}

func (e *Exec) Busy() bool {
	return e.busy.Load()
}

// Wait blocks until the current playback ends.
func (e *Exec) Wait() {
	e.wg.Wait()
}

// Close stops any playback and waits for it.
func (e *Exec) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

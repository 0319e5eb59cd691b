//go:build linux

package alarm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/ayusman/agni/internal/log"
)

// GPIO holds an output line and drives it high for the configured duration.
type GPIO struct {
	cfg  GPIOConfig
	line *gpiocdev.Line
	busy atomic.Bool

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewGPIO requests the line as an inactive output.
func NewGPIO(cfg GPIOConfig) (Alarm, error) {
	cfg = cfg.withDefaults()

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("agni-alarm")}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", cfg.Chip, cfg.Line, err)
	}

	return &GPIO{cfg: cfg, line: line, stop: make(chan struct{})}, nil
}

func (g *GPIO) Sound() bool {
	if !g.busy.CompareAndSwap(false, true) {
		return false
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.busy.Store(false)

		if err := g.line.SetValue(1); err != nil {
			log.Warn(log.Fields{"line": g.cfg.Line, "error": err}, "alarm line set failed")
			return
		}
		select {
		case <-time.After(g.cfg.Duration):
		case <-g.stop:
		}
		if err := g.line.SetValue(0); err != nil {
			log.Warn(log.Fields{"line": g.cfg.Line, "error": err}, "alarm line reset failed")
		}
	}()
	return true
}

func (g *GPIO) Busy() bool {
	return g.busy.Load()
}

// Close silences the alarm and reconfigures the line as an input.
func (g *GPIO) Close() error {
	g.once.Do(func() { close(g.stop) })
	g.wg.Wait()

	var errs []error
	if err := g.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := g.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/agni/internal/log"
	"github.com/ayusman/agni/internal/notify"
)

// Runner fans hazard events out to subscribed hooks.
type Runner struct {
	manager  *Manager
	executor *Executor
}

// NewRunner creates a Runner over discovered hooks.
func NewRunner(manager *Manager, executor *Executor) *Runner {
	return &Runner{manager: manager, executor: executor}
}

// Run executes every hook subscribed to req.Event in name order. Failures
// are collected; one failing hook does not stop the others.
func (r *Runner) Run(ctx context.Context, req Request) error {
	var errs []error
	for _, p := range r.manager.Subscribers(req.Event) {
		hookReq := req
		resp, err := r.executor.Execute(ctx, p, &hookReq)
		if err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", p.Manifest.Name, err))
			continue
		}
		if !resp.Success {
			errs = append(errs, fmt.Errorf("hook %s: %s", p.Manifest.Name, resp.Error))
			continue
		}
		log.Debug(log.Fields{"hook": p.Manifest.Name, "event": req.Event}, "hook ran")
	}
	return errors.Join(errs...)
}

// Notifier adapts the alert event to notify.Notifier.
func (r *Runner) Notifier() notify.Notifier {
	return notify.Func(func(ctx context.Context, msg notify.Message) error {
		if len(r.manager.Subscribers(EventAlert)) == 0 {
			return notify.ErrNoRecipient
		}
		at := msg.At
		if at.IsZero() {
			at = time.Now()
		}
		return r.Run(ctx, Request{
			Event:      EventAlert,
			DeviceID:   msg.DeviceID,
			DeviceName: msg.DeviceName,
			Episode:    msg.Episode,
			Timestamp:  at,
		})
	})
}

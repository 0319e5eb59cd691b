package app

import (
	"context"
	"errors"
	"fmt"

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

// publisher writes the detect flag and tells observers about it.
type publisher struct {
	app *App
}

func (p publisher) PublishDetect(ctx context.Context, detected bool) error {
	a := p.app
	err := a.deps.Device.PublishDetect(ctx, detected)
	a.deps.Metrics.ObservePublish(detected, err)

	e := Event{Type: EventState, DeviceID: a.deps.Device.ID(), Detected: &detected, At: a.now()}
	if err != nil {
		e.Error = err.Error()
	}
	a.events.emit(e)

	if a.deps.Hooks != nil {
		a.submit("hook:state", func(ctx context.Context) error {
			return a.deps.Hooks.Run(ctx, plugin.Request{
				Event:      plugin.EventState,
				DeviceID:   a.deps.Device.ID(),
				DeviceName: a.deps.Device.Name(),
				Detected:   &detected,
				Timestamp:  e.At,
			})
		})
	}
	return err
}

// sink turns controller side effects into queued background tasks.
type sink struct {
	app *App
}

var _ hazard.Sink = sink{}

func (s sink) Alert(alert hazard.Alert) {
	a := s.app
	a.events.emit(Event{Type: EventAlert, DeviceID: a.deps.Device.ID(), Episode: alert.Episode, At: alert.At})

	if a.config.SoundOnAlert {
		a.deps.Alarm.Sound()
	}
	if a.deps.Notifier == nil {
		a.deps.Metrics.ObserveNotification(metrics.ResultSkipped)
		return
	}
	a.submit("notify:"+alert.Episode, func(ctx context.Context) error {
		return a.notify(ctx, alert)
	})
}

func (a *App) notify(ctx context.Context, alert hazard.Alert) error {
	reg := a.deps.Device

	token, err := reg.OwnerToken(ctx)
	if err != nil && !errors.Is(err, device.ErrNoOwner) {
		log.Warn(log.Fields{"device": reg.ID(), "error": err}, "owner token lookup failed")
	}

	err = a.deps.Notifier.Send(ctx, notify.Message{
		Token:      token,
		Title:      reg.Title(),
		Body:       device.AlertBody,
		DeviceID:   reg.ID(),
		DeviceName: reg.Name(),
		Episode:    alert.Episode,
		At:         alert.At,
	})
	switch {
	case errors.Is(err, notify.ErrNoRecipient):
		a.deps.Metrics.ObserveNotification(metrics.ResultSkipped)
		log.Debug(log.Fields{"episode": alert.Episode}, "no alert recipient")
		return nil
	case err != nil:
		a.deps.Metrics.ObserveNotification(metrics.ResultError)
		return err
	}
	a.deps.Metrics.ObserveNotification(metrics.ResultOK)
	log.Info(log.Fields{"episode": alert.Episode}, "alert sent")
	return nil
}

func (s sink) Capture(c hazard.Capture) {
	a := s.app
	if a.deps.Uploader == nil {
		a.deps.Metrics.ObserveUpload(metrics.ResultSkipped)
		return
	}
	a.submit(fmt.Sprintf("upload:%s#%d", c.Episode, c.Index), func(ctx context.Context) error {
		return a.upload(ctx, c)
	})
}

func (a *App) upload(ctx context.Context, c hazard.Capture) error {
	reg := a.deps.Device
	key := reg.ObjectKey(c.Episode, c.Index)

	url, err := a.deps.Uploader.Upload(ctx, key, c.JPEG, objectstore.ContentTypeJPEG)
	if err != nil {
		a.deps.Metrics.ObserveUpload(metrics.ResultError)
		return fmt.Errorf("upload %s: %w", key, err)
	}
	a.deps.Metrics.ObserveUpload(metrics.ResultOK)

	var errs []error
	if err := reg.RecordCapture(ctx, c.Episode, c.Index, url); err != nil {
		errs = append(errs, fmt.Errorf("record capture url: %w", err))
	}
	if a.deps.Store != nil {
		rec := &store.Capture{
			DeviceID:    reg.ID(),
			Episode:     c.Episode,
			UploadIndex: c.Index,
			ObjectKey:   key,
			URL:         url,
			SizeBytes:   len(c.JPEG),
			CreatedAt:   c.At,
		}
		if err := a.deps.Store.Captures().Create(rec); err != nil {
			errs = append(errs, fmt.Errorf("log capture: %w", err))
		}
	}

	a.events.emit(Event{Type: EventCapture, DeviceID: reg.ID(), Episode: c.Episode, Index: c.Index, URL: url, At: c.At})
	log.Info(log.Fields{"key": key, "url": url, "bytes": len(c.JPEG)}, "capture uploaded")

	if a.deps.Hooks != nil {
		if err := a.deps.Hooks.Run(ctx, plugin.Request{
			Event:      plugin.EventCapture,
			DeviceID:   reg.ID(),
			DeviceName: reg.Name(),
			Episode:    c.Episode,
			Index:      c.Index,
			URL:        url,
			Timestamp:  c.At,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// submit queues fn. A full or closed queue drops the task; Submit logs it.
func (a *App) submit(name string, fn func(ctx context.Context) error) {
	if err := a.deps.Queue.Submit(dispatch.Task{Name: name, Run: fn}); err != nil && !errors.Is(err, dispatch.ErrQueueFull) {
		log.Warn(log.Fields{"task": name, "error": err}, "task not queued")
	}
}

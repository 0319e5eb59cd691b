package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/agni/internal/capture"
	"github.com/ayusman/agni/internal/detector"
	"github.com/ayusman/agni/internal/hazard"
	"github.com/ayusman/agni/internal/log"
)

// WindowTitle names the preview window.
const WindowTitle = "Agni Detection"

// presenceTimeout bounds the final online=false write, which runs after the
// loop context may already be cancelled.
const presenceTimeout = 5 * time.Second

// Run registers the device, opens the camera and processes frames until ctx
// ends, the source runs out, 'q' is pressed in the preview window or the
// camera fails. Only the camera failure is returned as an error. The device
// is marked offline on every exit path.
func (a *App) Run(ctx context.Context) error {
	reg := a.deps.Device

	if err := reg.Bootstrap(ctx); err != nil {
		log.Warn(log.Fields{"device": reg.ID(), "error": err}, "device bootstrap failed, continuing")
	}
	initial, err := reg.InitialDetect(ctx)
	if err != nil {
		log.Warn(log.Fields{"device": reg.ID(), "error": err}, "could not read detect flag, assuming clear")
	}

	controller, err := hazard.NewController(a.config.Hazard, publisher{app: a}, sink{app: a},
		hazard.WithClock(a.now), hazard.WithInitialState(initial))
	if err != nil {
		return err
	}
	a.setStatus(controller.Status())

	if err := reg.SetOnline(ctx, true); err != nil {
		log.Warn(log.Fields{"device": reg.ID(), "error": err}, "failed to publish online")
	}
	defer func() {
		offCtx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := reg.SetOnline(offCtx, false); err != nil {
			log.Warn(log.Fields{"device": reg.ID(), "error": err}, "failed to publish offline")
		}
	}()

	if err := a.deps.Camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer a.deps.Camera.Close()
	a.deps.Camera.SetFPS(a.config.FPS)

	var window *gocv.Window
	if a.config.Display {
		window = gocv.NewWindow(WindowTitle)
		defer window.Close()
	}

	a.setRunning(true)
	defer a.setRunning(false)
	log.Info(log.Fields{"device": reg.ID(), "fps": a.config.FPS, "detected": initial}, "detection loop started")

	ticker := time.NewTicker(time.Second / time.Duration(a.config.FPS))
	defer ticker.Stop()

	var last []detector.Detection
	for {
		select {
		case <-ctx.Done():
			log.Info(nil, "detection loop stopped")
			return nil
		case <-ticker.C:
		}

		mat, err := a.deps.Camera.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			log.Info(nil, "source exhausted, stopping")
			return nil
		}
		if err != nil {
			a.deps.Metrics.ReadErrors.Add(1)
			return fmt.Errorf("read frame: %w", err)
		}
		a.deps.Metrics.FramesRead.Add(1)

		last = a.processFrame(ctx, controller, mat, last)

		quit := false
		if window != nil {
			window.IMShow(*mat)
			quit = window.WaitKey(1)&0xFF == 'q'
		}
		mat.Close()
		if quit {
			log.Info(nil, "quit requested from window")
			return nil
		}
	}
}

// processFrame runs detection on mat, annotates it and ticks the controller.
// It returns the detections to reuse when the motion gate skips a frame.
func (a *App) processFrame(ctx context.Context, c *hazard.Controller, mat *gocv.Mat, last []detector.Detection) []detector.Detection {
	var dets []detector.Detection
	if a.IsEnabled() {
		dets = a.detect(mat, last)
		detector.Annotate(mat, dets)
	}
	signal := detector.HazardPresent(dets)
	if signal {
		a.deps.Alarm.Sound()
	}

	if err := c.Tick(ctx, signal, capture.NewFrame(mat, a.now())); err != nil {
		log.Warn(log.Fields{"error": err}, "tick completed with errors")
	}
	st := c.Status()
	a.setStatus(st)
	a.deps.Metrics.EpisodeUploads.Store(uint64(st.Episode.UploadsSent))

	if a.events.wantsFrames() {
		if jpeg, err := capture.EncodeJPEG(*mat); err == nil {
			a.events.frame(jpeg)
		}
	}
	return dets
}

// detect returns the thresholded detections for mat. A static frame reuses
// last; a detector failure counts as a clear frame.
func (a *App) detect(mat *gocv.Mat, last []detector.Detection) []detector.Detection {
	if a.deps.Motion != nil {
		if moved, _ := a.deps.Motion.Check(mat); !moved {
			a.deps.Metrics.FramesSkipped.Add(1)
			return last
		}
	}

	start := time.Now()
	raw, err := a.deps.Detector.Detect(mat)
	a.deps.Metrics.ObserveInference(time.Since(start).Seconds())
	if err != nil {
		a.deps.Metrics.DetectErrors.Add(1)
		log.Warn(log.Fields{"error": err}, "detection failed")
		return nil
	}

	dets := detector.Filter(raw, a.Confidence())
	a.deps.Metrics.ObserveDetections(detector.CountByClass(dets))
	return dets
}

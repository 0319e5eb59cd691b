package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/agni/internal/alarm"
	"github.com/ayusman/agni/internal/app"
	"github.com/ayusman/agni/internal/capture"
	"github.com/ayusman/agni/internal/config"
	"github.com/ayusman/agni/internal/detector"
	"github.com/ayusman/agni/internal/device"
	"github.com/ayusman/agni/internal/dispatch"
	"github.com/ayusman/agni/internal/log"
	"github.com/ayusman/agni/internal/metrics"
	"github.com/ayusman/agni/internal/notify"
	"github.com/ayusman/agni/internal/objectstore"
	"github.com/ayusman/agni/internal/plugin"
	"github.com/ayusman/agni/internal/server"
	"github.com/ayusman/agni/internal/statestore"
	"github.com/ayusman/agni/internal/statestore/redisstore"
	"github.com/ayusman/agni/internal/store"
	"github.com/ayusman/agni/internal/tray"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file")
		envFile    = flag.String("env", ".env", "dotenv file with credentials")
		source     = flag.String("source", "", "camera source override: device index, video file, stream URL or image")
		display    = flag.Bool("display", false, "show annotated frames in a window ('q' quits)")
		withTray   = flag.Bool("tray", false, "show a system tray icon")
	)
	flag.Parse()

	fmt.Println("Agni - Fire and Smoke Detection")

	if err := config.LoadEnv(*envFile); err != nil {
		fatal(err, "failed to load env file")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err, "failed to load configuration")
	}
	if *source != "" {
		cfg.Camera.Source = *source
	}
	if *display {
		cfg.Display = true
	}
	if _, err := log.Init(cfg.Log); err != nil {
		fatal(err, "failed to initialize logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *withTray); err != nil {
		fatal(err, "agni stopped")
	}
	log.Info(nil, "agni stopped")
}

func fatal(err error, msg string) {
	log.Error(log.Fields{"error": err}, msg)
	os.Exit(1)
}

func run(ctx context.Context, cfg *config.Config, withTray bool) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	state, closeState := openState(cfg, st)
	defer closeState()

	reg, err := device.New(state, cfg.Device)
	if err != nil {
		return err
	}

	det, err := detector.New(cfg.Detector)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}
	defer det.Close()

	src := capture.ParseSource(cfg.Camera.Source)
	cam := capture.OpenSource(src, cfg.Camera.Loop)
	log.Info(log.Fields{"source": src.String(), "fps": cfg.Camera.FPS, "backend": cfg.Detector.Backend}, "camera configured")

	var motion *capture.MotionGate
	if cfg.Camera.Motion.Enabled {
		motion = capture.NewMotionGate(cfg.Camera.Motion.Threshold, cfg.Camera.Motion.MaxSkip)
		defer motion.Close()
	}

	uploader, err := openUploader(cfg)
	if err != nil {
		return err
	}

	hooks, err := openHooks(cfg)
	if err != nil {
		return err
	}

	notifier, closeNotifiers, err := openNotifiers(ctx, cfg, reg.ID(), hooks)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	al, err := alarm.New(cfg.Alarm)
	if err != nil {
		return err
	}
	defer al.Close()

	queue := dispatch.New(cfg.Dispatch, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := queue.Close(ctx); err != nil {
			log.Warn(log.Fields{"error": err}, "background tasks did not finish")
		}
	}()

	a, err := app.New(app.Config{
		Hazard:       cfg.Hazard,
		Confidence:   cfg.Detector.Confidence,
		FPS:          cfg.Camera.FPS,
		Display:      cfg.Display,
		SoundOnAlert: cfg.Alarm.OnAlert,
	}, app.Deps{
		Camera:   cam,
		Detector: det,
		Device:   reg,
		Queue:    queue,
		Store:    st,
		Uploader: uploader,
		Notifier: notifier,
		Hooks:    hooks,
		Alarm:    al,
		Motion:   motion,
		Metrics:  metrics.New(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dashboard := ""
	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			StaticDir:       findWebDir(cfg.DataDir),
			MediaDir:        mediaDir(cfg),
			App:             a,
			EventsPerSecond: cfg.Server.EventsPerSecond,
		})
		httpSrv := srv.HTTPServer(cfg.Server.Addr)
		go func() {
			log.Info(log.Fields{"addr": cfg.Server.Addr}, "starting server")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(log.Fields{"error": err}, "server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			httpSrv.Shutdown(ctx)
		}()
		dashboard = "http://" + cfg.Server.Addr
	}

	if !withTray {
		return a.Run(ctx)
	}

	// systray owns the main thread; the loop runs beside it.
	t := tray.New(a.IsEnabled())
	t.OnToggle(func(enabled bool) {
		if err := a.SetEnabled(enabled); err != nil {
			log.Warn(log.Fields{"error": err}, "failed to persist enabled setting")
		}
	})
	t.OnQuit(cancel)
	if dashboard != "" {
		t.OnDashboard(func() { openBrowser(dashboard) })
	}
	a.OnEvent(t.HandleEvent)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		t.Quit()
	}()
	t.Run()
	cancel()
	return <-errCh
}

// openState returns the configured state store and its closer.
func openState(cfg *config.Config, st *store.Store) (statestore.Store, func()) {
	if cfg.State.Backend == "redis" {
		rs := redisstore.New(cfg.State.Redis)
		return rs, func() { rs.Close() }
	}
	return st.State(), func() {}
}

func openUploader(cfg *config.Config) (objectstore.Uploader, error) {
	switch cfg.Objects.Backend {
	case "s3":
		up, err := objectstore.NewS3(cfg.Objects.S3)
		if err != nil {
			return nil, err
		}
		return up, nil
	case "dir":
		up, err := objectstore.NewDir(cfg.Objects.Dir.Root, cfg.Objects.Dir.BaseURL)
		if err != nil {
			return nil, err
		}
		return up, nil
	default:
		log.Info(nil, "object storage disabled, captures will not be uploaded")
		return nil, nil
	}
}

func openHooks(cfg *config.Config) (*plugin.Runner, error) {
	manager := plugin.NewManager(cfg.Notify.HooksDir)
	if err := manager.Discover(); err != nil {
		return nil, fmt.Errorf("discover hooks: %w", err)
	}
	if len(manager.List()) == 0 {
		return nil, nil
	}
	log.Info(log.Fields{"dir": cfg.Notify.HooksDir, "hooks": len(manager.List())}, "hooks loaded")
	return plugin.NewRunner(manager, plugin.NewExecutor(cfg.Notify.HookTimeout)), nil
}

// openNotifiers builds every configured alert channel. A channel that fails
// to start is logged and left out so a broker outage does not stop detection.
func openNotifiers(ctx context.Context, cfg *config.Config, deviceID string, hooks *plugin.Runner) (notify.Notifier, func(), error) {
	var (
		multi   notify.Multi
		closers []func()
	)

	if cfg.Notify.FCM.ProjectID != "" {
		fcm, err := notify.NewFCM(ctx, cfg.Notify.FCM)
		if err != nil {
			return nil, nil, err
		}
		multi = append(multi, fcm)
	}
	if cfg.Notify.MQTT.Broker != "" {
		mq, err := notify.NewMQTT(cfg.Notify.MQTT, deviceID)
		if err != nil {
			log.Error(log.Fields{"broker": cfg.Notify.MQTT.Broker, "error": err}, "mqtt notifier unavailable")
		} else {
			multi = append(multi, mq)
			closers = append(closers, func() { mq.Close() })
		}
	}
	if hooks != nil {
		multi = append(multi, hooks.Notifier())
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(multi) == 0 {
		log.Warn(nil, "no notification channel configured")
		return nil, closeAll, nil
	}
	return multi, closeAll, nil
}

// mediaDir is the capture directory when uploads stay on this machine.
func mediaDir(cfg *config.Config) string {
	if cfg.Objects.Backend == "dir" {
		return cfg.Objects.Dir.Root
	}
	return ""
}

// findWebDir looks for a dashboard in ./web and <data dir>/web.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn(log.Fields{"url": url, "error": err}, "failed to open browser")
	}
}

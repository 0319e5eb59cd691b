// Package config loads the appliance configuration from YAML and .env files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/agni/internal/alarm"
	"github.com/ayusman/agni/internal/detector"
	"github.com/ayusman/agni/internal/device"
	"github.com/ayusman/agni/internal/dispatch"
	"github.com/ayusman/agni/internal/hazard"
	"github.com/ayusman/agni/internal/log"
	"github.com/ayusman/agni/internal/notify"
	"github.com/ayusman/agni/internal/objectstore"
	"github.com/ayusman/agni/internal/statestore/redisstore"
)

// Config represents the complete appliance configuration
type Config struct {
	DataDir  string          `yaml:"data_dir"`
	Device   device.Config   `yaml:"device"`
	Camera   CameraConfig    `yaml:"camera"`
	Detector detector.Config `yaml:"detector"`
	Hazard   hazard.Config   `yaml:"hazard"`
	State    StateConfig     `yaml:"state"`
	Objects  ObjectsConfig   `yaml:"objects"`
	Notify   NotifyConfig    `yaml:"notify"`
	Alarm    alarm.Config    `yaml:"alarm"`
	Dispatch dispatch.Config `yaml:"dispatch"`
	Server   ServerConfig    `yaml:"server"`
	Log      log.Config      `yaml:"log"`
	Display  bool            `yaml:"display"`
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	// Source is a device index, video file, stream URL or still image.
	Source string `yaml:"source"`
	FPS    int    `yaml:"fps"`
	// Loop replays a still image instead of stopping after one frame.
	Loop   bool         `yaml:"loop"`
	Motion MotionConfig `yaml:"motion"`
}

// MotionConfig enables the motion gate in front of the detector.
type MotionConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
	// MaxSkip forces an evaluation after this many static frames.
	MaxSkip int `yaml:"max_skip"`
}

// StateConfig selects the state store backend.
type StateConfig struct {
	// Backend is "sqlite" or "redis".
	Backend string            `yaml:"backend"`
	Redis   redisstore.Config `yaml:"redis"`
}

// ObjectsConfig selects where captures are uploaded.
type ObjectsConfig struct {
	// Backend is "s3", "dir" or "" to disable uploads.
	Backend string               `yaml:"backend"`
	S3      objectstore.S3Config `yaml:"s3"`
	Dir     DirConfig            `yaml:"dir"`
}

// DirConfig stores captures on the local filesystem.
type DirConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

// NotifyConfig lists alert channels. A channel without its address is off.
type NotifyConfig struct {
	FCM         notify.FCMConfig  `yaml:"fcm"`
	MQTT        notify.MQTTConfig `yaml:"mqtt"`
	HooksDir    string            `yaml:"hooks_dir"`
	HookTimeout time.Duration     `yaml:"hook_timeout"`
}

// ServerConfig contains the local HTTP API settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	// EventsPerSecond limits websocket event fan-out per client.
	EventsPerSecond float64 `yaml:"events_per_second"`
}

// Default returns the configuration used for any field the file omits.
func Default() Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".agni")

	return Config{
		DataDir: dataDir,
		Device:  device.Config{Name: device.DefaultName},
		Camera: CameraConfig{
			Source: "0",
			FPS:    5,
			Motion: MotionConfig{Threshold: 1.0, MaxSkip: 25},
		},
		Detector: detector.DefaultConfig(),
		Hazard:   hazard.DefaultConfig(),
		State: StateConfig{
			Backend: "sqlite",
			Redis:   redisstore.Config{Addr: "localhost:6379", Prefix: "agni:"},
		},
		Objects: ObjectsConfig{
			Dir: DirConfig{Root: filepath.Join(dataDir, "captures")},
		},
		Notify: NotifyConfig{
			HooksDir:    filepath.Join(dataDir, "hooks"),
			HookTimeout: 5 * time.Second,
		},
		Alarm:    alarm.Config{Command: []string{"aplay", "-q", "warning.wav"}},
		Dispatch: dispatch.DefaultConfig(),
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			EventsPerSecond: 10,
		},
		Log: log.Config{Level: "info"},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// yields the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// ApplyEnv fills secrets and deployment identifiers from the environment.
func ApplyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Device.ID, "AGNI_DEVICE_ID")
	setString(&cfg.Objects.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Objects.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Objects.S3.Bucket, "AGNI_S3_BUCKET")
	setString(&cfg.Notify.FCM.ProjectID, "AGNI_FCM_PROJECT")
	setString(&cfg.Notify.FCM.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&cfg.Notify.MQTT.Password, "AGNI_MQTT_PASSWORD")
	setString(&cfg.State.Redis.Password, "AGNI_REDIS_PASSWORD")
}

// DatabasePath is the sqlite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "agni.db")
}

package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/ayusman/agni/internal/statestore"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if err := statestore.ValidateSegment(c.Device.ID); err != nil {
		return fmt.Errorf("device.id: %w", err)
	}

	if strings.TrimSpace(c.Camera.Source) == "" {
		return fmt.Errorf("camera.source is required")
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}
	if c.Camera.Motion.Enabled && c.Camera.Motion.Threshold <= 0 {
		return fmt.Errorf("camera.motion.threshold must be > 0")
	}

	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if err := c.Hazard.Validate(); err != nil {
		return fmt.Errorf("hazard: %w", err)
	}

	switch c.State.Backend {
	case "sqlite":
	case "redis":
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("state.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("state.backend must be sqlite or redis, got %q", c.State.Backend)
	}

	switch c.Objects.Backend {
	case "":
	case "s3":
		if c.Objects.S3.Bucket == "" {
			return fmt.Errorf("objects.s3.bucket is required for the s3 backend")
		}
	case "dir":
		if c.Objects.Dir.Root == "" {
			return fmt.Errorf("objects.dir.root is required for the dir backend")
		}
	default:
		return fmt.Errorf("objects.backend must be s3, dir or empty, got %q", c.Objects.Backend)
	}

	if c.Dispatch.Workers < 0 || c.Dispatch.QueueSize < 0 {
		return fmt.Errorf("dispatch sizes must not be negative")
	}

	if c.Server.Enabled {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			return fmt.Errorf("server.addr: %w", err)
		}
	}

	switch c.Alarm.Kind {
	case "", "exec", "gpio":
	default:
		return fmt.Errorf("alarm.kind must be exec, gpio or empty, got %q", c.Alarm.Kind)
	}

	return nil
}

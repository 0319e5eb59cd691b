package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

const minimal = `
device:
  id: kitchen-cam
detector:
  backend: mock
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "agni.yaml", minimal))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "kitchen-cam" {
		t.Errorf("Device.ID = %q", cfg.Device.ID)
	}
	if cfg.Device.Name != "CAMERA DEVICE" {
		t.Errorf("Device.Name = %q, want default", cfg.Device.Name)
	}
	if cfg.Hazard.Debounce != 10*time.Second || cfg.Hazard.UploadCooldown != 2*time.Second || cfg.Hazard.MaxUploads != 3 {
		t.Errorf("Hazard = %+v, want 10s/2s/3", cfg.Hazard)
	}
	if cfg.Detector.Confidence != 0.5 {
		t.Errorf("Detector.Confidence = %v, want 0.5", cfg.Detector.Confidence)
	}
	if cfg.State.Backend != "sqlite" || cfg.Camera.Source != "0" {
		t.Errorf("unexpected defaults: state=%q source=%q", cfg.State.Backend, cfg.Camera.Source)
	}
	if !strings.HasSuffix(cfg.DatabasePath(), "agni.db") {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
}

func TestLoad_Durations(t *testing.T) {
	cfg, err := Load(writeFile(t, "agni.yaml", minimal+`
hazard:
  debounce: 1m30s
  upload_cooldown: 500ms
  max_uploads: 5
dispatch:
  timeout: 45s
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hazard.Debounce != 90*time.Second {
		t.Errorf("Debounce = %v, want 1m30s", cfg.Hazard.Debounce)
	}
	if cfg.Hazard.UploadCooldown != 500*time.Millisecond {
		t.Errorf("UploadCooldown = %v, want 500ms", cfg.Hazard.UploadCooldown)
	}
	if cfg.Hazard.MaxUploads != 5 {
		t.Errorf("MaxUploads = %d, want 5", cfg.Hazard.MaxUploads)
	}
	if cfg.Dispatch.Timeout != 45*time.Second {
		t.Errorf("Dispatch.Timeout = %v, want 45s", cfg.Dispatch.Timeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing device id", "detector:\n  backend: mock\n"},
		{"unknown field", minimal + "camera:\n  sauce: 0\n"},
		{"bad state backend", minimal + "state:\n  backend: firebase\n"},
		{"s3 without bucket", minimal + "objects:\n  backend: s3\n"},
		{"zero debounce", minimal + "hazard:\n  debounce: 0s\n"},
		{"bad server addr", minimal + "server:\n  enabled: true\n  addr: nope\n"},
		{"bad alarm", minimal + "alarm:\n  kind: siren\n"},
		{"invalid device id", "device:\n  id: kitchen.cam\ndetector:\n  backend: mock\n"},
		{"not yaml", "device: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AGNI_DEVICE_ID", "")
			if _, err := Load(writeFile(t, "agni.yaml", tt.content)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	env := writeFile(t, ".env", "AGNI_TEST_ONLY_VAR=from-dotenv\n")
	t.Setenv("AGNI_TEST_ONLY_VAR", "")
	os.Unsetenv("AGNI_TEST_ONLY_VAR")

	if err := LoadEnv(env, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("AGNI_TEST_ONLY_VAR"); got != "from-dotenv" {
		t.Errorf("AGNI_TEST_ONLY_VAR = %q", got)
	}

	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadEnv() with no files error = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AGNI_DEVICE_ID", "garage")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA123")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AGNI_FCM_PROJECT", "agni-prod")

	cfg := Default()
	ApplyEnv(&cfg)

	if cfg.Device.ID != "garage" {
		t.Errorf("Device.ID = %q", cfg.Device.ID)
	}
	if cfg.Objects.S3.AccessKeyID != "AKIA123" || cfg.Objects.S3.SecretAccessKey != "secret" {
		t.Errorf("S3 credentials not applied: %+v", cfg.Objects.S3)
	}
	if cfg.Notify.FCM.ProjectID != "agni-prod" {
		t.Errorf("FCM.ProjectID = %q", cfg.Notify.FCM.ProjectID)
	}
}

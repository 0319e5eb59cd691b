// Package detector finds fire and smoke in video frames.
package detector

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Class names the fire/smoke models are trained with.
const (
	ClassFire  = "fire"
	ClassSmoke = "smoke"
	// ClassOther marks background lookalikes (lamps, sunsets). Never a hazard.
	ClassOther = "other"
)

// Detection is one object found in a frame, in frame pixel coordinates.
type Detection struct {
	Class      string          `json:"class"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Detector defines the interface for hazard detection backends.
type Detector interface {
	// Detect analyzes a video frame and returns every candidate above the
	// backend's score floor. Returns an empty slice if nothing is found.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for detection.
type Config struct {
	// Backend is "onnx", "service" or "mock".
	Backend string `yaml:"backend"`
	// Model is the ONNX file for "onnx" or the weights passed to the service.
	Model string `yaml:"model"`
	// Classes lists the model's class names in output order.
	Classes []string `yaml:"classes"`

	// Confidence is the minimum score for a detection to count (0.0-1.0).
	Confidence float64 `yaml:"confidence"`
	// MinScore is the floor below which backends drop candidates.
	MinScore     float64 `yaml:"min_score"`
	NMSThreshold float64 `yaml:"nms_threshold"`
	InputSize    int     `yaml:"input_size"`

	// Command overrides the service process, e.g. ["python3", "detect_service.py"].
	Command     []string      `yaml:"command"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Backend:      "onnx",
		Classes:      []string{ClassFire, ClassOther, ClassSmoke},
		Confidence:   0.5,
		MinScore:     0.25,
		NMSThreshold: 0.45,
		InputSize:    640,
		IdleTimeout:  30 * time.Second,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("detector: confidence %v out of range [0,1]", c.Confidence)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("detector: min_score %v out of range [0,1]", c.MinScore)
	}
	switch c.Backend {
	case "onnx":
		if c.Model == "" {
			return errors.New("detector: onnx backend needs a model")
		}
		if len(c.Classes) == 0 {
			return errors.New("detector: onnx backend needs class names")
		}
		if c.InputSize <= 0 {
			return errors.New("detector: input_size must be positive")
		}
	case "service", "mock":
	default:
		return fmt.Errorf("detector: unknown backend %q", c.Backend)
	}
	return nil
}

// New builds the configured backend.
func New(cfg Config) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "onnx":
		return NewONNXDetector(cfg)
	case "service":
		return NewServiceDetector(cfg)
	default:
		return NewMockDetector(), nil
	}
}

// Filter keeps detections at or above minConfidence whose class is not
// ClassOther.
func Filter(dets []Detection, minConfidence float64) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Class == ClassOther || d.Confidence < minConfidence {
			continue
		}
		out = append(out, d)
	}
	return out
}

// HazardPresent reports whether any detection is a hazard class.
func HazardPresent(dets []Detection) bool {
	for _, d := range dets {
		if d.Class != ClassOther {
			return true
		}
	}
	return false
}

// CountByClass tallies detections per class.
func CountByClass(dets []Detection) map[string]int {
	counts := make(map[string]int, len(dets))
	for _, d := range dets {
		counts[d.Class]++
	}
	return counts
}

package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	dets     []Detection
	sequence [][]Detection
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections returned by every Detect call.
func (m *MockDetector) SetDetections(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dets = dets
	m.sequence = nil
}

// SetSequence makes Detect return seq[i] on the i-th call, then nothing.
func (m *MockDetector) SetSequence(seq [][]Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
	m.calls = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured detections or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.sequence != nil {
		if i < len(m.sequence) {
			return m.sequence[i], nil
		}
		return nil, nil
	}
	return m.dets, nil
}

// Calls returns the number of Detect calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// FireDetection returns a confident fire box in the middle of a 640x480 frame.
func FireDetection() Detection {
	return Detection{Class: ClassFire, Confidence: 0.91, Box: image.Rect(220, 140, 420, 340)}
}

// SmokeDetection returns a smoke plume above FireDetection.
func SmokeDetection() Detection {
	return Detection{Class: ClassSmoke, Confidence: 0.74, Box: image.Rect(180, 20, 460, 150)}
}

// OtherDetection returns a lookalike that must not raise an alert.
func OtherDetection() Detection {
	return Detection{Class: ClassOther, Confidence: 0.88, Box: image.Rect(10, 10, 90, 90)}
}

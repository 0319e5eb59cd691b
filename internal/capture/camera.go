// Package capture reads frames from webcams, video files, network streams and
// still images using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEndOfStream is returned once a finite source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Camera defines the interface for frame sources.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// SourceKind distinguishes the inputs a Source can name.
type SourceKind int

const (
	SourceDevice SourceKind = iota
	SourceVideo
	SourceImage
)

func (k SourceKind) String() string {
	switch k {
	case SourceDevice:
		return "device"
	case SourceVideo:
		return "video"
	case SourceImage:
		return "image"
	default:
		return "unknown"
	}
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// Source names where frames come from.
type Source struct {
	Kind   SourceKind
	Device int
	// Path is a file path or stream URL for video and image sources.
	Path string
}

// ParseSource interprets s as a device index ("0"), a still image
// ("smoke.jpg") or anything else OpenCV can open (a file or rtsp/http URL).
// An empty string selects device 0.
func ParseSource(s string) Source {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{Kind: SourceDevice}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return Source{Kind: SourceDevice, Device: n}
	}
	if imageExts[strings.ToLower(filepath.Ext(s))] {
		return Source{Kind: SourceImage, Path: s}
	}
	return Source{Kind: SourceVideo, Path: s}
}

func (s Source) String() string {
	if s.Kind == SourceDevice {
		return "device " + strconv.Itoa(s.Device)
	}
	return s.Kind.String() + " " + s.Path
}

// Live reports whether the source never ends on its own.
func (s Source) Live() bool {
	if s.Kind == SourceDevice {
		return true
	}
	return strings.Contains(s.Path, "://")
}

// OpenSource builds the camera for src. loop only applies to still images.
func OpenSource(src Source, loop bool) Camera {
	switch src.Kind {
	case SourceImage:
		return NewImageSource(src.Path, loop)
	case SourceVideo:
		return &cameraImpl{target: src.Path, live: src.Live(), fps: DefaultFPS}
	default:
		return NewCamera(src.Device)
	}
}

// cameraImpl manages video capture from a device, file or stream using GoCV.
type cameraImpl struct {
	target  any
	live    bool
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a new Camera with the given device ID.
// The default FPS is 5 for performance reasons.
func NewCamera(deviceID int) Camera {
	return &cameraImpl{
		target: deviceID,
		live:   true,
		fps:    DefaultFPS,
	}
}

// Open opens the source for capturing frames.
// Devices are asked for 640x480 for performance.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.target)
	if err != nil {
		return fmt.Errorf("open %v: %w", c.target, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open %v: source not available", c.target)
	}

	if _, ok := c.target.(int); ok {
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame. A failed read on a file source is the end
// of the stream; on a live source it is an error.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if !c.live {
			return nil, ErrEndOfStream
		}
		return nil, errors.New("failed to read frame from camera")
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// ImageSource serves a single still image as a stream. Without loop the
// image is returned once and then ErrEndOfStream.
type ImageSource struct {
	path string
	loop bool

	mu      sync.Mutex
	img     gocv.Mat
	served  bool
	running bool
	fps     int
}

func NewImageSource(path string, loop bool) *ImageSource {
	return &ImageSource{path: path, loop: loop, fps: DefaultFPS}
}

// Open decodes the image from disk.
func (s *ImageSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	img := gocv.IMRead(s.path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return fmt.Errorf("read image %s: unreadable or missing", s.path)
	}

	s.img = img
	s.served = false
	s.running = true
	return nil
}

func (s *ImageSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.img.Close()
	}
	s.running = false
	return nil
}

func (s *ImageSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrCameraNotOpen
	}
	if s.served && !s.loop {
		return nil, ErrEndOfStream
	}

	s.served = true
	frame := s.img.Clone()
	return &frame, nil
}

func (s *ImageSource) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = fps
}

func (s *ImageSource) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

func (s *ImageSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Package capturetest builds synthetic frames for tests.
package capturetest

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame size used by the helpers.
const (
	Width  = 640
	Height = 480
)

var (
	// Flame is a saturated orange, in RGBA.
	Flame = color.RGBA{R: 255, G: 120, B: 20, A: 255}
	// Haze is a pale grey, in RGBA.
	Haze = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// Blank returns a black frame.
func Blank() *gocv.Mat {
	m := gocv.NewMatWithSize(Height, Width, gocv.MatTypeCV8UC3)
	return &m
}

// WithBlob returns a black frame with a filled rectangle of c.
func WithBlob(r image.Rectangle, c color.RGBA) *gocv.Mat {
	m := Blank()
	gocv.Rectangle(m, r, c, -1)
	return m
}

// Sequence returns n frames. Frame i carries a flame blob when hazard(i) is
// true and is blank otherwise; a nil hazard gives n blank frames.
func Sequence(n int, hazard func(i int) bool) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		if hazard != nil && hazard(i) {
			frames[i] = WithBlob(image.Rect(220, 140, 420, 340), Flame)
		} else {
			frames[i] = Blank()
		}
	}
	return frames
}

// CloseAll releases frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}

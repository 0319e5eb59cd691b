package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	fireColor  = color.RGBA{R: 190, G: 40, B: 40, A: 255}
	otherColor = color.RGBA{R: 210, G: 210, B: 210, A: 255}
)

// ColorFor returns the box colour for a class.
func ColorFor(class string) color.RGBA {
	if class == ClassFire {
		return fireColor
	}
	return otherColor
}

// Annotate draws a box and class label for each detection onto frame.
func Annotate(frame *gocv.Mat, dets []Detection) {
	if frame == nil || frame.Empty() {
		return
	}
	for _, d := range dets {
		c := ColorFor(d.Class)
		gocv.Rectangle(frame, d.Box, c, 2)
		gocv.PutText(frame, d.Class, image.Pt(d.Box.Min.X, d.Box.Min.Y-10), gocv.FontHersheySimplex, 0.65, c, 1)
	}
}

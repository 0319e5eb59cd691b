package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion gate tuning.
const (
	// GaussianBlurSize is the blur kernel applied before differencing.
	GaussianBlurSize = 21
	// DiffThreshold is the per-pixel intensity change that counts as motion.
	DiffThreshold = 25
)

// MotionGate decides whether a frame differs enough from the last one to be
// worth running inference on. A static scene keeps its previous verdict.
type MotionGate struct {
	mu        sync.Mutex
	threshold float64
	prev      gocv.Mat
	primed    bool
	skipped   int
	maxSkip   int
}

// NewMotionGate creates a gate that opens when more than threshold percent
// of pixels change. After maxSkip consecutive closed frames the gate opens
// anyway so a slowly growing fire is still evaluated; 0 disables that.
func NewMotionGate(threshold float64, maxSkip int) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		prev:      gocv.NewMat(),
		maxSkip:   maxSkip,
	}
}

// Check compares frame with the previous one and reports whether it should
// be evaluated along with the changed pixel percentage. The first frame
// always passes.
func (g *MotionGate) Check(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !g.primed || blurred.Rows() != g.prev.Rows() || blurred.Cols() != g.prev.Cols() {
		blurred.CopyTo(&g.prev)
		g.primed = true
		g.skipped = 0
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&g.prev)

	if changed > g.threshold || (g.maxSkip > 0 && g.skipped >= g.maxSkip) {
		g.skipped = 0
		return true, changed
	}
	g.skipped++
	return false, changed
}

// Reset forgets the baseline so the next frame passes.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primed = false
	g.skipped = 0
}

// Close releases the baseline Mat.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prev.Close()
	g.prev = gocv.NewMat()
	g.primed = false
}

// SetThreshold changes the motion percentage. Values <= 0 are ignored.
func (g *MotionGate) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = threshold
}

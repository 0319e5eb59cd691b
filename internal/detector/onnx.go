package detector

import (
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXDetector runs a YOLO model exported to ONNX through the OpenCV DNN module.
type ONNXDetector struct {
	mu       sync.Mutex
	net      gocv.Net
	classes  []string
	size     int
	minScore float64
	nms      float64
}

// NewONNXDetector loads cfg.Model and prepares it for CPU inference.
func NewONNXDetector(cfg Config) (*ONNXDetector, error) {
	net := gocv.ReadNetFromONNX(cfg.Model)
	if net.Empty() {
		return nil, fmt.Errorf("load onnx model %s: empty network", cfg.Model)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &ONNXDetector{
		net:      net,
		classes:  cfg.Classes,
		size:     cfg.InputSize,
		minScore: cfg.MinScore,
		nms:      cfg.NMSThreshold,
	}, nil
}

// Detect resizes the frame to the model input, runs a forward pass and maps
// boxes back to frame coordinates.
func (d *ONNXDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(d.size, d.size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	sx := float64(frame.Cols()) / float64(d.size)
	sy := float64(frame.Rows()) / float64(d.size)
	dets, nmsFree, err := decodeOutput(data, out.Size(), d.classes, sx, sy, d.minScore)
	if err != nil {
		return nil, err
	}
	if nmsFree || len(dets) < 2 {
		return dets, nil
	}
	return suppress(dets, d.minScore, d.nms), nil
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// decodeOutput understands two YOLO output layouts:
//
//	[1, 4+classes, N]  YOLOv8/v11, rows cx,cy,w,h then one score per class
//	[1, N, 6]          YOLOv10, rows x1,y1,x2,y2,score,class (already NMS-free)
//
// Coordinates are in model input pixels and are scaled by sx, sy.
func decodeOutput(data []float32, dims []int, classes []string, sx, sy, minScore float64) ([]Detection, bool, error) {
	if len(dims) == 2 {
		dims = append([]int{1}, dims...)
	}
	if len(dims) != 3 {
		return nil, false, fmt.Errorf("unexpected output shape %v", dims)
	}
	if len(data) < dims[1]*dims[2] {
		return nil, false, fmt.Errorf("output has %d values, shape %v needs %d", len(data), dims, dims[1]*dims[2])
	}

	nc := len(classes)
	switch {
	case dims[1] == 4+nc:
		return decodeV8(data, dims[2], classes, sx, sy, minScore), false, nil
	case dims[2] == 6:
		return decodeV10(data, dims[1], classes, sx, sy, minScore), true, nil
	default:
		return nil, false, fmt.Errorf("output shape %v does not match %d classes", dims, nc)
	}
}

func decodeV8(data []float32, n int, classes []string, sx, sy, minScore float64) []Detection {
	var dets []Detection
	at := func(row, i int) float64 { return float64(data[row*n+i]) }

	for i := 0; i < n; i++ {
		best, score := -1, 0.0
		for c := range classes {
			if s := at(4+c, i); s > score {
				best, score = c, s
			}
		}
		if best < 0 || score < minScore {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		dets = append(dets, Detection{
			Class:      classes[best],
			Confidence: score,
			Box:        scaleBox(cx-w/2, cy-h/2, cx+w/2, cy+h/2, sx, sy),
		})
	}
	return dets
}

func decodeV10(data []float32, n int, classes []string, sx, sy, minScore float64) []Detection {
	var dets []Detection
	for i := 0; i < n; i++ {
		row := data[i*6 : i*6+6]
		score := float64(row[4])
		cls := int(row[5])
		if score < minScore || cls < 0 || cls >= len(classes) {
			continue
		}
		dets = append(dets, Detection{
			Class:      classes[cls],
			Confidence: score,
			Box:        scaleBox(float64(row[0]), float64(row[1]), float64(row[2]), float64(row[3]), sx, sy),
		})
	}
	return dets
}

func scaleBox(x1, y1, x2, y2, sx, sy float64) image.Rectangle {
	return image.Rect(
		int(math.Round(x1*sx)), int(math.Round(y1*sy)),
		int(math.Round(x2*sx)), int(math.Round(y2*sy)),
	)
}

// suppress runs OpenCV non-maximum suppression across all classes.
func suppress(dets []Detection, minScore, threshold float64) []Detection {
	boxes := make([]image.Rectangle, len(dets))
	scores := make([]float32, len(dets))
	for i, d := range dets {
		boxes[i] = d.Box
		scores[i] = float32(d.Confidence)
	}

	keep := gocv.NMSBoxes(boxes, scores, float32(minScore), float32(threshold))
	out := make([]Detection, 0, len(keep))
	for _, i := range keep {
		out = append(out, dets[i])
	}
	return out
}

package capture

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a captured image with its capture time. The Mat is owned by the
// caller that read it.
type Frame struct {
	Mat       *gocv.Mat
	Timestamp time.Time
}

// NewFrame wraps mat captured at ts.
func NewFrame(mat *gocv.Mat, ts time.Time) Frame {
	return Frame{Mat: mat, Timestamp: ts}
}

// JPEG encodes the frame as it currently looks, annotations included.
func (f Frame) JPEG() ([]byte, error) {
	if f.Mat == nil || f.Mat.Empty() {
		return nil, errors.New("encode jpeg: empty frame")
	}
	return EncodeJPEG(*f.Mat)
}

// EncodeJPEG returns a Go-owned copy of mat encoded as JPEG.
func EncodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

package server

import (
	"net/http"
	"time"

	"github.com/hybridgroup/mjpeg"
)

// previewInterval paces the preview for every viewer.
const previewInterval = 100 * time.Millisecond

// StreamHandler serves the annotated preview as MJPEG.
type StreamHandler struct {
	stream *mjpeg.Stream
}

// NewStreamHandler creates an empty preview stream.
func NewStreamHandler() *StreamHandler {
	stream := mjpeg.NewStream()
	stream.FrameInterval = previewInterval
	return &StreamHandler{stream: stream}
}

// Update pushes a JPEG frame to all viewers. Viewers that are still writing
// the previous frame skip this one.
func (h *StreamHandler) Update(jpeg []byte) {
	h.stream.UpdateJPEG(jpeg)
}

// ServeHTTP streams MJPEG frames to the client until it disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	h.stream.ServeHTTP(w, r)
}

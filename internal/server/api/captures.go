package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/agni/internal/store"
)

const maxCaptureLimit = 500

// CapturesHandler lists uploaded evidence frames for one device.
type CapturesHandler struct {
	store    *store.Store
	deviceID string
}

// NewCapturesHandler creates a CapturesHandler for deviceID.
func NewCapturesHandler(s *store.Store, deviceID string) *CapturesHandler {
	return &CapturesHandler{store: s, deviceID: deviceID}
}

type listCapturesResponse struct {
	Captures []*store.Capture `json:"captures"`
	Total    int              `json:"total"`
}

// ServeHTTP handles GET /api/captures. ?episode= restricts the list to one
// episode in upload order; otherwise ?limit= bounds the newest-first list.
func (h *CapturesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var (
		captures []*store.Capture
		err      error
	)
	if episode := q.Get("episode"); episode != "" {
		captures, err = h.store.Captures().ByEpisode(h.deviceID, episode)
	} else {
		limit := 50
		if v := q.Get("limit"); v != "" {
			n, convErr := strconv.Atoi(v)
			if convErr != nil || n <= 0 || n > maxCaptureLimit {
				writeError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
			limit = n
		}
		captures, err = h.store.Captures().Recent(h.deviceID, limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list captures")
		return
	}

	total, err := h.store.Captures().Count(h.deviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count captures")
		return
	}
	if captures == nil {
		captures = []*store.Capture{}
	}

	writeJSON(w, http.StatusOK, listCapturesResponse{Captures: captures, Total: total})
}

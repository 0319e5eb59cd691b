package api

import (
	"encoding/json"
	"net/http"
)

// Controls are the runtime switches exposed over HTTP.
type Controls interface {
	IsEnabled() bool
	SetEnabled(enabled bool) error
	Confidence() float64
	SetConfidence(c float64) error
}

// SettingsHandler reads and changes the detection switches.
type SettingsHandler struct {
	controls Controls
}

// NewSettingsHandler creates a SettingsHandler over c.
func NewSettingsHandler(c Controls) *SettingsHandler {
	return &SettingsHandler{controls: c}
}

type settingsResponse struct {
	Enabled    bool    `json:"enabled"`
	Confidence float64 `json:"confidence"`
}

// updateSettingsRequest uses pointers so omitted fields stay unchanged.
type updateSettingsRequest struct {
	Enabled    *bool    `json:"enabled"`
	Confidence *float64 `json:"confidence"`
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.current())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) current() settingsResponse {
	return settingsResponse{
		Enabled:    h.controls.IsEnabled(),
		Confidence: h.controls.Confidence(),
	}
}

// update handles PUT /api/settings.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Confidence != nil {
		if c := *req.Confidence; c < 0 || c > 1 {
			writeError(w, http.StatusBadRequest, "Confidence must be between 0 and 1")
			return
		}
		if err := h.controls.SetConfidence(*req.Confidence); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save confidence")
			return
		}
	}
	if req.Enabled != nil {
		if err := h.controls.SetEnabled(*req.Enabled); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save enabled")
			return
		}
	}

	writeJSON(w, http.StatusOK, h.current())
}

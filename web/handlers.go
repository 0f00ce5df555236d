package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"capture-colorspace/bridge"
	"capture-colorspace/camera"
	"capture-colorspace/capture"
	"capture-colorspace/colorspace"
	"capture-colorspace/config"

	"go.uber.org/zap"
)

// Handlers manages HTTP request handlers
type Handlers struct {
	config        *config.Config
	logger        *zap.Logger
	cameraManager *camera.Manager
	events        *EventHub
}

// colorSpaceRequest is the body of POST /api/cameras/{id}/color-space.
// Zero dimensions and frame rate default to the camera's configuration.
type colorSpaceRequest struct {
	ColorSpace string  `json:"color_space"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		config: cfg,
		logger: logger,
	}
}

// SetCameraManager sets the camera manager
func (h *Handlers) SetCameraManager(manager *camera.Manager) {
	h.cameraManager = manager
}

// SetEventHub sets the websocket event hub
func (h *Handlers) SetEventHub(hub *EventHub) {
	h.events = hub
}

// HandleHealth returns health check information
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]interface{}{
		"web_server": "running",
	}
	if h.cameraManager != nil {
		services["camera_manager"] = fmt.Sprintf("running (%d cameras)", len(h.cameraManager.GetCameraList()))
	}
	if h.events != nil {
		services["event_clients"] = h.events.GetClientCount()
	}

	h.writeJSONResponse(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

// HandleAPIConfig returns the current configuration
func (h *Handlers) HandleAPIConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, h.config)
}

// HandleAPIColorSpaces lists the selectors with their native values and
// fallback order
func (h *Handlers) HandleAPIColorSpaces(w http.ResponseWriter, r *http.Request) {
	if h.cameraManager == nil {
		h.writeErrorResponse(w, "Camera manager not available", http.StatusServiceUnavailable)
		return
	}

	table := h.cameraManager.Configurator().Fallbacks()
	spaces := make([]map[string]interface{}, 0, len(bridge.AllColorSpaces()))
	for _, cs := range bridge.AllColorSpaces() {
		native := colorspace.ToCaptureColorSpace(cs)
		spaces = append(spaces, map[string]interface{}{
			"selector":   cs,
			"native":     native,
			"candidates": table.Candidates(native),
		})
	}

	h.writeJSONResponse(w, spaces)
}

// HandleAPICameras returns camera information
func (h *Handlers) HandleAPICameras(w http.ResponseWriter, r *http.Request) {
	if h.cameraManager == nil {
		h.writeErrorResponse(w, "Camera manager not available", http.StatusServiceUnavailable)
		return
	}

	h.writeJSONResponse(w, h.cameraManager.GetStatus())
}

// HandleAPIFormats returns the formats of one camera and logs them
func (h *Handlers) HandleAPIFormats(w http.ResponseWriter, r *http.Request) {
	if h.cameraManager == nil {
		h.writeErrorResponse(w, "Camera manager not available", http.StatusServiceUnavailable)
		return
	}

	cameraID := r.PathValue("id")
	formats, err := h.cameraManager.Formats(cameraID)
	if err != nil {
		h.writeCameraError(w, cameraID, err)
		return
	}

	h.writeJSONResponse(w, map[string]interface{}{
		"camera_id": cameraID,
		"formats":   formats,
	})
}

// HandleAPIAvailability reports whether a camera offers a color space
func (h *Handlers) HandleAPIAvailability(w http.ResponseWriter, r *http.Request) {
	if h.cameraManager == nil {
		h.writeErrorResponse(w, "Camera manager not available", http.StatusServiceUnavailable)
		return
	}

	cameraID := r.PathValue("id")
	cs, err := bridge.ParseColorSpace(r.URL.Query().Get("color_space"))
	if err != nil {
		h.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	available, err := h.cameraManager.Availability(cameraID, cs)
	if err != nil {
		h.writeCameraError(w, cameraID, err)
		return
	}

	h.writeJSONResponse(w, map[string]interface{}{
		"camera_id":   cameraID,
		"color_space": cs,
		"available":   available,
	})
}

// HandleAPISetColorSpace configures a camera, falling back when needed
func (h *Handlers) HandleAPISetColorSpace(w http.ResponseWriter, r *http.Request) {
	if h.cameraManager == nil {
		h.writeErrorResponse(w, "Camera manager not available", http.StatusServiceUnavailable)
		return
	}

	cameraID := r.PathValue("id")
	cam, err := h.cameraManager.GetCamera(cameraID)
	if err != nil {
		h.writeCameraError(w, cameraID, err)
		return
	}

	var body colorSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeErrorResponse(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	cs, err := bridge.ParseColorSpace(body.ColorSpace)
	if err != nil {
		h.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := camera.Request{
		ColorSpace: cs,
		Width:      body.Width,
		Height:     body.Height,
		FPS:        body.FPS,
	}
	if req.Width == 0 || req.Height == 0 {
		req.Width, req.Height = cam.Config.Width, cam.Config.Height
	}
	if req.FPS == 0 {
		req.FPS = cam.Config.FPS
	}

	result, err := h.cameraManager.Apply(r.Context(), cameraID, req)
	if err != nil {
		h.writeCameraError(w, cameraID, err)
		return
	}

	h.writeJSONResponse(w, result)
}

// writeCameraError maps manager errors to status codes
func (h *Handlers) writeCameraError(w http.ResponseWriter, cameraID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, camera.ErrCameraNotFound):
		status = http.StatusNotFound
	case errors.Is(err, camera.ErrCameraNotInitialized):
		status = http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrLockRefused):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Camera request failed", zap.String("camera", cameraID), zap.Error(err))
	}
	h.writeErrorResponse(w, err.Error(), status)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	json.NewEncoder(w).Encode(errorResponse)
}

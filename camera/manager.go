package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"capture-colorspace/bridge"
	"capture-colorspace/capture"
	"capture-colorspace/colorspace"
	"capture-colorspace/config"
	"capture-colorspace/v4l2dev"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrCameraNotFound is returned for an unknown camera id
	ErrCameraNotFound = errors.New("camera not found")

	// ErrCameraNotInitialized is returned while a camera has no open device
	ErrCameraNotInitialized = errors.New("camera not initialized")
)

// Manager handles camera discovery and color-space configuration
type Manager struct {
	config       *config.Config
	logger       *zap.Logger
	configurator *colorspace.Configurator
	metrics      *metrics

	mu      sync.RWMutex
	cameras map[string]*Camera

	listenersMu sync.RWMutex
	listeners   []func(ConfigurationEvent)

	monitor *monitor
}

// Camera represents a single managed capture device
type Camera struct {
	ID      string
	Config  config.CameraConfig
	Device  capture.Device
	Session *capture.ConfigSession
	logger  *zap.Logger

	// Serialises configuration requests for this camera
	resourceLock sync.Mutex
	lastRequest  *Request
	lastResult   *Result
	initTime     time.Time
}

// Request asks for a color space at a resolution and frame rate
type Request struct {
	ColorSpace bridge.ColorSpace `json:"color_space"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	FPS        float64           `json:"fps"`
}

// Result is the outcome of a configuration request
type Result struct {
	CameraID  string             `json:"camera_id"`
	Requested bridge.ColorSpace  `json:"requested"`
	Applied   capture.ColorSpace `json:"applied"`
	Fallback  bool               `json:"fallback"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	FPS       float64            `json:"fps"`
	AppliedAt time.Time          `json:"applied_at"`
}

// ConfigurationEvent is published after every configuration attempt
type ConfigurationEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // configured, failed or drift
	CameraID  string    `json:"camera_id"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewManager creates a new camera manager
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	fallbacks, err := cfg.FallbackSelectors()
	if err != nil {
		return nil, fmt.Errorf("failed to parse fallback table: %w", err)
	}

	m := &Manager{
		config:  cfg,
		logger:  logger,
		cameras: make(map[string]*Camera),
		configurator: colorspace.New(logger.Named("colorspace"),
			colorspace.WithFallbacks(colorspace.FallbacksFromSelectors(fallbacks))),
		metrics: newMetrics(logger),
	}

	for _, camCfg := range cfg.Cameras {
		camLogger := logger.With(zap.String("camera", camCfg.ID))
		session := capture.NewSession()
		session.OnCommit(func() {
			camLogger.Debug("Configuration committed", zap.Int("commits", session.Commits()))
		})

		m.cameras[camCfg.ID] = &Camera{
			ID:      camCfg.ID,
			Config:  camCfg,
			Session: session,
			logger:  camLogger,
		}
	}
	return m, nil
}

// Configurator returns the color-space configurator in use
func (m *Manager) Configurator() *colorspace.Configurator {
	return m.configurator
}

// InitializeCamera opens the device behind a camera entry
func (m *Manager) InitializeCamera(cameraID string) error {
	camera, err := m.GetCamera(cameraID)
	if err != nil {
		return err
	}

	camera.resourceLock.Lock()
	defer camera.resourceLock.Unlock()

	if camera.Device != nil {
		return nil
	}

	m.logger.Info("Initializing camera",
		zap.String("camera", cameraID),
		zap.String("backend", camera.Config.Backend),
		zap.String("device_path", camera.Config.Device))

	device, err := m.openDevice(camera.Config)
	if err != nil {
		return fmt.Errorf("failed to open camera %s: %w", cameraID, err)
	}

	camera.Device = device
	camera.initTime = time.Now()

	m.logger.Info("Camera initialized",
		zap.String("camera", cameraID),
		zap.Int("formats", len(device.Formats())))
	return nil
}

// InitializeAll opens every configured camera, logging the ones that fail
func (m *Manager) InitializeAll() int {
	initialized := 0
	for _, cameraID := range m.GetCameraList() {
		if err := m.InitializeCamera(cameraID); err != nil {
			m.logger.Warn("Failed to initialize camera", zap.String("camera", cameraID), zap.Error(err))
			continue
		}
		initialized++
	}
	return initialized
}

func (m *Manager) openDevice(cfg config.CameraConfig) (capture.Device, error) {
	switch cfg.Backend {
	case "virtual":
		return newVirtualDevice(cfg)
	case "v4l2":
		return v4l2dev.Open(cfg.ID, cfg.Device, cfg.MaxFPS, m.logger)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// newVirtualDevice builds an in-memory device from the declared formats
func newVirtualDevice(cfg config.CameraConfig) (*capture.VirtualDevice, error) {
	formats := make([]*capture.Format, 0, len(cfg.Formats))
	for i, f := range cfg.Formats {
		spaces := make([]capture.ColorSpace, 0, len(f.ColorSpaces))
		for _, name := range f.ColorSpaces {
			sel, err := bridge.ParseColorSpace(name)
			if err != nil {
				return nil, fmt.Errorf("format %d: %w", i, err)
			}
			spaces = append(spaces, colorspace.ToCaptureColorSpace(sel))
		}
		formats = append(formats, &capture.Format{
			ID:          fmt.Sprintf("%s-%d", cfg.ID, i),
			PixelFormat: f.PixelFormat,
			Resolution:  capture.Resolution{Width: f.Width, Height: f.Height},
			FrameRates:  []capture.FrameRateRange{{Min: f.MinFPS, Max: f.MaxFPS}},
			ColorSpaces: spaces,
		})
	}
	return capture.NewVirtualDevice(cfg.ID, cfg.Name, formats), nil
}

// RequestFromConfig returns the request a camera entry asks for at startup
func RequestFromConfig(cfg config.CameraConfig) (Request, error) {
	cs, err := bridge.ParseColorSpace(cfg.ColorSpace)
	if err != nil {
		return Request{}, err
	}
	return Request{ColorSpace: cs, Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS}, nil
}

// Apply configures a camera's color space with fallback. A fallback is a
// successful Result; only a device that could not be configured at all
// returns an error.
func (m *Manager) Apply(ctx context.Context, cameraID string, req Request) (*Result, error) {
	camera, err := m.lockReadyCamera(cameraID)
	if err != nil {
		return nil, err
	}
	defer camera.resourceLock.Unlock()

	return m.applyLocked(ctx, camera, req, "configured")
}

func (m *Manager) applyLocked(ctx context.Context, camera *Camera, req Request, eventType string) (*Result, error) {
	resolution := capture.Resolution{Width: req.Width, Height: req.Height}
	requested := colorspace.ToCaptureColorSpace(req.ColorSpace)

	applied, err := m.configurator.Configure(camera.Device, req.ColorSpace, resolution, req.FPS, camera.Session)
	if err != nil {
		m.metrics.recordConfiguration(ctx, camera.ID, "error")
		m.publish(ConfigurationEvent{
			Type:     "failed",
			CameraID: camera.ID,
			Error:    err.Error(),
		})
		return nil, err
	}

	result := &Result{
		CameraID:  camera.ID,
		Requested: req.ColorSpace,
		Applied:   applied,
		Fallback:  applied != requested,
		Width:     req.Width,
		Height:    req.Height,
		FPS:       req.FPS,
		AppliedAt: time.Now(),
	}

	outcome := "exact"
	if result.Fallback {
		outcome = "fallback"
	}
	m.metrics.recordConfiguration(ctx, camera.ID, outcome)

	reqCopy := req
	camera.lastRequest = &reqCopy
	camera.lastResult = result

	camera.logger.Info("Camera color space applied",
		zap.Stringer("requested", req.ColorSpace),
		zap.Stringer("applied", applied),
		zap.Bool("fallback", result.Fallback))

	m.publish(ConfigurationEvent{
		Type:     eventType,
		CameraID: camera.ID,
		Result:   result,
	})
	return result, nil
}

// ApplyAll applies the configured request of every camera marked
// apply_on_start and returns the failures by camera id
func (m *Manager) ApplyAll(ctx context.Context) map[string]error {
	errs := make(map[string]error)
	for _, cameraID := range m.GetCameraList() {
		camera, err := m.GetCamera(cameraID)
		if err != nil || !camera.Config.ApplyOnStart {
			continue
		}

		req, err := RequestFromConfig(camera.Config)
		if err != nil {
			errs[cameraID] = err
			continue
		}
		_, err = m.Apply(ctx, cameraID, req)
		if errors.Is(err, ErrCameraNotInitialized) {
			continue
		}
		if err != nil {
			m.logger.Error("Failed to apply configured color space", zap.String("camera", cameraID), zap.Error(err))
			errs[cameraID] = err
		}
	}
	return errs
}

// Availability reports whether a camera offers the color space in any format
func (m *Manager) Availability(cameraID string, cs bridge.ColorSpace) (bool, error) {
	camera, err := m.lockReadyCamera(cameraID)
	if err != nil {
		return false, err
	}
	defer camera.resourceLock.Unlock()

	return m.configurator.IsAvailable(camera.Device, colorspace.ToCaptureColorSpace(cs)), nil
}

// Formats returns the camera's formats and writes them to the log
func (m *Manager) Formats(cameraID string) ([]colorspace.FormatInfo, error) {
	camera, err := m.lockReadyCamera(cameraID)
	if err != nil {
		return nil, err
	}
	defer camera.resourceLock.Unlock()

	m.configurator.LogAvailableFormats(camera.Device)
	return m.configurator.DescribeFormats(camera.Device), nil
}

// LogFormats logs diagnostics for every initialized camera
func (m *Manager) LogFormats() {
	for _, cameraID := range m.GetCameraList() {
		camera, err := m.lockReadyCamera(cameraID)
		if err != nil {
			m.logger.Warn("Skipping diagnostics for camera", zap.String("camera", cameraID), zap.Error(err))
			continue
		}
		m.configurator.LogAvailableFormats(camera.Device)
		camera.resourceLock.Unlock()
	}
}

// CheckDrift re-applies the last request of any camera whose active color
// space no longer matches what was applied
func (m *Manager) CheckDrift(ctx context.Context) int {
	reapplied := 0
	for _, cameraID := range m.GetCameraList() {
		camera, err := m.lockReadyCamera(cameraID)
		if err != nil {
			continue
		}

		if camera.lastResult == nil || camera.lastRequest == nil {
			camera.resourceLock.Unlock()
			continue
		}

		active := camera.Device.ActiveColorSpace()
		if active == camera.lastResult.Applied {
			camera.resourceLock.Unlock()
			continue
		}

		camera.logger.Warn("Color space drift detected",
			zap.Stringer("expected", camera.lastResult.Applied),
			zap.Stringer("active", active))
		m.metrics.recordDrift(ctx, cameraID)

		if _, err := m.applyLocked(ctx, camera, *camera.lastRequest, "drift"); err != nil {
			camera.logger.Error("Failed to re-apply color space after drift", zap.Error(err))
		} else {
			reapplied++
		}
		camera.resourceLock.Unlock()
	}
	return reapplied
}

// Subscribe registers a listener for configuration events
func (m *Manager) Subscribe(listener func(ConfigurationEvent)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, listener)
}

func (m *Manager) publish(event ConfigurationEvent) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()

	m.listenersMu.RLock()
	listeners := append([]func(ConfigurationEvent){}, m.listeners...)
	m.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// GetCamera returns a camera instance
func (m *Manager) GetCamera(cameraID string) (*Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	camera, exists := m.cameras[cameraID]
	if !exists {
		return nil, fmt.Errorf("camera %s: %w", cameraID, ErrCameraNotFound)
	}
	return camera, nil
}

// lockReadyCamera returns the camera with its resource lock held, or an
// error with the lock released when the device is not open. Close clears
// Device under the same lock.
func (m *Manager) lockReadyCamera(cameraID string) (*Camera, error) {
	camera, err := m.GetCamera(cameraID)
	if err != nil {
		return nil, err
	}
	camera.resourceLock.Lock()
	if camera.Device == nil {
		camera.resourceLock.Unlock()
		return nil, fmt.Errorf("camera %s: %w", cameraID, ErrCameraNotInitialized)
	}
	return camera, nil
}

// GetCameraList returns the camera IDs in sorted order
func (m *Manager) GetCameraList() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cameras := make([]string, 0, len(m.cameras))
	for id := range m.cameras {
		cameras = append(cameras, id)
	}
	sort.Strings(cameras)
	return cameras
}

// GetStatus returns status information for all cameras
func (m *Manager) GetStatus() map[string]interface{} {
	status := make(map[string]interface{})

	for _, id := range m.GetCameraList() {
		camera, _ := m.GetCamera(id)

		camera.resourceLock.Lock()
		cameraStatus := map[string]interface{}{
			"id":          camera.ID,
			"name":        camera.Config.Name,
			"backend":     camera.Config.Backend,
			"device_path": camera.Config.Device,
			"initialized": camera.Device != nil,
		}
		if !camera.initTime.IsZero() {
			cameraStatus["initialized_at"] = camera.initTime
		}

		if camera.Device != nil {
			cameraStatus["active_color_space"] = camera.Device.ActiveColorSpace().String()
			if f := camera.Device.ActiveFormat(); f != nil {
				cameraStatus["active_format"] = f.String()
			}
		}
		if camera.lastResult != nil {
			cameraStatus["last_result"] = camera.lastResult
		}
		camera.resourceLock.Unlock()

		status[id] = cameraStatus
	}

	return status
}

// Close stops the monitor and releases devices
func (m *Manager) Close() error {
	m.logger.Info("Shutting down camera manager")

	m.StopMonitor()

	for _, id := range m.GetCameraList() {
		camera, _ := m.GetCamera(id)
		camera.resourceLock.Lock()
		if closer, ok := camera.Device.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				m.logger.Error("Error closing camera device", zap.String("camera", id), zap.Error(err))
			}
		}
		camera.Device = nil
		camera.initTime = time.Time{}
		camera.resourceLock.Unlock()
	}

	m.logger.Info("Camera manager shutdown complete")
	return nil
}

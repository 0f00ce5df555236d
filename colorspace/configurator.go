package colorspace

import (
	"errors"
	"fmt"

	"capture-colorspace/bridge"
	"capture-colorspace/capture"

	"go.uber.org/zap"
)

// ConfigurationError reports that a device could not be configured at all.
// Falling back to a substitute color space is not an error.
type ConfigurationError struct {
	DeviceID string
	Op       string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuring %s: %s: %v", e.DeviceID, e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Configurator applies color spaces to devices. It holds no per-device
// state and is safe for concurrent use.
type Configurator struct {
	logger    *zap.Logger
	fallbacks FallbackTable
}

// Option customises a Configurator
type Option func(*Configurator)

// WithFallbacks replaces the default fallback table
func WithFallbacks(table FallbackTable) Option {
	return func(c *Configurator) {
		if table != nil {
			c.fallbacks = table
		}
	}
}

// New creates a configurator logging through logger
func New(logger *zap.Logger, opts ...Option) *Configurator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Configurator{
		logger:    logger,
		fallbacks: DefaultFallbacks(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fallbacks returns the table in use
func (c *Configurator) Fallbacks() FallbackTable {
	return c.fallbacks
}

// FindFormat returns the first format with the exact resolution, a frame
// rate range containing fps and support for cs, or nil when none does.
func (c *Configurator) FindFormat(device capture.Device, resolution capture.Resolution, fps float64, cs capture.ColorSpace) *capture.Format {
	for _, f := range device.Formats() {
		if f.Resolution != resolution {
			continue
		}
		if !f.SupportsFrameRate(fps) {
			continue
		}
		if !f.SupportsColorSpace(cs) {
			continue
		}
		return f
	}
	return nil
}

// Configure applies preferred to the device at the given resolution and
// frame rate. It tries the exact color space, then each fallback in table
// order, and finally keeps the current format untouched. The returned value
// is the color space actually in effect; callers compare it with the
// request to detect a fallback.
//
// All mutation happens inside the session's configuration scope and the
// device's configuration lock. A refused lock, or a failed write, returns
// a *ConfigurationError with the device left as it was.
func (c *Configurator) Configure(device capture.Device, preferred bridge.ColorSpace, resolution capture.Resolution, fps float64, session capture.Session) (capture.ColorSpace, error) {
	requested := ToCaptureColorSpace(preferred)
	logger := c.logger.With(
		zap.String("device", device.ID()),
		zap.Stringer("requested", requested),
		zap.Stringer("resolution", resolution),
		zap.Float64("fps", fps))

	// Lock before opening the session so a refused lock commits nothing
	if err := device.LockForConfiguration(); err != nil {
		logger.Error("Failed to lock device for configuration", zap.Error(err))
		return device.ActiveColorSpace(), &ConfigurationError{DeviceID: device.ID(), Op: "lock", Err: err}
	}
	defer device.UnlockForConfiguration()

	if session != nil {
		session.BeginConfiguration()
		defer session.CommitConfiguration()
	}

	for _, candidate := range c.fallbacks.Candidates(requested) {
		format := c.FindFormat(device, resolution, fps, candidate)
		if format == nil {
			logger.Debug("No format for color space", zap.Stringer("candidate", candidate))
			continue
		}

		if err := c.apply(device, format, candidate, logger); err != nil {
			return device.ActiveColorSpace(), err
		}

		if candidate != requested {
			logger.Warn("Requested color space unavailable, using fallback",
				zap.Stringer("applied", candidate),
				zap.String("format", format.String()))
		} else {
			logger.Info("Color space configured",
				zap.Stringer("applied", candidate),
				zap.String("format", format.String()))
		}
		return candidate, nil
	}

	current := device.ActiveColorSpace()
	logger.Warn("No compatible format found, keeping active configuration",
		zap.Stringer("active", current))
	return current, nil
}

// apply switches format and color space, restoring the previous pair if
// either write fails. Must be called with the device locked. When the
// restore fails too, the error carries Op "rollback" and wraps both causes.
func (c *Configurator) apply(device capture.Device, format *capture.Format, cs capture.ColorSpace, logger *zap.Logger) error {
	prevFormat := device.ActiveFormat()
	prevColorSpace := device.ActiveColorSpace()

	if !sameFormat(prevFormat, format) {
		if err := device.SetActiveFormat(format); err != nil {
			logger.Error("Failed to set active format", zap.String("format", format.String()), zap.Error(err))
			return c.rollback(device, prevFormat, prevColorSpace, "set format", err, logger)
		}
	}

	if err := device.SetActiveColorSpace(cs); err != nil {
		logger.Error("Failed to set color space", zap.Stringer("color_space", cs), zap.Error(err))
		return c.rollback(device, prevFormat, prevColorSpace, "set color space", err, logger)
	}
	return nil
}

func (c *Configurator) rollback(device capture.Device, format *capture.Format, cs capture.ColorSpace, op string, cause error, logger *zap.Logger) error {
	if err := c.restore(device, format, cs); err != nil {
		logger.Error("Failed to restore previous configuration",
			zap.Stringer("color_space", cs),
			zap.Error(err))
		return &ConfigurationError{DeviceID: device.ID(), Op: "rollback", Err: errors.Join(cause, err)}
	}
	return &ConfigurationError{DeviceID: device.ID(), Op: op, Err: cause}
}

func (c *Configurator) restore(device capture.Device, format *capture.Format, cs capture.ColorSpace) error {
	if format != nil && !sameFormat(device.ActiveFormat(), format) {
		if err := device.SetActiveFormat(format); err != nil {
			return fmt.Errorf("restore format %s: %w", format, err)
		}
	}
	if device.ActiveColorSpace() != cs {
		if err := device.SetActiveColorSpace(cs); err != nil {
			return fmt.Errorf("restore color space %s: %w", cs, err)
		}
	}
	return nil
}

// sameFormat compares handles by identity, then by ID for backends that
// rebuild format handles on every enumeration
func sameFormat(a, b *capture.Format) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b || (a.ID != "" && a.ID == b.ID)
}

// IsAvailable reports whether any format on the device supports cs,
// regardless of resolution and frame rate
func (c *Configurator) IsAvailable(device capture.Device, cs capture.ColorSpace) bool {
	for _, f := range device.Formats() {
		if f.SupportsColorSpace(cs) {
			return true
		}
	}
	return false
}

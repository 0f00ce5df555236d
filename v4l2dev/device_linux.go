//go:build linux

package v4l2dev

import (
	"fmt"
	"sync"

	"capture-colorspace/capture"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"
)

// Device is a V4L2 capture node
type Device struct {
	id     string
	path   string
	maxFPS int
	dev    *device.Device
	logger *zap.Logger

	configMu sync.Mutex
	mu       sync.Mutex
	locked   bool
}

// Open opens the device node at path. Frame-rate ranges are reported as
// 1..maxFPS for every format.
func Open(id, path string, maxFPS int, logger *zap.Logger) (capture.Device, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if maxFPS <= 0 {
		maxFPS = 30
	}

	return &Device{
		id:     id,
		path:   path,
		maxFPS: maxFPS,
		dev:    dev,
		logger: logger.With(zap.String("device", id), zap.String("path", path)),
	}, nil
}

func (d *Device) ID() string   { return d.id }
func (d *Device) Name() string { return d.path }

// Formats enumerates pixel formats and their frame sizes
func (d *Device) Formats() []*capture.Format {
	descs, err := v4l2.GetAllFormatDescriptions(d.dev.Fd())
	if err != nil {
		d.logger.Warn("Failed to enumerate formats", zap.Error(err))
		return nil
	}

	rates := []capture.FrameRateRange{{Min: 1, Max: float64(d.maxFPS)}}
	var formats []*capture.Format
	for _, desc := range descs {
		pixelFormat := fourCC(uint32(desc.PixelFormat))
		spaces := supportedColorSpaces(pixelFormat, uint32(desc.Flags))

		sizes, err := v4l2.GetFormatFrameSizes(d.dev.Fd(), desc.PixelFormat)
		if err != nil {
			d.logger.Debug("Failed to enumerate frame sizes",
				zap.String("pixel_format", pixelFormat),
				zap.Error(err))
			continue
		}

		for _, size := range sizes {
			var resolutions []capture.Resolution
			if uint32(size.Type) == frmsizeTypeDiscrete {
				resolutions = []capture.Resolution{{Width: int(size.Size.MinWidth), Height: int(size.Size.MinHeight)}}
			} else {
				resolutions = expandFrameSizes(frameSizeRange{
					MinWidth:   size.Size.MinWidth,
					MaxWidth:   size.Size.MaxWidth,
					StepWidth:  size.Size.StepWidth,
					MinHeight:  size.Size.MinHeight,
					MaxHeight:  size.Size.MaxHeight,
					StepHeight: size.Size.StepHeight,
				})
			}

			for _, res := range resolutions {
				formats = append(formats, &capture.Format{
					ID:          formatID(pixelFormat, res),
					PixelFormat: pixelFormat,
					Resolution:  res,
					FrameRates:  rates,
					ColorSpaces: spaces,
				})
			}
		}
	}
	return formats
}

// ActiveFormat returns the enumerated format matching the driver's
// current pixel format, or nil when it is not part of the enumeration
func (d *Device) ActiveFormat() *capture.Format {
	pix, err := d.dev.GetPixFormat()
	if err != nil {
		d.logger.Warn("Failed to read pixel format", zap.Error(err))
		return nil
	}

	id := formatID(fourCC(uint32(pix.PixelFormat)), capture.Resolution{Width: int(pix.Width), Height: int(pix.Height)})
	for _, f := range d.Formats() {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (d *Device) ActiveColorSpace() capture.ColorSpace {
	pix, err := d.dev.GetPixFormat()
	if err != nil {
		d.logger.Warn("Failed to read pixel format", zap.Error(err))
		return capture.ColorSpaceSRGB
	}
	cs, ok := fromV4L2(uint32(pix.Colorspace), uint32(pix.XferFunc))
	if !ok {
		return capture.ColorSpaceSRGB
	}
	return cs
}

// LockForConfiguration refuses rather than waits when another client of
// this process is configuring the node
func (d *Device) LockForConfiguration() error {
	if !d.configMu.TryLock() {
		return fmt.Errorf("%s: %w", d.id, capture.ErrLockRefused)
	}
	d.mu.Lock()
	d.locked = true
	d.mu.Unlock()
	return nil
}

func (d *Device) UnlockForConfiguration() {
	d.mu.Lock()
	if !d.locked {
		d.mu.Unlock()
		return
	}
	d.locked = false
	d.mu.Unlock()
	d.configMu.Unlock()
}

func (d *Device) isLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

func (d *Device) SetActiveFormat(f *capture.Format) error {
	if !d.isLocked() {
		return capture.ErrNotLocked
	}

	var code uint32
	for _, desc := range d.descriptions() {
		if fourCC(uint32(desc.PixelFormat)) == f.PixelFormat {
			code = uint32(desc.PixelFormat)
			break
		}
	}
	if code == 0 {
		return capture.ErrFormatNotOffered
	}

	err := d.dev.SetPixFormat(v4l2.PixFormat{
		PixelFormat: code,
		Width:       uint32(f.Resolution.Width),
		Height:      uint32(f.Resolution.Height),
		Field:       v4l2.FieldNone,
	})
	if err != nil {
		return fmt.Errorf("failed to set pixel format: %w", err)
	}
	return nil
}

// SetActiveColorSpace asks the driver to convert into cs and checks the
// value it echoes back
func (d *Device) SetActiveColorSpace(cs capture.ColorSpace) error {
	if !d.isLocked() {
		return capture.ErrNotLocked
	}
	colorspace, xfer, ok := toV4L2(cs)
	if !ok {
		return capture.ErrColorSpaceUnsupported
	}

	pix, err := d.dev.GetPixFormat()
	if err != nil {
		return fmt.Errorf("failed to read pixel format: %w", err)
	}
	pix.Colorspace = colorspace
	pix.XferFunc = xfer
	pix.Flags |= pixFmtFlagSetCSC

	if err := d.dev.SetPixFormat(pix); err != nil {
		return fmt.Errorf("failed to set colorspace: %w", err)
	}

	if got := d.ActiveColorSpace(); got != cs {
		return fmt.Errorf("driver kept %s: %w", got, capture.ErrColorSpaceUnsupported)
	}
	return nil
}

// Close releases the device node
func (d *Device) Close() error {
	return d.dev.Close()
}

func (d *Device) descriptions() []v4l2.FormatDescription {
	descs, err := v4l2.GetAllFormatDescriptions(d.dev.Fd())
	if err != nil {
		d.logger.Warn("Failed to enumerate formats", zap.Error(err))
		return nil
	}
	return descs
}

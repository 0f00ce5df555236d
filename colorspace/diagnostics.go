package colorspace

import (
	"capture-colorspace/capture"

	"go.uber.org/zap"
)

// FormatInfo is a read-only description of one device format
type FormatInfo struct {
	Index       int                      `json:"index"`
	ID          string                   `json:"id"`
	PixelFormat string                   `json:"pixel_format"`
	Resolution  capture.Resolution       `json:"resolution"`
	FrameRates  []capture.FrameRateRange `json:"frame_rates"`
	ColorSpaces []capture.ColorSpace     `json:"color_spaces"`
	Active      bool                     `json:"active"`
}

// DescribeFormats lists every format the device offers with its color
// space support
func (c *Configurator) DescribeFormats(device capture.Device) []FormatInfo {
	active := device.ActiveFormat()
	formats := device.Formats()

	infos := make([]FormatInfo, 0, len(formats))
	for i, f := range formats {
		infos = append(infos, FormatInfo{
			Index:       i,
			ID:          f.ID,
			PixelFormat: f.PixelFormat,
			Resolution:  f.Resolution,
			FrameRates:  f.FrameRates,
			ColorSpaces: f.ColorSpaces,
			Active:      sameFormat(active, f),
		})
	}
	return infos
}

// LogAvailableFormats writes one log line per device format for
// troubleshooting. It never touches device state.
func (c *Configurator) LogAvailableFormats(device capture.Device) {
	infos := c.DescribeFormats(device)
	logger := c.logger.With(zap.String("device", device.ID()))

	logger.Info("Available formats",
		zap.String("name", device.Name()),
		zap.Int("count", len(infos)),
		zap.Stringer("active_color_space", device.ActiveColorSpace()))

	for _, info := range infos {
		rates := make([]string, 0, len(info.FrameRates))
		for _, r := range info.FrameRates {
			rates = append(rates, r.String())
		}
		spaces := make([]string, 0, len(info.ColorSpaces))
		for _, cs := range info.ColorSpaces {
			spaces = append(spaces, cs.String())
		}

		logger.Info("Format",
			zap.Int("index", info.Index),
			zap.String("pixel_format", info.PixelFormat),
			zap.Stringer("resolution", info.Resolution),
			zap.Strings("frame_rates", rates),
			zap.Strings("color_spaces", spaces),
			zap.Bool("active", info.Active))
	}
}

// Package capture describes the boundary to the platform capture framework:
// devices, the formats they offer and the sessions that scope their
// configuration. Handles are borrowed by callers and never owned.
package capture

import (
	"fmt"
	"strings"
)

// ColorSpace is a framework-native color space value
type ColorSpace int

const (
	ColorSpaceSRGB ColorSpace = iota
	ColorSpaceP3D65
	ColorSpaceHLGBT2020
	ColorSpaceAppleLog
)

func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceSRGB:
		return "sRGB"
	case ColorSpaceP3D65:
		return "P3_D65"
	case ColorSpaceHLGBT2020:
		return "HLG_BT2020"
	case ColorSpaceAppleLog:
		return "AppleLog"
	}
	return fmt.Sprintf("ColorSpace(%d)", int(c))
}

// MarshalText renders the native name so JSON diagnostics stay readable
func (c ColorSpace) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Resolution is a frame size in pixels
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// FrameRateRange is an inclusive range of frames per second
type FrameRateRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether fps lies inside the range
func (r FrameRateRange) Contains(fps float64) bool {
	return fps >= r.Min && fps <= r.Max
}

func (r FrameRateRange) String() string {
	return fmt.Sprintf("%g-%g", r.Min, r.Max)
}

// Format is one discrete resolution / frame-rate / color-space combination
// offered by a device. Devices hand out pointers; identity matters when a
// format is passed back to SetActiveFormat.
type Format struct {
	ID          string           `json:"id"`
	PixelFormat string           `json:"pixel_format"`
	Resolution  Resolution       `json:"resolution"`
	FrameRates  []FrameRateRange `json:"frame_rates"`
	ColorSpaces []ColorSpace     `json:"color_spaces"`
}

// SupportsFrameRate reports whether any frame-rate range contains fps
func (f *Format) SupportsFrameRate(fps float64) bool {
	for _, r := range f.FrameRates {
		if r.Contains(fps) {
			return true
		}
	}
	return false
}

// SupportsColorSpace reports whether the format lists the color space
func (f *Format) SupportsColorSpace(cs ColorSpace) bool {
	for _, c := range f.ColorSpaces {
		if c == cs {
			return true
		}
	}
	return false
}

func (f *Format) String() string {
	rates := make([]string, 0, len(f.FrameRates))
	for _, r := range f.FrameRates {
		rates = append(rates, r.String())
	}
	return fmt.Sprintf("%s %s @ [%s] fps", f.PixelFormat, f.Resolution, strings.Join(rates, ", "))
}

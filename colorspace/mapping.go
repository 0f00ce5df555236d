// Package colorspace selects and applies capture color spaces on a device,
// degrading through an explicit fallback table when the device cannot carry
// the requested one.
package colorspace

import (
	"fmt"

	"capture-colorspace/bridge"
	"capture-colorspace/capture"
)

// ToCaptureColorSpace maps a host selector to the native color space. Every
// selector must be mapped; an unknown value is a programming error.
func ToCaptureColorSpace(cs bridge.ColorSpace) capture.ColorSpace {
	switch cs {
	case bridge.SRGB:
		return capture.ColorSpaceSRGB
	case bridge.P3D65:
		return capture.ColorSpaceP3D65
	case bridge.HLGBT2020:
		return capture.ColorSpaceHLGBT2020
	case bridge.AppleLog:
		return capture.ColorSpaceAppleLog
	}
	panic(fmt.Sprintf("colorspace: selector %v has no native mapping", cs))
}

// Fail at startup rather than at the first request when the selector
// enumeration grows without a matching case above.
func init() {
	for _, cs := range bridge.AllColorSpaces() {
		ToCaptureColorSpace(cs)
	}
}

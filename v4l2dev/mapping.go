// Package v4l2dev exposes Video4Linux2 capture devices through the
// capture.Device interface. Color spaces are expressed with the V4L2
// colorspace and transfer-function fields of the pixel format.
package v4l2dev

import (
	"fmt"

	"capture-colorspace/capture"
)

// Values from <linux/videodev2.h>
const (
	colorspaceDefault uint32 = 0
	colorspaceREC709  uint32 = 3
	colorspaceJPEG    uint32 = 7
	colorspaceSRGB    uint32 = 8
	colorspaceBT2020  uint32 = 10
	colorspaceDCIP3   uint32 = 12

	xferFuncDefault   uint32 = 0
	xferFunc709       uint32 = 1
	xferFuncSRGB      uint32 = 2
	xferFuncDCIP3     uint32 = 6
	xferFuncSMPTE2084 uint32 = 7

	fmtFlagCompressed    uint32 = 0x0001
	fmtFlagCSCColorspace uint32 = 0x0040
	fmtFlagCSCXferFunc   uint32 = 0x0080

	pixFmtFlagSetCSC uint32 = 0x00000002

	frmsizeTypeDiscrete   uint32 = 1
	frmsizeTypeContinuous uint32 = 2
	frmsizeTypeStepwise   uint32 = 3
)

// toV4L2 returns the colorspace and transfer function requested for cs.
// Apple Log has no V4L2 representation.
//
// videodev2.h defines no HLG transfer function, so HLG is written as
// BT.2020 with the 709 curve. The mapping is lossy: fromV4L2 reads every
// non-PQ BT.2020 format back as HLG, and SDR BT.2020 cannot be told apart
// from it.
func toV4L2(cs capture.ColorSpace) (colorspace, xfer uint32, ok bool) {
	switch cs {
	case capture.ColorSpaceSRGB:
		return colorspaceSRGB, xferFuncSRGB, true
	case capture.ColorSpaceP3D65:
		return colorspaceDCIP3, xferFuncSRGB, true
	case capture.ColorSpaceHLGBT2020:
		return colorspaceBT2020, xferFunc709, true
	}
	return 0, 0, false
}

// fromV4L2 interprets a driver-reported colorspace. Default and legacy
// broadcast colorspaces read as sRGB; PQ-coded BT.2020 is not one of ours.
func fromV4L2(colorspace, xfer uint32) (capture.ColorSpace, bool) {
	switch colorspace {
	case colorspaceDefault, colorspaceREC709, colorspaceJPEG, colorspaceSRGB:
		return capture.ColorSpaceSRGB, true
	case colorspaceDCIP3:
		return capture.ColorSpaceP3D65, true
	case colorspaceBT2020:
		if xfer == xferFuncSMPTE2084 {
			return 0, false
		}
		return capture.ColorSpaceHLGBT2020, true
	}
	return 0, false
}

// Pixel formats carrying more than 8 bits per sample
var highBitDepth = map[string]bool{
	"P010": true,
	"P012": true,
	"P016": true,
	"NV15": true,
	"Y210": true,
	"Y212": true,
	"Y216": true,
}

// supportedColorSpaces derives what a format can be asked to produce.
// Every format carries sRGB; wide gamut and HLG need either a high bit
// depth format or a driver that accepts colorspace conversion requests.
func supportedColorSpaces(pixelFormat string, flags uint32) []capture.ColorSpace {
	spaces := []capture.ColorSpace{capture.ColorSpaceSRGB}
	if flags&fmtFlagCompressed != 0 && flags&fmtFlagCSCColorspace == 0 {
		return spaces
	}
	if highBitDepth[pixelFormat] || flags&fmtFlagCSCColorspace != 0 {
		spaces = append(spaces, capture.ColorSpaceP3D65, capture.ColorSpaceHLGBT2020)
	}
	return spaces
}

// fourCC renders a little-endian pixel format code
func fourCC(code uint32) string {
	b := []byte{
		byte(code & 0xFF),
		byte((code >> 8) & 0xFF),
		byte((code >> 16) & 0xFF),
		byte((code >> 24) & 0xFF),
	}
	return string(b)
}

func formatID(pixelFormat string, r capture.Resolution) string {
	return fmt.Sprintf("%s-%s", pixelFormat, r)
}

// frameSizeRange is a stepwise or continuous size enumeration entry
type frameSizeRange struct {
	MinWidth, MaxWidth, StepWidth    uint32
	MinHeight, MaxHeight, StepHeight uint32
}

var commonResolutions = []capture.Resolution{
	{Width: 320, Height: 240},
	{Width: 640, Height: 480},
	{Width: 800, Height: 600},
	{Width: 1024, Height: 768},
	{Width: 1280, Height: 720},
	{Width: 1280, Height: 960},
	{Width: 1920, Height: 1080},
	{Width: 1920, Height: 1200},
	{Width: 2560, Height: 1440},
	{Width: 3840, Height: 2160},
	{Width: 4096, Height: 2160},
}

// expandFrameSizes picks the common resolutions a stepwise range admits
func expandFrameSizes(r frameSizeRange) []capture.Resolution {
	var out []capture.Resolution
	for _, res := range commonResolutions {
		w, h := uint32(res.Width), uint32(res.Height)
		if w < r.MinWidth || w > r.MaxWidth || h < r.MinHeight || h > r.MaxHeight {
			continue
		}
		if r.StepWidth > 1 && (w-r.MinWidth)%r.StepWidth != 0 {
			continue
		}
		if r.StepHeight > 1 && (h-r.MinHeight)%r.StepHeight != 0 {
			continue
		}
		out = append(out, res)
	}
	return out
}

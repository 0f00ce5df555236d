package colorspace

import (
	"capture-colorspace/bridge"
	"capture-colorspace/capture"
)

// FallbackTable lists, per requested color space, the substitutes tried in
// order when the device cannot carry the request at the wanted
// resolution and frame rate.
type FallbackTable map[capture.ColorSpace][]capture.ColorSpace

// DefaultFallbacks degrades log and HDR capture towards SDR
func DefaultFallbacks() FallbackTable {
	return FallbackTable{
		capture.ColorSpaceAppleLog:  {capture.ColorSpaceHLGBT2020, capture.ColorSpaceP3D65, capture.ColorSpaceSRGB},
		capture.ColorSpaceHLGBT2020: {capture.ColorSpaceP3D65, capture.ColorSpaceSRGB},
		capture.ColorSpaceP3D65:     {capture.ColorSpaceSRGB},
		capture.ColorSpaceSRGB:      nil,
	}
}

// FallbacksFromSelectors builds a table from host selectors, as read from
// configuration. Requested spaces missing from m keep their default entry.
func FallbacksFromSelectors(m map[bridge.ColorSpace][]bridge.ColorSpace) FallbackTable {
	table := DefaultFallbacks()
	for requested, substitutes := range m {
		native := make([]capture.ColorSpace, 0, len(substitutes))
		for _, s := range substitutes {
			native = append(native, ToCaptureColorSpace(s))
		}
		table[ToCaptureColorSpace(requested)] = native
	}
	return table
}

// Candidates returns the requested space followed by its substitutes, with
// duplicates removed
func (t FallbackTable) Candidates(requested capture.ColorSpace) []capture.ColorSpace {
	out := []capture.ColorSpace{requested}
	seen := map[capture.ColorSpace]bool{requested: true}
	for _, cs := range t[requested] {
		if seen[cs] {
			continue
		}
		seen[cs] = true
		out = append(out, cs)
	}
	return out
}

// Package bridge holds the color-space selector exchanged with the host
// plugin layer. Values are fixed by that layer's generated interface and
// must stay in lockstep with it.
package bridge

import (
	"fmt"
	"strings"
)

// ColorSpace is the application-level color-space selector
type ColorSpace int

const (
	SRGB ColorSpace = iota
	P3D65
	HLGBT2020
	AppleLog
)

var colorSpaceNames = map[ColorSpace]string{
	SRGB:      "srgb",
	P3D65:     "p3_d65",
	HLGBT2020: "hlg_bt2020",
	AppleLog:  "apple_log",
}

// AllColorSpaces returns every selector value the host layer can produce
func AllColorSpaces() []ColorSpace {
	return []ColorSpace{SRGB, P3D65, HLGBT2020, AppleLog}
}

// String returns the wire name of the selector
func (c ColorSpace) String() string {
	if name, ok := colorSpaceNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ColorSpace(%d)", int(c))
}

// ParseColorSpace converts a wire name into a selector. Matching ignores
// case, and dashes are accepted in place of underscores.
func ParseColorSpace(s string) (ColorSpace, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for c, n := range colorSpaceNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown color space %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (c ColorSpace) MarshalText() ([]byte, error) {
	if _, ok := colorSpaceNames[c]; !ok {
		return nil, fmt.Errorf("unknown color space %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ColorSpace) UnmarshalText(text []byte) error {
	parsed, err := ParseColorSpace(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

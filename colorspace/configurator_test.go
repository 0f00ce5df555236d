package colorspace

import (
	"errors"
	"strings"
	"testing"

	"capture-colorspace/bridge"
	"capture-colorspace/capture"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var hd = capture.Resolution{Width: 1920, Height: 1080}

// sdrOnlyDevice offers sRGB and P3 at 1080p, and a 4K sRGB format
func sdrOnlyDevice() *capture.VirtualDevice {
	return capture.NewVirtualDevice("back", "Back Camera", []*capture.Format{
		{
			ID:          "4k-sdr",
			PixelFormat: "420v",
			Resolution:  capture.Resolution{Width: 3840, Height: 2160},
			FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 30}},
			ColorSpaces: []capture.ColorSpace{capture.ColorSpaceSRGB},
		},
		{
			ID:          "hd-sdr",
			PixelFormat: "420v",
			Resolution:  hd,
			FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 60}},
			ColorSpaces: []capture.ColorSpace{capture.ColorSpaceSRGB},
		},
		{
			ID:          "hd-p3",
			PixelFormat: "420f",
			Resolution:  hd,
			FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 30}},
			ColorSpaces: []capture.ColorSpace{capture.ColorSpaceSRGB, capture.ColorSpaceP3D65},
		},
	})
}

// hdrDevice adds an HLG-capable 10-bit format at 1080p
func hdrDevice() *capture.VirtualDevice {
	return capture.NewVirtualDevice("front", "Front Camera", []*capture.Format{
		{
			ID:          "hd-sdr",
			PixelFormat: "420v",
			Resolution:  hd,
			FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 30}},
			ColorSpaces: []capture.ColorSpace{capture.ColorSpaceSRGB},
		},
		{
			ID:          "hd-hlg",
			PixelFormat: "x420",
			Resolution:  hd,
			FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 30}},
			ColorSpaces: []capture.ColorSpace{capture.ColorSpaceHLGBT2020, capture.ColorSpaceP3D65},
		},
	})
}

func TestToCaptureColorSpaceIsTotal(t *testing.T) {
	seen := make(map[capture.ColorSpace]bridge.ColorSpace)
	for _, sel := range bridge.AllColorSpaces() {
		native := ToCaptureColorSpace(sel)
		if prev, dup := seen[native]; dup {
			t.Errorf("%v and %v both map to %v", prev, sel, native)
		}
		seen[native] = sel
	}
}

func TestToCaptureColorSpacePanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unmapped selector")
		}
	}()
	ToCaptureColorSpace(bridge.ColorSpace(99))
}

func TestFindFormat(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := sdrOnlyDevice()

	tests := []struct {
		name       string
		resolution capture.Resolution
		fps        float64
		cs         capture.ColorSpace
		wantID     string
	}{
		{"first match wins", hd, 30, capture.ColorSpaceSRGB, "hd-sdr"},
		{"color space narrows", hd, 30, capture.ColorSpaceP3D65, "hd-p3"},
		{"frame rate narrows", hd, 60, capture.ColorSpaceSRGB, "hd-sdr"},
		{"frame rate outside every range", hd, 60, capture.ColorSpaceP3D65, ""},
		{"resolution must match exactly", capture.Resolution{Width: 1280, Height: 720}, 30, capture.ColorSpaceSRGB, ""},
		{"unsupported color space", hd, 30, capture.ColorSpaceHLGBT2020, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.FindFormat(device, tt.resolution, tt.fps, tt.cs)
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("FindFormat = %s, want nil", got.ID)
				}
				return
			}
			if got == nil {
				t.Fatalf("FindFormat = nil, want %s", tt.wantID)
			}
			if got.ID != tt.wantID {
				t.Errorf("FindFormat = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestConfigureExactMatch(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := hdrDevice()
	session := capture.NewSession()

	applied, err := c.Configure(device, bridge.HLGBT2020, hd, 30, session)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if applied != capture.ColorSpaceHLGBT2020 {
		t.Errorf("applied = %v, want HLG_BT2020", applied)
	}
	if device.ActiveFormat().ID != "hd-hlg" {
		t.Errorf("ActiveFormat = %s, want hd-hlg", device.ActiveFormat().ID)
	}
	if device.ActiveColorSpace() != capture.ColorSpaceHLGBT2020 {
		t.Errorf("ActiveColorSpace = %v, want HLG_BT2020", device.ActiveColorSpace())
	}
	if session.Commits() != 1 || session.InConfiguration() {
		t.Errorf("session commits = %d, open = %v", session.Commits(), session.InConfiguration())
	}
}

func TestConfigureFallsBackToSDR(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := capture.NewVirtualDevice("cam", "SDR Camera", []*capture.Format{{
		ID:          "hd-sdr",
		PixelFormat: "420v",
		Resolution:  hd,
		FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 30}},
		ColorSpaces: []capture.ColorSpace{capture.ColorSpaceSRGB},
	}})

	applied, err := c.Configure(device, bridge.HLGBT2020, hd, 30, capture.NewSession())
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if applied != capture.ColorSpaceSRGB {
		t.Errorf("applied = %v, want sRGB fallback", applied)
	}
	if !c.IsAvailable(device, applied) {
		t.Error("Expected fallback color space to be available")
	}
}

func TestConfigureFallbackOrder(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := sdrOnlyDevice()

	// HLG is missing; P3 precedes sRGB in the table
	applied, err := c.Configure(device, bridge.HLGBT2020, hd, 30, capture.NewSession())
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if applied != capture.ColorSpaceP3D65 {
		t.Errorf("applied = %v, want P3_D65", applied)
	}
	if device.ActiveFormat().ID != "hd-p3" {
		t.Errorf("ActiveFormat = %s, want hd-p3", device.ActiveFormat().ID)
	}
}

func TestConfigureCustomFallbacks(t *testing.T) {
	table := FallbacksFromSelectors(map[bridge.ColorSpace][]bridge.ColorSpace{
		bridge.HLGBT2020: {bridge.SRGB},
	})
	c := New(zaptest.NewLogger(t), WithFallbacks(table))
	device := sdrOnlyDevice()

	applied, err := c.Configure(device, bridge.HLGBT2020, hd, 30, capture.NewSession())
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if applied != capture.ColorSpaceSRGB {
		t.Errorf("applied = %v, want sRGB", applied)
	}
	if device.ActiveFormat().ID != "hd-sdr" {
		t.Errorf("ActiveFormat = %s, want hd-sdr", device.ActiveFormat().ID)
	}
}

func TestConfigureKeepsActiveWhenNothingMatches(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := sdrOnlyDevice()
	before := device.ActiveFormat()

	applied, err := c.Configure(device, bridge.SRGB, capture.Resolution{Width: 640, Height: 480}, 30, capture.NewSession())
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if applied != capture.ColorSpaceSRGB {
		t.Errorf("applied = %v, want active sRGB", applied)
	}
	if device.ActiveFormat() != before {
		t.Error("Active format changed although no format matched")
	}
}

func TestConfigureLockFailureLeavesDeviceUntouched(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := hdrDevice()
	device.RefuseLock(true)
	session := capture.NewSession()

	beforeFormat := device.ActiveFormat()
	beforeCS := device.ActiveColorSpace()

	applied, err := c.Configure(device, bridge.HLGBT2020, hd, 30, session)
	if err == nil {
		t.Fatal("Expected configuration error")
	}

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error %v is not a ConfigurationError", err)
	}
	if cfgErr.Op != "lock" || cfgErr.DeviceID != "front" {
		t.Errorf("ConfigurationError = %+v", cfgErr)
	}
	if !errors.Is(err, capture.ErrLockRefused) {
		t.Error("Expected error to wrap ErrLockRefused")
	}

	if applied != beforeCS {
		t.Errorf("applied = %v, want unchanged %v", applied, beforeCS)
	}
	if device.ActiveFormat() != beforeFormat || device.ActiveColorSpace() != beforeCS {
		t.Error("Device state changed after lock failure")
	}
	if session.InConfiguration() {
		t.Error("Session scope left open after lock failure")
	}
}

func TestConfigureRollsBackFailedColorSpaceWrite(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := hdrDevice()
	device.FailColorSpaceWrites(true)

	_, err := c.Configure(device, bridge.HLGBT2020, hd, 30, capture.NewSession())
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Configure error = %v, want ConfigurationError", err)
	}
	if cfgErr.Op != "set color space" {
		t.Errorf("Op = %q, want set color space", cfgErr.Op)
	}

	if device.ActiveFormat().ID != "hd-sdr" {
		t.Errorf("ActiveFormat = %s, want restored hd-sdr", device.ActiveFormat().ID)
	}
	if device.ActiveColorSpace() != capture.ColorSpaceSRGB {
		t.Errorf("ActiveColorSpace = %v, want restored sRGB", device.ActiveColorSpace())
	}

	// Lock must have been released on the error path
	if err := device.LockForConfiguration(); err != nil {
		t.Errorf("Device still locked after failed configure: %v", err)
	}
	device.UnlockForConfiguration()
}

// wideGamutDevice defaults to sRGB on its SDR format but also carries P3
func wideGamutDevice() *capture.VirtualDevice {
	return capture.NewVirtualDevice("side", "Side Camera", []*capture.Format{
		{
			ID:          "hd-sdr",
			PixelFormat: "420v",
			Resolution:  hd,
			FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 30}},
			ColorSpaces: []capture.ColorSpace{capture.ColorSpaceSRGB, capture.ColorSpaceP3D65},
		},
		{
			ID:          "hd-hlg",
			PixelFormat: "x420",
			Resolution:  hd,
			FrameRates:  []capture.FrameRateRange{{Min: 1, Max: 30}},
			ColorSpaces: []capture.ColorSpace{capture.ColorSpaceHLGBT2020},
		},
	})
}

// rejectingDevice refuses every color space write, including the one that
// would restore the previous configuration
type rejectingDevice struct {
	*capture.VirtualDevice
}

var errDriverRejected = errors.New("driver rejected color space")

func (d rejectingDevice) SetActiveColorSpace(capture.ColorSpace) error {
	return errDriverRejected
}

func TestConfigureRestoresNonDefaultColorSpace(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := wideGamutDevice()

	if applied, err := c.Configure(device, bridge.P3D65, hd, 30, nil); err != nil || applied != capture.ColorSpaceP3D65 {
		t.Fatalf("Configure(P3) = %v, %v", applied, err)
	}
	device.FailColorSpaceWrites(true)

	_, err := c.Configure(device, bridge.HLGBT2020, hd, 30, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Configure error = %v, want ConfigurationError", err)
	}
	if cfgErr.Op != "set color space" {
		t.Errorf("Op = %q, want set color space", cfgErr.Op)
	}

	if device.ActiveFormat().ID != "hd-sdr" {
		t.Errorf("ActiveFormat = %s, want restored hd-sdr", device.ActiveFormat().ID)
	}
	if device.ActiveColorSpace() != capture.ColorSpaceP3D65 {
		t.Errorf("ActiveColorSpace = %v, want restored P3_D65", device.ActiveColorSpace())
	}
}

func TestConfigureReportsFailedRollback(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	virtual := wideGamutDevice()
	if _, err := c.Configure(virtual, bridge.P3D65, hd, 30, nil); err != nil {
		t.Fatalf("Configure(P3) failed: %v", err)
	}
	device := rejectingDevice{virtual}

	_, err := c.Configure(device, bridge.HLGBT2020, hd, 30, capture.NewSession())
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Configure error = %v, want ConfigurationError", err)
	}
	if cfgErr.Op != "rollback" {
		t.Errorf("Op = %q, want rollback", cfgErr.Op)
	}
	if !errors.Is(err, errDriverRejected) {
		t.Errorf("error %v does not wrap the driver rejection", err)
	}
	if !strings.Contains(err.Error(), "restore color space") {
		t.Errorf("error %q does not describe the failed restore", err)
	}

	// The device is in neither the requested nor the previous state, and
	// the error says so
	if virtual.ActiveColorSpace() == capture.ColorSpaceP3D65 {
		t.Error("Expected the previous color space to be lost")
	}

	if err := virtual.LockForConfiguration(); err != nil {
		t.Errorf("Device still locked after failed rollback: %v", err)
	}
	virtual.UnlockForConfiguration()
}

func TestConfigureLockFailureDoesNotCommit(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := hdrDevice()
	device.RefuseLock(true)

	session := capture.NewSession()
	hookRuns := 0
	session.OnCommit(func() { hookRuns++ })

	if _, err := c.Configure(device, bridge.P3D65, hd, 30, session); err == nil {
		t.Fatal("Expected configuration error")
	}
	if session.Commits() != 0 || hookRuns != 0 {
		t.Errorf("Commits = %d, hook runs = %d after refused lock, want 0 and 0", session.Commits(), hookRuns)
	}

	device.RefuseLock(false)
	if _, err := c.Configure(device, bridge.P3D65, hd, 30, session); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if session.Commits() != 1 || hookRuns != 1 {
		t.Errorf("Commits = %d, hook runs = %d, want 1 and 1", session.Commits(), hookRuns)
	}
}

func TestConfigureWithoutSession(t *testing.T) {
	c := New(nil)
	device := hdrDevice()

	applied, err := c.Configure(device, bridge.P3D65, hd, 24, nil)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if applied != capture.ColorSpaceP3D65 {
		t.Errorf("applied = %v, want P3_D65", applied)
	}
}

func TestIsAvailable(t *testing.T) {
	c := New(zaptest.NewLogger(t))

	device := hdrDevice()
	if !c.IsAvailable(device, capture.ColorSpaceHLGBT2020) {
		t.Error("Expected HLG_BT2020 to be available")
	}
	if c.IsAvailable(device, capture.ColorSpaceAppleLog) {
		t.Error("AppleLog should not be available")
	}

	empty := capture.NewVirtualDevice("empty", "No Formats", nil)
	for _, sel := range bridge.AllColorSpaces() {
		if c.IsAvailable(empty, ToCaptureColorSpace(sel)) {
			t.Errorf("%v reported available on device with zero formats", sel)
		}
	}
}

func TestCandidates(t *testing.T) {
	table := FallbackTable{
		capture.ColorSpaceAppleLog: {capture.ColorSpaceAppleLog, capture.ColorSpaceSRGB, capture.ColorSpaceSRGB},
	}

	got := table.Candidates(capture.ColorSpaceAppleLog)
	want := []capture.ColorSpace{capture.ColorSpaceAppleLog, capture.ColorSpaceSRGB}
	if len(got) != len(want) {
		t.Fatalf("Candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Candidates[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if got := table.Candidates(capture.ColorSpaceP3D65); len(got) != 1 {
		t.Errorf("Candidates for unlisted space = %v, want only the request", got)
	}
}

func TestDefaultFallbacksEndInSDR(t *testing.T) {
	for _, sel := range bridge.AllColorSpaces() {
		requested := ToCaptureColorSpace(sel)
		candidates := DefaultFallbacks().Candidates(requested)
		if last := candidates[len(candidates)-1]; last != capture.ColorSpaceSRGB {
			t.Errorf("fallbacks for %v end with %v, want sRGB", requested, last)
		}
	}
}

func TestLogAvailableFormats(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := New(zap.New(core))
	device := sdrOnlyDevice()

	c.LogAvailableFormats(device)

	if got := logs.FilterMessage("Available formats").Len(); got != 1 {
		t.Errorf("summary lines = %d, want 1", got)
	}
	formatLines := logs.FilterMessage("Format").All()
	if len(formatLines) != 3 {
		t.Fatalf("format lines = %d, want 3", len(formatLines))
	}
	if got := formatLines[0].ContextMap()["pixel_format"]; got != "420v" {
		t.Errorf("pixel_format = %v, want 420v", got)
	}
	if device.ActiveFormat().ID != "4k-sdr" {
		t.Error("Logging diagnostics changed the active format")
	}
}

func TestDescribeFormatsMarksActive(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	device := sdrOnlyDevice()

	infos := c.DescribeFormats(device)
	if len(infos) != 3 {
		t.Fatalf("DescribeFormats returned %d entries, want 3", len(infos))
	}
	active := 0
	for _, info := range infos {
		if info.Active {
			active++
			if info.ID != "4k-sdr" {
				t.Errorf("active format = %s, want 4k-sdr", info.ID)
			}
		}
	}
	if active != 1 {
		t.Errorf("active formats = %d, want 1", active)
	}
}

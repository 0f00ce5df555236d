package capture

import (
	"fmt"
	"sync"
)

// VirtualDevice is an in-memory Device. It backs cameras declared in
// configuration for hosts without capture hardware, and it can be told to
// misbehave the way real drivers do.
type VirtualDevice struct {
	id      string
	name    string
	formats []*Format

	configMu sync.Mutex

	mu               sync.RWMutex
	locked           bool
	activeFormat     *Format
	activeColorSpace ColorSpace
	refuseLock       bool
	failColorSpace   bool
	keepColorSpace   ColorSpace
}

// NewVirtualDevice creates a device offering the given formats. The first
// format becomes active with its first listed color space (sRGB if none).
func NewVirtualDevice(id, name string, formats []*Format) *VirtualDevice {
	d := &VirtualDevice{
		id:      id,
		name:    name,
		formats: formats,
	}
	if len(formats) > 0 {
		d.activeFormat = formats[0]
		d.activeColorSpace = defaultColorSpace(formats[0])
	}
	return d
}

func (d *VirtualDevice) ID() string   { return d.id }
func (d *VirtualDevice) Name() string { return d.name }

// Formats returns a fresh slice of the offered format handles
func (d *VirtualDevice) Formats() []*Format {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Format, len(d.formats))
	copy(out, d.formats)
	return out
}

func (d *VirtualDevice) ActiveFormat() *Format {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeFormat
}

func (d *VirtualDevice) ActiveColorSpace() ColorSpace {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeColorSpace
}

// LockForConfiguration takes the exclusive configuration lock without
// blocking. A lock already held by another mutator is a refusal.
func (d *VirtualDevice) LockForConfiguration() error {
	d.mu.RLock()
	refuse := d.refuseLock
	d.mu.RUnlock()
	if refuse {
		return fmt.Errorf("%s: %w", d.id, ErrLockRefused)
	}

	if !d.configMu.TryLock() {
		return fmt.Errorf("%s: configuration held by another client: %w", d.id, ErrLockRefused)
	}

	d.mu.Lock()
	d.locked = true
	d.mu.Unlock()
	return nil
}

func (d *VirtualDevice) UnlockForConfiguration() {
	d.mu.Lock()
	if !d.locked {
		d.mu.Unlock()
		return
	}
	d.locked = false
	d.mu.Unlock()
	d.configMu.Unlock()
}

// SetActiveFormat switches the active format. When the current color space
// is not carried by the new format, the format's default replaces it.
func (d *VirtualDevice) SetActiveFormat(f *Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.locked {
		return ErrNotLocked
	}
	offered := d.lookup(f)
	if offered == nil {
		return ErrFormatNotOffered
	}

	d.activeFormat = offered
	if !offered.SupportsColorSpace(d.activeColorSpace) {
		d.activeColorSpace = defaultColorSpace(offered)
	}
	return nil
}

func (d *VirtualDevice) SetActiveColorSpace(cs ColorSpace) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.locked {
		return ErrNotLocked
	}
	if d.failColorSpace && cs != d.keepColorSpace {
		return fmt.Errorf("%s: driver rejected %s", d.id, cs)
	}
	if d.activeFormat == nil || !d.activeFormat.SupportsColorSpace(cs) {
		return ErrColorSpaceUnsupported
	}

	d.activeColorSpace = cs
	return nil
}

// RefuseLock makes subsequent LockForConfiguration calls fail
func (d *VirtualDevice) RefuseLock(refuse bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refuseLock = refuse
}

// FailColorSpaceWrites makes SetActiveColorSpace fail after the format
// has been switched, as a driver rejecting the color conversion would.
// Writing back the color space active when failures were enabled still
// succeeds.
func (d *VirtualDevice) FailColorSpaceWrites(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failColorSpace = fail
	d.keepColorSpace = d.activeColorSpace
}

func (d *VirtualDevice) lookup(f *Format) *Format {
	if f == nil {
		return nil
	}
	for _, candidate := range d.formats {
		if candidate == f || (f.ID != "" && candidate.ID == f.ID) {
			return candidate
		}
	}
	return nil
}

func defaultColorSpace(f *Format) ColorSpace {
	if len(f.ColorSpaces) == 0 {
		return ColorSpaceSRGB
	}
	return f.ColorSpaces[0]
}

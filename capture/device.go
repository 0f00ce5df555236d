package capture

import "errors"

var (
	// ErrLockRefused is returned when a device denies exclusive configuration access
	ErrLockRefused = errors.New("device refused configuration lock")
	// ErrFormatNotOffered is returned when a format handle does not belong to the device
	ErrFormatNotOffered = errors.New("format not offered by device")
	// ErrColorSpaceUnsupported is returned when the active format cannot carry a color space
	ErrColorSpaceUnsupported = errors.New("color space not supported by active format")
	// ErrNotLocked is returned when a mutation is attempted outside a configuration lock
	ErrNotLocked = errors.New("device is not locked for configuration")
)

// Device is a capture device owned by the platform. Mutating calls are only
// valid between LockForConfiguration and UnlockForConfiguration.
type Device interface {
	ID() string
	Name() string

	// Formats enumerates the formats currently offered. The slice is built
	// per call and must not be cached by callers.
	Formats() []*Format
	ActiveFormat() *Format
	ActiveColorSpace() ColorSpace

	LockForConfiguration() error
	UnlockForConfiguration()

	SetActiveFormat(f *Format) error
	SetActiveColorSpace(cs ColorSpace) error
}

// Session is a configuration transaction shared with other mutators of
// the same devices. Calls nest; changes are published on the outermost
// CommitConfiguration.
type Session interface {
	BeginConfiguration()
	CommitConfiguration()
}

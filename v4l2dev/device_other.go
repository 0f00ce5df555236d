//go:build !linux

package v4l2dev

import (
	"fmt"
	"runtime"

	"capture-colorspace/capture"

	"go.uber.org/zap"
)

// Open is only available on Linux
func Open(id, path string, maxFPS int, logger *zap.Logger) (capture.Device, error) {
	return nil, fmt.Errorf("v4l2 devices are not supported on %s", runtime.GOOS)
}

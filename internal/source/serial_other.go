// internal/source/serial_other.go
//go:build !linux

package source

import (
	"io"
	"log/slog"
	"os"
)

// openSerial opens the device without line setup; configure the port
// with stty before starting the daemon.
func openSerial(device string, baud int, logger *slog.Logger) (io.ReadCloser, error) {
	logger.Debug("serial line setup unsupported on this platform", "baud", baud)
	return os.Open(device)
}

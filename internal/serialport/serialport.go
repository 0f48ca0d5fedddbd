// Package serialport opens the GPS receiver's serial line. The production
// backend on Linux talks directly to termios; everywhere else it falls
// back to a portable library so the core still builds and runs off-target.
package serialport

import "io"

// Port is an open, raw-mode serial connection.
type Port interface {
	io.ReadWriteCloser
}

// Open opens path at baud in 8N1 raw mode, ready for byte-at-a-time NMEA
// framing.
func Open(path string, baud int) (Port, error) {
	return open(path, baud)
}

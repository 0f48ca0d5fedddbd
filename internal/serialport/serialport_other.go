//go:build !linux

package serialport

import (
	"fmt"

	serial "github.com/jacobsa/go-serial/serial"
)

func open(path string, baud int) (Port, error) {
	opts := serial.OpenOptions{
		PortName:        path,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", path, err)
	}
	return port, nil
}

//go:build !linux

package pps

import "fmt"

func openEdgeLine(cfg Config, onEdge func()) (edgeLine, error) {
	return nil, fmt.Errorf("pps: gpio unsupported on this platform")
}

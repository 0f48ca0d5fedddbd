//go:build linux

package pps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLine) Close() error {
	err := g.line.Close()
	_ = g.chip.Close()
	return err
}

// openEdgeLine requests cfg.Line on cfg.ChipPath (or the usual chip
// candidates when unset) as an edge-triggered input, calling onEdge from
// the gpiocdev event-handling goroutine on every qualifying transition.
// This is the PPS-watching counterpart to fancontrol's GPIO output driver:
// same chip-discovery walk, inverted from AsOutput to edge detection.
func openEdgeLine(cfg Config, onEdge func()) (edgeLine, error) {
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	if cfg.ChipPath != "" {
		chipCandidates = []string{cfg.ChipPath}
	} else {
		entries, _ := os.ReadDir("/dev")
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "gpiochip") {
				chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
			}
		}
	}

	edgeOpt := gpiocdev.WithRisingEdge
	if !cfg.RisingEdge {
		edgeOpt = gpiocdev.WithFallingEdge
	}

	handler := func(evt gpiocdev.LineEvent) { onEdge() }

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(cfg.Line)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset,
			edgeOpt,
			gpiocdev.WithEventHandler(handler),
			gpiocdev.WithConsumer("gpstimed-pps"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodLine{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("pps: gpio line %q not found (or busy)", cfg.Line)
}

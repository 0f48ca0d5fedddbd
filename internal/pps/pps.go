// Package pps watches a GPIO line for the GPS receiver's pulse-per-second
// edge and disciplines the clock from it on every pulse.
package pps

import (
	"log"

	"gpstimed/internal/clock"
	"gpstimed/internal/discipline"
)

// Config controls which GPIO line is watched and how.
type Config struct {
	Enable bool

	// ChipPath is the gpiochip device to use, e.g. "/dev/gpiochip0". When
	// empty, the Linux backend probes the usual candidates.
	ChipPath string

	// Line is the GPIO line name to request, e.g. "GPIO18".
	Line string

	// RisingEdge selects which edge triggers a discipline update; the GPS
	// receivers this core targets all assert PPS on the rising edge, but
	// the field exists for receivers wired through an inverting buffer.
	RisingEdge bool

	// StalenessLimitMicros is the maximum age, in microseconds, of the
	// NMEA parser's last committed time that an edge may still use.
	StalenessLimitMicros uint64
}

// GPSTime is the narrow contract the watcher needs from the NMEA parser.
type GPSTime = discipline.GPSTime

// Watcher owns the open GPIO line, if any, and forwards each edge to the
// discipline engine.
type Watcher struct {
	cfg    Config
	clock  clock.Source
	engine *discipline.Engine
	gps    GPSTime

	line edgeLine
}

// edgeLine is the platform-specific handle for an open, edge-triggered
// input line.
type edgeLine interface {
	Close() error
}

// New returns a Watcher that disciplines engine from gps's committed time
// on every qualifying edge.
func New(cfg Config, clk clock.Source, engine *discipline.Engine, gps GPSTime) *Watcher {
	if cfg.StalenessLimitMicros == 0 {
		cfg.StalenessLimitMicros = 1_000_000
	}
	return &Watcher{cfg: cfg, clock: clk, engine: engine, gps: gps}
}

// Start opens the configured GPIO line and begins watching it. It is a
// no-op if the watcher is disabled.
func (w *Watcher) Start() error {
	if !w.cfg.Enable {
		return nil
	}
	line, err := openEdgeLine(w.cfg, w.onEdge)
	if err != nil {
		return err
	}
	w.line = line
	log.Printf("pps watcher armed chip=%q line=%q rising=%v", w.cfg.ChipPath, w.cfg.Line, w.cfg.RisingEdge)
	return nil
}

// Close releases the GPIO line.
func (w *Watcher) Close() error {
	if w.line == nil {
		return nil
	}
	err := w.line.Close()
	w.line = nil
	return err
}

// onEdge is invoked by the platform backend on every qualifying pulse.
func (w *Watcher) onEdge() {
	w.engine.PPSUpdate(w.gps, w.cfg.StalenessLimitMicros)
}

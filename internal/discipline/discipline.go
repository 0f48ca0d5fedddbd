// Package discipline implements the time discipline engine: the single
// state machine that owns the appliance's notion of UTC, its stratum, and
// its reference identifier. It accepts corrections from the GPS PPS
// handler and from the SNTP client with no precedence between the two —
// whichever writes last wins.
package discipline

import (
	"sync"

	"gpstimed/internal/clock"
)

// Unsynchronized is the stratum value carried until the first successful
// discipline update; stratum == Unsynchronized iff the device has never
// been synchronized.
const Unsynchronized uint8 = 16

// RefIDGPS is the reference identifier reported for GPS PPS-driven
// updates: the ASCII bytes "GPS\0" packed into a uint32, host order.
const RefIDGPS uint32 = 0x47505300

// Engine is the discipline engine's state record. All writers — the main
// loop's SNTP client and the PPS edge handler — go through SetUTC or
// ApplyOffset, which serialize on the same mutex; Go has no interrupt
// context, so the "narrow PPS entry point" the original firmware exposes
// to keep interrupt handlers short is just PPSUpdate, a regular method
// with nothing extra to protect.
type Engine struct {
	clock clock.Source

	mu sync.RWMutex

	// bootToUTCMicros is utc_micros - monotonic_micros at the last write;
	// GetUTCMicros reconstructs the current UTC by adding it back to a
	// fresh monotonic reading.
	bootToUTCMicros   int64
	stratum           uint8
	referenceID       uint32
	lastSyncMonotonic uint64
}

// New returns an Engine in the unsynchronized state.
func New(clk clock.Source) *Engine {
	return &Engine{clock: clk, stratum: Unsynchronized}
}

// GetUTCMicros returns the current UTC time as microseconds since the
// Unix epoch.
func (e *Engine) GetUTCMicros() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(int64(e.clock.Micros()) + e.bootToUTCMicros)
}

// GetStratum returns the current stratum; Unsynchronized means no
// discipline update has ever been accepted.
func (e *Engine) GetStratum() uint8 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stratum
}

// GetReferenceID returns the 32-bit reference identifier of the last
// accepted update.
func (e *Engine) GetReferenceID() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.referenceID
}

// GetLastSyncMonotonic returns the monotonic timestamp of the last
// accepted discipline update. The SNTP client reads this directly to
// decide whether it is time to poll again, so a fresh GPS-driven update
// transparently suppresses an imminent SNTP poll.
func (e *Engine) GetLastSyncMonotonic() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSyncMonotonic
}

// SetUTC performs an absolute update: the engine's UTC becomes nowMicros
// as of this moment.
func (e *Engine) SetUTC(nowMicros int64, stratum uint8, refID uint32) {
	now := e.clock.Micros()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bootToUTCMicros = nowMicros - int64(now)
	e.stratum = stratum
	e.referenceID = refID
	e.lastSyncMonotonic = now
}

// ApplyOffset performs an additive correction: the engine's UTC advances
// (or retreats) by deltaMicros relative to its current value.
func (e *Engine) ApplyOffset(deltaMicros int64, stratum uint8, refID uint32) {
	now := e.clock.Micros()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bootToUTCMicros += deltaMicros
	e.stratum = stratum
	e.referenceID = refID
	e.lastSyncMonotonic = now
}

// GPSTime is the narrow contract the PPS handler needs from the NMEA
// parser: the last committed UTC time and its age.
type GPSTime interface {
	GetTime(nowMicros uint64) (unixTime int64, ageMicros uint64, ok bool)
}

// PPSUpdate implements the GPS PPS update rule (spec §4.2): on each PPS
// edge, read the parser's latest committed time, reject it if it is
// missing or stale by more than stalenessLimit, and otherwise discipline
// the clock to it at stratum 1 with reference id "GPS\0".
func (e *Engine) PPSUpdate(gps GPSTime, stalenessLimit uint64) {
	now := e.clock.Micros()
	unixTime, age, ok := gps.GetTime(now)
	if !ok {
		return
	}
	if age > stalenessLimit {
		return
	}
	e.SetUTC(unixTime*1_000_000, 1, RefIDGPS)
}

// Package nmea implements a byte-fed NMEA-0183 parser for GGA, GLL, RMC,
// and ZDA sentences. It validates a sentence's checksum before committing
// any of its fields to the status register, exactly mirroring the
// checksum-then-commit discipline of the firmware this core descends from.
package nmea

import (
	"sync/atomic"

	"gpstimed/internal/clock"
)

// maxSentence is the size of the scanning buffer. NMEA-0183 sentences top
// out at 82 bytes; 128 gives headroom for noisy talkers without growing
// unbounded.
const maxSentence = 128

// Snapshot is the parser's output register at one point in time. It is
// published atomically after every sentence that commits at least one
// field group, so readers never observe a partially updated fix.
type Snapshot struct {
	PositionValid bool
	TimeValid     bool

	Lat      float64
	Lon      float64
	Alt      float64
	SatCount uint8

	UTCHour  uint8
	UTCMin   uint8
	UTCSec   float64
	UTCYear  uint16
	UTCMonth uint8
	UTCDay   uint8

	LastPositionUpdate uint64
	LastTimeUpdate     uint64
}

// Parser is a streaming, checksum-validating NMEA-0183 recognizer. Feed is
// the only method that mutates its internal buffer; it is intended to be
// called exclusively from one goroutine (the serial reader loop). Getters
// read an atomically published Snapshot and are safe to call from any
// goroutine.
type Parser struct {
	clock clock.Source

	buf        [maxSentence]byte
	pos        int
	inSentence bool

	snap atomic.Value // Snapshot
}

// New returns a Parser that timestamps field commits using clk.
func New(clk clock.Source) *Parser {
	p := &Parser{clock: clk}
	p.snap.Store(Snapshot{})
	return p
}

func (p *Parser) snapshot() Snapshot {
	return p.snap.Load().(Snapshot)
}

// Feed consumes one input byte and returns true iff this byte completed a
// sentence that was fully and successfully parsed and committed. It never
// panics; malformed input is discarded.
func (p *Parser) Feed(b byte) bool {
	if b == '$' {
		p.inSentence = true
		p.pos = 0
		return false
	}
	if !p.inSentence {
		return false
	}
	if b == '\r' || b == '\n' {
		p.inSentence = false
		if p.pos == 0 {
			return false
		}
		return p.parseSentence()
	}
	if p.pos < maxSentence-1 {
		p.buf[p.pos] = b
		p.pos++
		return false
	}
	// Buffer overrun: discard the sentence and wait for the next '$'.
	p.inSentence = false
	return false
}

// GetLocation returns the last committed position and its age in
// microseconds, or ok=false when the most recently committed fix is not
// valid (or none has been committed).
func (p *Parser) GetLocation(nowMicros uint64) (lat, lon, alt float64, fixAgeMicros uint64, ok bool) {
	s := p.snapshot()
	if !s.PositionValid {
		return 0, 0, 0, 0, false
	}
	return s.Lat, s.Lon, s.Alt, nowMicros - s.LastPositionUpdate, true
}

// GetTime returns the last committed UTC time as a Unix timestamp and its
// age in microseconds, or ok=false when no full calendar date has been
// observed yet.
func (p *Parser) GetTime(nowMicros uint64) (unixTime int64, timeAgeMicros uint64, ok bool) {
	s := p.snapshot()
	if !s.TimeValid {
		return 0, 0, false
	}
	return unixTimeFromFields(s.UTCYear, s.UTCMonth, s.UTCDay, s.UTCHour, s.UTCMin, s.UTCSec), nowMicros - s.LastTimeUpdate, true
}

// GetSatCount returns the number of satellites used in the most recent fix.
func (p *Parser) GetSatCount() uint8 {
	return p.snapshot().SatCount
}

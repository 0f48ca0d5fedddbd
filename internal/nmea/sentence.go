package nmea

import "time"

// parseSentence dispatches on the five-character talker-ID+type prefix of
// the buffered sentence, validates its checksum, and commits the fields it
// carries to a new Snapshot. It never partially commits: the checksum is
// always verified before any field from the candidate sentence is written.
func (p *Parser) parseSentence() bool {
	buf := p.buf[:p.pos]
	if len(buf) < 6 {
		return false
	}

	var checksum byte
	cursor := 0
	// The talker ID (2 chars) and sentence type (3 chars) are always part
	// of the checksum, regardless of whether the type is recognized.
	checksum ^= buf[cursor]
	cursor++
	checksum ^= buf[cursor]
	cursor++
	t0, t1, t2 := buf[cursor], buf[cursor+1], buf[cursor+2]
	checksum ^= t0
	checksum ^= t1
	checksum ^= t2
	cursor += 3

	now := p.clock.Micros()

	recognized := (t0 == 'G' && t1 == 'G' && t2 == 'A') ||
		(t0 == 'G' && t1 == 'L' && t2 == 'L') ||
		(t0 == 'R' && t1 == 'M' && t2 == 'C') ||
		(t0 == 'Z' && t1 == 'D' && t2 == 'A')
	if !recognized {
		// Unrecognized sentence type: consume and validate the checksum,
		// but there is nothing to commit.
		consumeUntilChecksum(&checksum, &cursor, buf)
		return checkChecksum(checksum, cursor, buf)
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}

	switch {
	case t0 == 'G' && t1 == 'G' && t2 == 'A':
		return p.commitGGA(checksum, cursor, buf, now)
	case t0 == 'G' && t1 == 'L' && t2 == 'L':
		return p.commitGLL(checksum, cursor, buf, now)
	case t0 == 'R' && t1 == 'M' && t2 == 'C':
		return p.commitRMC(checksum, cursor, buf, now)
	default:
		return p.commitZDA(checksum, cursor, buf, now)
	}
}

// commitGGA parses "hhmmss.sss, lat_dm, N|S, lon_dm, E|W, fix_quality,
// nsat, hdop, alt, M, geoid, M, age, stid" and commits both the position
// and time-of-day groups.
func (p *Parser) commitGGA(checksum byte, cursor int, buf []byte, now uint64) bool {
	hour, minute, sec := parseHMS(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	deg, min := parseDM(&checksum, &cursor, buf)
	lat := degMinToDecimal(deg, min)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'S':
		lat = -lat
	case 'N', eofRune:
	default:
		return false
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	deg, min = parseDM(&checksum, &cursor, buf)
	lon := degMinToDecimal(deg, min)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'W':
		lon = -lon
	case 'E', eofRune:
	default:
		return false
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	fixQuality := parseInteger(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	numSatellites := parseInteger(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	_ = parseFloat(&checksum, &cursor, buf) // hdop, not modeled in Snapshot
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	altitude := parseFloat(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'M', eofRune:
	default:
		return false
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	_ = parseFloat(&checksum, &cursor, buf) // geoid separation, not modeled
	// The rest (age, station id) is not used.
	consumeUntilChecksum(&checksum, &cursor, buf)
	if !checkChecksum(checksum, cursor, buf) {
		return false
	}

	s := p.snapshot()
	s.Lat, s.Lon, s.Alt = lat, lon, altitude
	s.PositionValid = fixQuality > 0
	s.SatCount = uint8(numSatellites)
	s.LastPositionUpdate = now
	s.UTCHour, s.UTCMin, s.UTCSec = hour, minute, sec
	s.LastTimeUpdate = now
	s.TimeValid = s.UTCYear > 1000
	p.snap.Store(s)
	return true
}

// commitGLL parses "lat_dm, N|S, lon_dm, E|W, hhmmss.ss, A|V[, mode]" and
// commits both groups.
func (p *Parser) commitGLL(checksum byte, cursor int, buf []byte, now uint64) bool {
	deg, min := parseDM(&checksum, &cursor, buf)
	lat := degMinToDecimal(deg, min)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'S':
		lat = -lat
	case 'N', eofRune:
	default:
		return false
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	deg, min = parseDM(&checksum, &cursor, buf)
	lon := degMinToDecimal(deg, min)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'W':
		lon = -lon
	case 'E', eofRune:
	default:
		return false
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	hour, minute, sec := parseHMS(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	var valid bool
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'A':
		valid = true
	case 'V', eofRune:
		valid = false
	default:
		return false
	}
	// Optional trailing mode field is unused.
	consumeUntilChecksum(&checksum, &cursor, buf)
	if !checkChecksum(checksum, cursor, buf) {
		return false
	}

	s := p.snapshot()
	s.Lat, s.Lon = lat, lon
	s.PositionValid = valid
	s.LastPositionUpdate = now
	s.UTCHour, s.UTCMin, s.UTCSec = hour, minute, sec
	s.LastTimeUpdate = now
	s.TimeValid = s.UTCYear > 1000
	p.snap.Store(s)
	return true
}

// commitRMC parses "hhmmss.ss, A|V, lat_dm, N|S, lon_dm, E|W, sog, cog,
// ddmmyy, magvar, E|W" and commits both groups; only position, validity,
// and time-of-day are extracted (speed/course/date are not modeled).
func (p *Parser) commitRMC(checksum byte, cursor int, buf []byte, now uint64) bool {
	hour, minute, sec := parseHMS(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	var valid bool
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'A':
		valid = true
	case 'V', eofRune:
		valid = false
	default:
		return false
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	deg, min := parseDM(&checksum, &cursor, buf)
	lat := degMinToDecimal(deg, min)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'S':
		lat = -lat
	case 'N', eofRune:
	default:
		return false
	}
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	deg, min = parseDM(&checksum, &cursor, buf)
	lon := degMinToDecimal(deg, min)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	switch parseSingleChar(&checksum, &cursor, buf) {
	case 'W':
		lon = -lon
	case 'E', eofRune:
	default:
		return false
	}
	// Speed, course, date, magnetic variation are not used by the core.
	consumeUntilChecksum(&checksum, &cursor, buf)
	if !checkChecksum(checksum, cursor, buf) {
		return false
	}

	s := p.snapshot()
	s.PositionValid = valid
	s.Lat, s.Lon = lat, lon
	s.LastPositionUpdate = now
	s.UTCHour, s.UTCMin, s.UTCSec = hour, minute, sec
	s.LastTimeUpdate = now
	s.TimeValid = s.UTCYear > 1000
	p.snap.Store(s)
	return true
}

// commitZDA parses "hhmmss.sss, dd, mm, yyyy, zh, zm" and commits the
// time-of-day and calendar date; the time zone fields are parsed (so the
// checksum lines up) but not applied, per the UTC-unconditionally
// resolution.
func (p *Parser) commitZDA(checksum byte, cursor int, buf []byte, now uint64) bool {
	hour, minute, sec := parseHMS(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	day := parseInteger(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	month := parseInteger(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	year := parseInteger(&checksum, &cursor, buf)
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	_ = parseInteger(&checksum, &cursor, buf) // zone hour, unused
	if !commaOrFail(&checksum, &cursor, buf) {
		return false
	}
	_ = parseInteger(&checksum, &cursor, buf) // zone minute, unused
	if !checkChecksum(checksum, cursor, buf) {
		return false
	}

	s := p.snapshot()
	s.UTCHour, s.UTCMin, s.UTCSec = hour, minute, sec
	s.UTCYear, s.UTCMonth, s.UTCDay = uint16(year), uint8(month), uint8(day)
	s.LastTimeUpdate = now
	s.TimeValid = s.UTCYear > 1000
	p.snap.Store(s)
	return true
}

// unixTimeFromFields builds a Unix timestamp from the committed calendar
// date and time-of-day fields, truncating fractional seconds.
func unixTimeFromFields(year uint16, month, day, hour, minute uint8, sec float64) int64 {
	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(sec), 0, time.UTC)
	return t.Unix()
}

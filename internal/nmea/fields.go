package nmea

// Field parsers below thread a running checksum and a buffer cursor,
// mirroring the character-at-a-time style of the ad-hoc parser this
// package is ported from: every consumed byte is XORed into the checksum
// as it is read, so checksum and cursor always advance together.

const hexDigits = "0123456789ABCDEF"

// negpow10 scales an accumulated integer down by the number of fractional
// digits actually seen, avoiding floating-point exponentiation in the hot
// path.
var negpow10 = [...]float64{1, 1e-1, 1e-2, 1e-3, 1e-4, 1e-5, 1e-6, 1e-7}

// parseInteger reads greedy decimal digits starting at *cursor, XORing
// each into *checksum, and returns the accumulated value. An empty match
// yields zero.
func parseInteger(checksum *byte, cursor *int, buf []byte) uint32 {
	var value uint32
	for *cursor < len(buf) {
		c := buf[*cursor]
		if c < '0' || c > '9' {
			break
		}
		value = value*10 + uint32(c-'0')
		*checksum ^= c
		*cursor++
	}
	return value
}

// parseFloatDecimal reads an optional '.' followed by greedy digits,
// preserving up to seven fractional digits; further digits are consumed
// (and checksummed) but discarded. It returns 0.0 if the next byte is
// not '.'.
func parseFloatDecimal(checksum *byte, cursor *int, buf []byte) float64 {
	if *cursor >= len(buf) || buf[*cursor] != '.' {
		return 0.0
	}
	*cursor++
	*checksum ^= '.'
	var value uint32
	digits := 0
	for *cursor < len(buf) {
		c := buf[*cursor]
		if c < '0' || c > '9' {
			break
		}
		if digits < len(negpow10)-1 {
			value = value*10 + uint32(c-'0')
			digits++
		}
		*checksum ^= c
		*cursor++
	}
	return float64(value) * negpow10[digits]
}

// parseFloat parses an optional leading '-', an integer part, and an
// optional fractional part.
func parseFloat(checksum *byte, cursor *int, buf []byte) float64 {
	if *cursor >= len(buf) {
		return 0.0
	}
	negative := false
	if buf[*cursor] == '-' {
		*checksum ^= '-'
		*cursor++
		negative = true
	}
	integerPart := parseInteger(checksum, cursor, buf)
	result := float64(integerPart) + parseFloatDecimal(checksum, cursor, buf)
	if negative {
		return -result
	}
	return result
}

// eofRune is returned by parseSingleChar when the field is empty.
const eofRune = -1

// parseSingleChar returns the next byte and advances, unless the next
// byte is ',' or '*' (an empty field) or the cursor is exhausted, in
// which case it returns eofRune without advancing or touching the
// checksum.
func parseSingleChar(checksum *byte, cursor *int, buf []byte) int {
	if *cursor >= len(buf) {
		return eofRune
	}
	c := buf[*cursor]
	if c == ',' || c == '*' {
		return eofRune
	}
	*checksum ^= c
	*cursor++
	return int(c)
}

// parseHMS parses a hhmmss(.sss) time field by decimal arithmetic: the
// integer part mod 100 gives seconds, the next mod 100 gives minutes, and
// the remainder is the hour.
func parseHMS(checksum *byte, cursor *int, buf []byte) (hour, minute uint8, sec float64) {
	hms := parseInteger(checksum, cursor, buf)
	secFrac := parseFloatDecimal(checksum, cursor, buf)
	secInt := hms % 100
	hms /= 100
	minute = uint8(hms % 100)
	hour = uint8(hms / 100)
	sec = float64(secInt) + secFrac
	return
}

// parseDM parses a dddmm(.mmmm) latitude/longitude field: the integer
// part is degrees*100 + whole minutes, and the fractional part is
// fractional minutes.
func parseDM(checksum *byte, cursor *int, buf []byte) (deg uint16, min float64) {
	dms := parseInteger(checksum, cursor, buf)
	minFrac := parseFloatDecimal(checksum, cursor, buf)
	minInt := dms % 100
	deg = uint16(dms / 100)
	min = float64(minInt) + minFrac
	return
}

// degMinToDecimal converts a dddmm(.mmmm) pair into non-negative decimal
// degrees; callers negate the result for the S or W hemisphere.
func degMinToDecimal(deg uint16, min float64) float64 {
	return float64(deg) + min/60.0
}

// checkChecksum verifies the trailing '*hh' against the accumulated XOR
// checksum of everything before it.
func checkChecksum(checksum byte, cursor int, buf []byte) bool {
	if cursor+3 > len(buf) {
		return false
	}
	if buf[cursor] != '*' {
		return false
	}
	cursor++
	first := buf[cursor]
	second := buf[cursor+1]
	wantFirst := hexDigits[checksum>>4]
	wantSecond := hexDigits[checksum&0x0F]
	return first == wantFirst && second == wantSecond
}

// consumeUntilChecksum XORs every remaining byte into the checksum up to
// (but not including) the '*' that introduces the trailer.
func consumeUntilChecksum(checksum *byte, cursor *int, buf []byte) {
	for *cursor < len(buf) {
		c := buf[*cursor]
		if c == '*' {
			return
		}
		*checksum ^= c
		*cursor++
	}
}

// commaOrFail consumes one ',' at *cursor, XORing it into *checksum, and
// reports whether it was actually there.
func commaOrFail(checksum *byte, cursor *int, buf []byte) bool {
	if *cursor >= len(buf) || buf[*cursor] != ',' {
		return false
	}
	*checksum ^= ','
	*cursor++
	return true
}

// Package sntp implements the wire codec, client, and server for the
// appliance's SNTP traffic: it can both discipline its own clock against an
// upstream server and serve stratum-limited replies to downstream clients.
package sntp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// MessageLen is the fixed size of an NTP/SNTP packet body; this
// implementation never negotiates extension fields or authenticators.
const MessageLen = 48

// NTPDelta is the number of seconds between the NTP epoch (1900-01-01) and
// the Unix epoch (1970-01-01).
const NTPDelta = 2_208_988_800

// Version is the (S)NTP version this core speaks when acting as a client.
const Version = 4

// RefIDGPS is the reference identifier a stratum-1 GPS-disciplined clock
// reports: the ASCII bytes "GPS\0" packed into a uint32, host order.
const RefIDGPS uint32 = 0x47505300

// Mode values carried in the low 3 bits of the flags byte.
const (
	ModeClient = 3
	ModeServer = 4
)

// Message is the 48-byte NTP packet body. The endianness of the struct
// itself is irrelevant; Encode/Decode always produce and consume big-endian
// wire bytes regardless of host layout.
type Message struct {
	Flags           uint8
	Stratum         uint8
	Poll            int8
	Precision       int8
	RootDelay       uint32
	RootDispersion  uint32
	RefID           uint32
	RefTimeSec      uint32
	RefTimeFrac     uint32
	OrigTimeSec     uint32
	OrigTimeFrac    uint32
	RxTimeSec       uint32
	RxTimeFrac      uint32
	TxTimeSec       uint32
	TxTimeFrac      uint32
}

// Flags packs leap indicator, version, and mode into the first wire byte.
func Flags(leap, version, mode uint8) uint8 {
	return leap<<6 | version<<3 | mode
}

// FlagsVersion extracts the version field from a flags byte.
func FlagsVersion(flags uint8) uint8 {
	return (flags >> 3) & 0x07
}

// FlagsMode extracts the mode field from a flags byte.
func FlagsMode(flags uint8) uint8 {
	return flags & 0x07
}

// Encode serializes m into a fresh MessageLen-byte big-endian buffer.
func (m *Message) Encode() []byte {
	buf := make([]byte, MessageLen)
	buf[0] = m.Flags
	buf[1] = m.Stratum
	buf[2] = byte(m.Poll)
	buf[3] = byte(m.Precision)
	binary.BigEndian.PutUint32(buf[4:8], m.RootDelay)
	binary.BigEndian.PutUint32(buf[8:12], m.RootDispersion)
	binary.BigEndian.PutUint32(buf[12:16], m.RefID)
	binary.BigEndian.PutUint32(buf[16:20], m.RefTimeSec)
	binary.BigEndian.PutUint32(buf[20:24], m.RefTimeFrac)
	binary.BigEndian.PutUint32(buf[24:28], m.OrigTimeSec)
	binary.BigEndian.PutUint32(buf[28:32], m.OrigTimeFrac)
	binary.BigEndian.PutUint32(buf[32:36], m.RxTimeSec)
	binary.BigEndian.PutUint32(buf[36:40], m.RxTimeFrac)
	binary.BigEndian.PutUint32(buf[40:44], m.TxTimeSec)
	binary.BigEndian.PutUint32(buf[44:48], m.TxTimeFrac)
	return buf
}

// Decode parses a MessageLen-byte big-endian buffer into a Message. It
// fails unless buf is exactly MessageLen bytes.
func Decode(buf []byte) (Message, error) {
	if len(buf) != MessageLen {
		return Message{}, fmt.Errorf("sntp: wrong packet length: %d bytes, want %d", len(buf), MessageLen)
	}
	var m Message
	m.Flags = buf[0]
	m.Stratum = buf[1]
	m.Poll = int8(buf[2])
	m.Precision = int8(buf[3])
	m.RootDelay = binary.BigEndian.Uint32(buf[4:8])
	m.RootDispersion = binary.BigEndian.Uint32(buf[8:12])
	m.RefID = binary.BigEndian.Uint32(buf[12:16])
	m.RefTimeSec = binary.BigEndian.Uint32(buf[16:20])
	m.RefTimeFrac = binary.BigEndian.Uint32(buf[20:24])
	m.OrigTimeSec = binary.BigEndian.Uint32(buf[24:28])
	m.OrigTimeFrac = binary.BigEndian.Uint32(buf[28:32])
	m.RxTimeSec = binary.BigEndian.Uint32(buf[32:36])
	m.RxTimeFrac = binary.BigEndian.Uint32(buf[36:40])
	m.TxTimeSec = binary.BigEndian.Uint32(buf[40:44])
	m.TxTimeFrac = binary.BigEndian.Uint32(buf[44:48])
	return m, nil
}

// MicrosToNTP splits a Unix-epoch microsecond timestamp into NTP (sec,
// frac) fields, where frac is a Q32 fraction of a second.
func MicrosToNTP(unixMicros int64) (sec, frac uint32) {
	wholeSec := unixMicros / 1_000_000
	remMicros := unixMicros % 1_000_000
	if remMicros < 0 {
		remMicros += 1_000_000
		wholeSec--
	}
	// The NTP seconds field is 32 bits; this conversion wraps for times from
	// 2036-02-07 onward, and no era handling is done.
	sec = uint32(wholeSec + NTPDelta)
	frac = uint32((uint64(remMicros) << 32) / 1_000_000)
	return
}

// NTPToMicros combines NTP (sec, frac) fields into a Unix-epoch microsecond
// timestamp.
func NTPToMicros(sec, frac uint32) int64 {
	unixSec := int64(sec) - NTPDelta
	micros := (uint64(frac) * 1_000_000) >> 32
	return unixSec*1_000_000 + int64(micros)
}

// FracToMicros converts a raw NTP fractional-second field to microseconds,
// matching the original firmware's (frac*15625)>>26 shortcut, which equals
// frac*1e6/2^32 (1e6 = 15625*2^6) rounded down.
func FracToMicros(frac uint32) int64 {
	return int64((uint64(frac) * 15625) >> 26)
}

// MicrosToFrac converts a microsecond count in [0, 1e6) to a raw NTP
// fractional-second field, the inverse shortcut: (micros<<26)/15625.
func MicrosToFrac(micros int64) uint32 {
	return uint32((uint64(micros) << 26) / 15625)
}

// RefIDFromIP derives a reference identifier from a server's address: the
// raw address for IPv4, or the XOR-fold of the four 32-bit words for IPv6.
// The original firmware's comment on this shortcut is blunt: it does not
// want to implement MD5 just to compute a debug-only identifier.
func RefIDFromIP(addr net.IP) uint32 {
	if v4 := addr.To4(); v4 != nil {
		return binary.BigEndian.Uint32(v4)
	}
	v6 := addr.To16()
	if v6 == nil {
		return 0
	}
	var ref uint32
	for i := 0; i < 16; i += 4 {
		ref ^= binary.BigEndian.Uint32(v6[i : i+4])
	}
	return ref
}

// LogFields renders m's header fields for debug logging, mirroring the
// original firmware's ntp_dump_debug dump.
func (m *Message) LogFields() map[string]any {
	return map[string]any{
		"flags":      m.Flags,
		"version":    FlagsVersion(m.Flags),
		"mode":       FlagsMode(m.Flags),
		"stratum":    m.Stratum,
		"poll":       m.Poll,
		"precision":  m.Precision,
		"ref_id":     m.RefID,
		"orig_ts":    NTPToMicros(m.OrigTimeSec, m.OrigTimeFrac),
		"rx_ts":      NTPToMicros(m.RxTimeSec, m.RxTimeFrac),
		"tx_ts":      NTPToMicros(m.TxTimeSec, m.TxTimeFrac),
	}
}

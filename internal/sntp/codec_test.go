package sntp

import (
	"net"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := Message{
		Flags:          Flags(0, 4, ModeServer),
		Stratum:        1,
		Poll:           3,
		Precision:      -6,
		RootDelay:      0,
		RootDispersion: 0,
		RefID:          RefIDGPS,
		OrigTimeSec:    3912345678,
		OrigTimeFrac:   123456,
		RxTimeSec:      3912345679,
		RxTimeFrac:     654321,
		TxTimeSec:      3912345680,
		TxTimeFrac:     111111,
	}
	buf := m.Encode()
	if len(buf) != MessageLen {
		t.Fatalf("encoded length = %d, want %d", len(buf), MessageLen)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != m {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, m)
	}
}

func TestDecodeShortPacket(t *testing.T) {
	if _, err := Decode(make([]byte, MessageLen-1)); err == nil {
		t.Fatalf("expected error decoding a short packet")
	}
}

func TestDecodeLongPacket(t *testing.T) {
	if _, err := Decode(make([]byte, MessageLen+1)); err == nil {
		t.Fatalf("expected error decoding a packet longer than MessageLen")
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	f := Flags(0, 4, ModeClient)
	if FlagsVersion(f) != 4 {
		t.Errorf("version = %d, want 4", FlagsVersion(f))
	}
	if FlagsMode(f) != ModeClient {
		t.Errorf("mode = %d, want %d", FlagsMode(f), ModeClient)
	}
}

func TestMicrosToNTPRoundTrip(t *testing.T) {
	cases := []int64{0, 1_000_000, 1_674_950_100_500_000, 1}
	for _, us := range cases {
		sec, frac := MicrosToNTP(us)
		got := NTPToMicros(sec, frac)
		// Sub-microsecond truncation in the fractional encoding can shift
		// the round trip by at most one microsecond.
		if diff := got - us; diff < -1 || diff > 1 {
			t.Errorf("MicrosToNTP/NTPToMicros(%d) round trip = %d, want within 1us", us, got)
		}
	}
}

func TestFracMicrosConversionShortcut(t *testing.T) {
	for _, us := range []int64{0, 1, 500_000, 999_999} {
		frac := MicrosToFrac(us)
		got := FracToMicros(frac)
		if diff := got - us; diff < -1 || diff > 1 {
			t.Errorf("frac shortcut round trip(%d) = %d, want within 1us", us, got)
		}
	}
}

func TestRefIDFromIPv4(t *testing.T) {
	ip := net.ParseIP("192.0.2.1")
	got := RefIDFromIP(ip)
	want := uint32(192)<<24 | uint32(0)<<16 | uint32(2)<<8 | uint32(1)
	if got != want {
		t.Errorf("ref id = %08x, want %08x", got, want)
	}
}

func TestRefIDFromIPv6IsXORFold(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	got := RefIDFromIP(ip)
	v6 := ip.To16()
	var want uint32
	for i := 0; i < 16; i += 4 {
		var word uint32
		for j := 0; j < 4; j++ {
			word = word<<8 | uint32(v6[i+j])
		}
		want ^= word
	}
	if got != want {
		t.Errorf("ref id = %08x, want %08x", got, want)
	}
}

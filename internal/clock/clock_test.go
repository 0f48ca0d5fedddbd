package clock

import (
	"testing"
	"time"
)

func TestMonotonicAdvances(t *testing.T) {
	m := New()
	first := m.Micros()
	time.Sleep(2 * time.Millisecond)
	second := m.Micros()
	if second <= first {
		t.Fatalf("monotonic clock did not advance: first=%d second=%d", first, second)
	}
}

func TestMonotonicNeverRegresses(t *testing.T) {
	m := New()
	prev := m.Micros()
	for i := 0; i < 1000; i++ {
		cur := m.Micros()
		if cur < prev {
			t.Fatalf("monotonic clock regressed: prev=%d cur=%d", prev, cur)
		}
		prev = cur
	}
}

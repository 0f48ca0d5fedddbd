package pps

import (
	"testing"

	"gpstimed/internal/discipline"
)

type fakeClock struct{ micros uint64 }

func (f *fakeClock) Micros() uint64 { return f.micros }

type fakeGPS struct {
	unixTime int64
	age      uint64
	ok       bool
}

func (g *fakeGPS) GetTime(nowMicros uint64) (int64, uint64, bool) {
	return g.unixTime, g.age, g.ok
}

func TestStartDisabledIsNoop(t *testing.T) {
	clk := &fakeClock{}
	engine := discipline.New(clk)
	w := New(Config{Enable: false}, clk, engine, &fakeGPS{})
	if err := w.Start(); err != nil {
		t.Fatalf("Start on a disabled watcher returned an error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close on a never-started watcher returned an error: %v", err)
	}
}

func TestOnEdgeDisciplinesEngine(t *testing.T) {
	clk := &fakeClock{micros: 1000}
	engine := discipline.New(clk)
	gps := &fakeGPS{ok: true, unixTime: 1700000000, age: 10}
	w := New(Config{Enable: true, StalenessLimitMicros: 1_000_000}, clk, engine, gps)

	w.onEdge()

	if engine.GetStratum() != 1 {
		t.Errorf("stratum = %d, want 1 after a qualifying edge", engine.GetStratum())
	}
	if engine.GetReferenceID() != discipline.RefIDGPS {
		t.Errorf("ref id = %x, want %x", engine.GetReferenceID(), discipline.RefIDGPS)
	}
}

func TestOnEdgeIgnoresStaleFix(t *testing.T) {
	clk := &fakeClock{micros: 1000}
	engine := discipline.New(clk)
	gps := &fakeGPS{ok: true, unixTime: 1700000000, age: 2_000_000}
	w := New(Config{Enable: true, StalenessLimitMicros: 1_000_000}, clk, engine, gps)

	w.onEdge()

	if engine.GetStratum() != discipline.Unsynchronized {
		t.Errorf("stratum should remain unsynchronized for a stale fix")
	}
}

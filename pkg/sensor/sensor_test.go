package sensor

import (
	"testing"
	"time"
)

func TestSensorLatchesAndRecovers(t *testing.T) {
	pct := 50.0
	s := New("/", 95, time.Hour).WithUsage(func(string) (float64, error) { return pct, nil })

	s.Check()
	if s.DiskFull() {
		t.Fatalf("50%% should not be full")
	}
	pct = 97
	s.Check()
	if !s.DiskFull() {
		t.Fatalf("97%% should be full")
	}
	pct = 80
	s.Check()
	if s.DiskFull() {
		t.Fatalf("80%% should have recovered")
	}
}

func TestNilSensorNeverFull(t *testing.T) {
	var s *Sensor
	if s.DiskFull() {
		t.Fatalf("nil sensor reported full")
	}
}

func TestDiskUsedPct(t *testing.T) {
	pct, err := DiskUsedPct(t.TempDir())
	if err != nil {
		t.Fatalf("statfs: %v", err)
	}
	if pct < 0 || pct > 100 {
		t.Fatalf("pct out of range: %v", pct)
	}
}

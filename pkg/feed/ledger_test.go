package feed

import "testing"

func TestLedgerSeen(t *testing.T) {
	l := NewLedger()
	if l.Seen("general", "a") {
		t.Fatal("first sighting reported as seen")
	}
	for i := 0; i < 3; i++ {
		if !l.Seen("general", "a") {
			t.Fatalf("call %d: repeated id not seen", i)
		}
	}
	if l.Seen("thread1", "a") {
		t.Fatal("ids are tracked per channel")
	}
	if l.Seen("general", "") || l.Seen("general", "") {
		t.Fatal("empty id must never be seen")
	}
	if got := l.Len("general"); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	l.Reset()
	if l.Seen("general", "a") {
		t.Fatal("Reset did not clear")
	}
}

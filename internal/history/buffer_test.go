package history

import (
	"fmt"
	"sync"
	"testing"
)

func TestAddAndGet(t *testing.T) {
	b := NewBuffer()

	b.Add(1, ActionRecord{Path: "", Action: "openFile", Success: true, Ts: 1})
	b.Add(1, ActionRecord{Path: "frameMap[0].renderConfig", Action: "setColorMap", Success: true, Ts: 2})
	b.Add(1, ActionRecord{Path: "overlayStore", Action: "explode", Message: "unknown action", Ts: 3})

	recs := b.Get(1)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Action != "openFile" {
		t.Errorf("expected first action 'openFile', got %q", recs[0].Action)
	}
	if recs[2].Success {
		t.Errorf("expected third record to be a failure")
	}
}

func TestRingBufferWraparound(t *testing.T) {
	b := NewBuffer()

	for i := 1; i <= MaxRecords+7; i++ {
		b.Add(1, ActionRecord{Action: fmt.Sprintf("action-%d", i), Ts: int64(i)})
	}

	recs := b.Get(1)
	if len(recs) != MaxRecords {
		t.Fatalf("expected %d records, got %d", MaxRecords, len(recs))
	}

	// Should contain actions 8 through MaxRecords+7 in order.
	for i, rec := range recs {
		expected := fmt.Sprintf("action-%d", i+8)
		if rec.Action != expected {
			t.Errorf("index %d: expected %q, got %q", i, expected, rec.Action)
		}
	}
}

func TestGetUnknownSession(t *testing.T) {
	b := NewBuffer()

	recs := b.Get(404)
	if recs == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(recs) != 0 {
		t.Fatalf("expected 0 records, got %d", len(recs))
	}
}

func TestRemove(t *testing.T) {
	b := NewBuffer()

	b.Add(1, ActionRecord{Action: "openFile"})
	b.Add(2, ActionRecord{Action: "closeFile"})
	b.Remove(1)
	b.Remove(99)

	if n := len(b.Get(1)); n != 0 {
		t.Fatalf("expected 0 records after remove, got %d", n)
	}
	if n := b.Sessions(); n != 1 {
		t.Fatalf("expected 1 session left, got %d", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := NewBuffer()
	goroutines := 50
	perGoroutine := 40

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for m := 0; m < perGoroutine; m++ {
				b.Add(7, ActionRecord{Action: fmt.Sprintf("g%d-m%d", id, m)})
				_ = b.Get(7)
			}
		}(g)
	}

	wg.Wait()

	if n := len(b.Get(7)); n != MaxRecords {
		t.Fatalf("expected %d records after concurrent writes, got %d", MaxRecords, n)
	}
}

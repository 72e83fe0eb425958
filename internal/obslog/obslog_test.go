package obslog

import (
	"fmt"
	"testing"
)

func TestRingCapsAndOrdersNewestFirst(t *testing.T) {
	r := &Ring{}
	for i := 0; i < Capacity+10; i++ {
		r.Info("entry %d", i)
	}
	entries := r.Entries()
	if len(entries) != Capacity {
		t.Fatalf("expected %d entries, got %d", Capacity, len(entries))
	}
	if entries[0].Message != fmt.Sprintf("entry %d", Capacity+9) {
		t.Errorf("expected newest entry first, got %q", entries[0].Message)
	}
}

func TestRingLevels(t *testing.T) {
	r := &Ring{}
	r.Warn("careful")
	r.Error("boom")
	entries := r.Entries()
	if entries[0].Level != LevelError || entries[1].Level != LevelWarn {
		t.Fatalf("unexpected levels: %+v", entries)
	}
}

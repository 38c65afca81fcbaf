package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 50; i++ {
		next := gen()
		if next <= prev {
			t.Fatalf("not sortable: %s <= %s", next, prev)
		}
		prev = next
	}
	if _, err := Parse(prev); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("heal_", UUIDv7())()
	if !strings.HasPrefix(id, "heal_") {
		t.Errorf("prefix: got %q", id)
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("evt_")
	if got := gen(); got != "evt_1" {
		t.Errorf("first: got %q, want evt_1", got)
	}
	if got := gen(); got != "evt_2" {
		t.Errorf("second: got %q, want evt_2", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected error")
	}
}

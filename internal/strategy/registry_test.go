package strategy

import (
	"fmt"
	"testing"

	"stock-trading-engine/config"
)

func TestRegistryBuildsEveryStrategy(t *testing.T) {
	ids := IDs()
	if len(ids) != 31 {
		t.Fatalf("IDs() = %d strategies, want 31", len(ids))
	}
	for _, id := range ids {
		if !Registered(id) {
			t.Errorf("Registered(%q) = false for a listed id", id)
			continue
		}
		s, err := New(id, config.DefaultStrategyConfig())
		if err != nil {
			t.Errorf("New(%q) error: %v", id, err)
			continue
		}
		if s.Name() == "" {
			t.Errorf("strategy %q has no name", id)
		}
	}
}

func TestRegistryIDOrdering(t *testing.T) {
	want := make([]string, 0, 31)
	for n := 1; n <= 31; n++ {
		want = append(want, fmt.Sprintf("a%d", n))
	}
	got := IDs()
	if len(got) != len(want) {
		t.Fatalf("IDs() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("IDs()[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestRegistryRejectsUnknown(t *testing.T) {
	if _, err := New("zz", config.DefaultStrategyConfig()); err == nil {
		t.Error("New(zz) succeeded for an unregistered id")
	}
	if _, err := New("a1", nil); err == nil {
		t.Error("New(a1, nil) succeeded without a config")
	}
	if Registered("zz") {
		t.Error("Registered(zz) = true")
	}
}

package policy

import (
	"testing"

	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// TestNew_ConstructsEveryKnownKind tests that every declared Kind (and the
// empty-string default) resolves to the matching concrete Policy, and that
// an unrecognized kind is rejected.
func TestNew_ConstructsEveryKnownKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{Greedy, "greedy"},
		{"", "greedy"},
		{Tier, "tier"},
		{Predictive, "predictive"},
		{FirstFit, "firstfit"},
		{UtilSort, "utilsort"},
	}
	for _, c := range cases {
		cfg := DefaultConfig(c.kind)
		cfg.Policy = c.kind
		pol, err := New(cfg)
		if err != nil {
			t.Errorf("New(%q): %v", c.kind, err)
			continue
		}
		if pol.Name() != c.want {
			t.Errorf("New(%q).Name() = %q, want %q", c.kind, pol.Name(), c.want)
		}
	}
}

// TestNew_RejectsUnknownKind tests the error path for an unrecognized
// policy kind.
func TestNew_RejectsUnknownKind(t *testing.T) {
	cfg := DefaultConfig(Greedy)
	cfg.Policy = "bogus"
	if _, err := New(cfg); err == nil {
		t.Fatal("New(bogus kind) = nil error, want an error")
	}
}

// TestDerivePriority tests the SLA-derived default and the opt-in
// id-based override.
func TestDerivePriority(t *testing.T) {
	cfg := DefaultConfig(Greedy)

	sla0 := registry.TaskInfo{ID: 1, SLA: registry.SLA0}
	if got := derivePriority(cfg, sla0); got != vmtable.HIGH {
		t.Errorf("derivePriority(SLA0) = %s, want HIGH", got)
	}

	sla3 := registry.TaskInfo{ID: 2, SLA: registry.SLA3}
	if got := derivePriority(cfg, sla3); got != vmtable.LOW {
		t.Errorf("derivePriority(SLA3) = %s, want LOW", got)
	}

	cfg.PriorityOverrideIDs = []int{2}
	if got := derivePriority(cfg, sla3); got != vmtable.HIGH {
		t.Errorf("derivePriority(SLA3, overridden) = %s, want HIGH", got)
	}
}

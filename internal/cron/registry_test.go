package cron

import (
	"context"
	"strings"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	expiry := &stubJob{name: "order-expiry"}
	retention := &stubJob{name: "outbox-retention"}
	registry, err := NewRegistry(expiry, retention)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != expiry || jobs[1] != retention {
		t.Fatalf("unexpected jobs %v", registry.Names())
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicatesAndBlankNames(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"}); err == nil || !strings.Contains(err.Error(), "twice") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := NewRegistry(&stubJob{name: " "}); err == nil {
		t.Fatalf("expected blank name error")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatalf("expected nil job error")
	}
}

func TestRegistryWithout(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "order-expiry"}, &stubJob{name: "outbox-retention"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	trimmed, err := registry.Without("outbox-retention", "")
	if err != nil {
		t.Fatalf("without: %v", err)
	}
	if names := trimmed.Names(); len(names) != 1 || names[0] != "order-expiry" {
		t.Fatalf("unexpected names %v", names)
	}
	if len(registry.Jobs()) != 2 {
		t.Fatalf("original registry mutated")
	}
	if _, err := registry.Without("order-expiray"); err == nil {
		t.Fatalf("expected unknown job error")
	}
}

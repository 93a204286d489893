package metrics

import (
	"testing"
)

func TestRegistryLifecycle(t *testing.T) {
	ResetRegistry()
	t.Cleanup(ResetRegistry)

	if IsEnabled() {
		t.Fatal("metrics enabled before InitRegistry")
	}
	if GetRegistry() != nil {
		t.Fatal("GetRegistry() != nil before InitRegistry")
	}
	if NewFSMetrics() != nil || NewStoreMetrics() != nil || NewChainCacheMetrics() != nil {
		t.Fatal("constructors must return nil while disabled")
	}

	reg := InitRegistry()
	if !IsEnabled() {
		t.Fatal("metrics not enabled after InitRegistry")
	}
	if again := InitRegistry(); again != reg {
		t.Fatal("InitRegistry is not idempotent")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected runtime collectors to be registered")
	}
}

func TestConstructorsWithoutImplementation(t *testing.T) {
	ResetRegistry()
	InitRegistry()
	t.Cleanup(ResetRegistry)

	saved := newFSMetrics
	newFSMetrics = nil
	t.Cleanup(func() { newFSMetrics = saved })

	if NewFSMetrics() != nil {
		t.Fatal("NewFSMetrics() must be nil when no implementation is registered")
	}
}

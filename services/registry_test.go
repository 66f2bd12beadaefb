package services

import (
	"testing"
)

func TestSessionRegistryTracksSessions(t *testing.T) {
	o := newTestOrchestrator(&fakeGateway{}, newFakeStore())
	registry := NewSessionRegistry(o)
	defer registry.Stop()

	first := o.NewSession("player-1")
	second := o.NewSession("player-2")

	registry.Register(first)
	registry.Register(second)
	if got := registry.ActiveSessions(); got != 2 {
		t.Fatalf("ActiveSessions = %d, expected 2", got)
	}

	// Touching an unknown session is a no-op.
	registry.UpdateActivity("does-not-exist")
	registry.UpdateActivity(first.ID)

	registry.Unregister(first.ID)
	if got := registry.ActiveSessions(); got != 1 {
		t.Fatalf("ActiveSessions after unregister = %d, expected 1", got)
	}

	// Unregistering twice is harmless.
	registry.Unregister(first.ID)
	registry.Unregister(second.ID)
	if got := registry.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions after cleanup = %d, expected 0", got)
	}
}

func TestSessionRegistryStop(t *testing.T) {
	o := newTestOrchestrator(&fakeGateway{}, newFakeStore())
	registry := NewSessionRegistry(o)

	registry.Stop()

	select {
	case <-registry.done:
	default:
		t.Fatal("Stop did not signal the sweeper to exit")
	}

	// A second Stop must not panic on the already-closed channel.
	registry.Stop()
}

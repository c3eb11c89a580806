package dag

import (
	"reflect"
	"testing"
)

func TestStateMachine_Transitions_ValidAndInvalid(t *testing.T) {
	state := ExecutionState{"A": ChainPending}

	if err := Transition(state, "A", ChainPending, ChainRunning); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}
	if err := Transition(state, "A", ChainRunning, ChainCompleted); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}

	// Terminal -> RUNNING is forbidden.
	if err := Transition(state, "A", ChainCompleted, ChainRunning); err == nil {
		t.Fatalf("expected error")
	}

	// Stale expected state is rejected.
	state["A"] = ChainPending
	if err := Transition(state, "A", ChainRunning, ChainCompleted); err == nil {
		t.Fatalf("expected error for stale from state")
	}

	state["A"] = ChainSkipped
	if err := Transition(state, "A", ChainSkipped, ChainRunning); err == nil {
		t.Fatalf("expected error")
	}

	if err := Transition(state, "missing", ChainPending, ChainRunning); err == nil {
		t.Fatalf("expected error for unknown chain")
	}
}

func TestFailurePropagation_CascadeFailure_MarksDownstreamSkipped(t *testing.T) {
	g, err := NewTaskGraph(testChains("A", "B", "C", "D"), []Edge{{From: "A", To: "B"}, {From: "B", To: "C"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": ChainRunning,
		"B": ChainPending,
		"C": ChainPending,
		"D": ChainPending, // independent
	}

	skipped, err := FailAndPropagate(g, state, "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped chains, got %v", skipped)
	}

	if state["A"] != ChainFailed {
		t.Fatalf("expected A failed, got %s", state["A"])
	}
	if state["B"] != ChainSkipped || state["C"] != ChainSkipped {
		t.Fatalf("expected B and C skipped, got B=%s C=%s", state["B"], state["C"])
	}
	if state["D"] != ChainPending {
		t.Fatalf("expected D unchanged pending, got %s", state["D"])
	}

	got := ReadyChains(g, state)
	if !reflect.DeepEqual(got, []string{"D"}) {
		t.Fatalf("ready mismatch: got %v want [D]", got)
	}
}

func TestFailurePropagation_Diamond_DownstreamSkippedNotFailed(t *testing.T) {
	g, err := NewTaskGraph(
		testChains("A", "B", "C", "D"),
		[]Edge{{From: "A", To: "B"}, {From: "A", To: "C"}, {From: "B", To: "D"}, {From: "C", To: "D"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": ChainRunning,
		"B": ChainPending,
		"C": ChainPending,
		"D": ChainPending,
	}

	skipped, err := FailAndPropagate(g, state, "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(skipped) != 3 {
		t.Fatalf("expected D to be skipped once, got %v", skipped)
	}
	if state["B"] != ChainSkipped || state["C"] != ChainSkipped || state["D"] != ChainSkipped {
		t.Fatalf("expected B,C,D skipped; got B=%s C=%s D=%s", state["B"], state["C"], state["D"])
	}
}

func TestFailurePropagation_DetectsRunningDownstreamInvariantViolation(t *testing.T) {
	g, err := NewTaskGraph(testChains("A", "B"), []Edge{{From: "A", To: "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": ChainRunning,
		"B": ChainRunning,
	}

	if _, err := FailAndPropagate(g, state, "A"); err == nil {
		t.Fatalf("expected error")
	}
}

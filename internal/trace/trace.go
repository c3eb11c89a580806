package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ExecutionTrace is the canonical record of what a build decided for each
// chain.
//
// A trace captures logical decisions only (cached, executed, failed, skipped)
// and never runtime details: no timestamps, durations, error strings or
// pointers. Two builds that took the same decisions produce byte-identical
// traces, whatever the worker count or the timing of individual chains.
//
// Events are ordered by Canonicalize and serialized by a custom marshaler with
// a fixed field order. Treat the trace as immutable once canonicalized.
type ExecutionTrace struct {
	GraphHash string
	Events    []TraceEvent
}

// TraceEventKind discriminates TraceEvent. The string values are part of the
// canonical bytes; do not rename.
type TraceEventKind string

const (
	EventChainCached     TraceEventKind = "ChainCached"
	EventOutputsRestored TraceEventKind = "OutputsRestored"
	EventChainExecuted   TraceEventKind = "ChainExecuted"
	EventChainFailed     TraceEventKind = "ChainFailed"
	EventChainSkipped    TraceEventKind = "ChainSkipped"
)

// Reason codes used by the build engine.
const (
	ReasonCacheHit       = "CacheHit"
	ReasonCacheMiss      = "CacheMiss"
	ReasonNotCacheable   = "NotCacheable"
	ReasonUnitFailed     = "UnitFailed"
	ReasonUpstreamFailed = "UpstreamFailed"
)

// TraceEvent is a single logical decision about one chain.
//
// Empty Outputs are normalized to nil and omitted from JSON; non-empty
// Outputs are sorted.
type TraceEvent struct {
	Kind TraceEventKind

	// Chain is the chain the event refers to. Required.
	Chain string

	// Reason is a stable reason code, e.g. ReasonUpstreamFailed.
	Reason string

	// Cause names a related chain, such as the failed upstream chain that
	// caused a skip.
	Cause string

	// Outputs lists project-relative output paths, e.g. the outputs restored
	// from cache.
	Outputs []string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if !isChainEvent(e.Kind) {
			return fmt.Errorf("events[%d].kind %q is unknown", i, e.Kind)
		}
		if e.Chain == "" {
			return fmt.Errorf("events[%d].chain is required for kind %q", i, e.Kind)
		}
		for j, o := range e.Outputs {
			if o == "" {
				return fmt.Errorf("events[%d].outputs[%d] is empty", i, j)
			}
		}
	}
	return nil
}

func isChainEvent(kind TraceEventKind) bool {
	return kindOrder(kind) < unknownKindOrder
}

// Canonicalize normalizes and sorts the trace in place.
//
// Events are sorted by (chain, kind order, reason, cause, outputs), a total
// order that does not depend on when events were recorded.
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		t.Events[i].Outputs = sortedCopy(t.Events[i].Outputs)
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.Chain != b.Chain {
			return a.Chain < b.Chain
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.Cause != b.Cause {
			return a.Cause < b.Cause
		}
		return compareStringSlices(a.Outputs, b.Outputs)
	})
}

const unknownKindOrder = 1000

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventChainCached:
		return 10
	case EventOutputsRestored:
		return 20
	case EventChainExecuted:
		return 30
	case EventChainFailed:
		return 40
	case EventChainSkipped:
		return 50
	default:
		return unknownKindOrder
	}
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func compareStringSlices(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			continue
		}
		return a[i] < b[i]
	}
	return len(a) < len(b)
}

// CanonicalJSON returns the canonical JSON encoding of the trace. It works on
// a copy, so the caller's slices are not reordered.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	copyTrace := ExecutionTrace{GraphHash: t.GraphHash}
	copyTrace.Events = make([]TraceEvent, len(t.Events))
	copy(copyTrace.Events, t.Events)
	copyTrace.Canonicalize()
	if err := copyTrace.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&copyTrace)
}

// Hash returns the sha256 hex digest of the canonical JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON writes graphHash then events. It does not sort; use
// CanonicalJSON for the canonical form.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	if t.GraphHash == "" {
		return nil, errors.New("graphHash is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"graphHash":`)
	gh, _ := json.Marshal(t.GraphHash)
	buf.Write(gh)

	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON writes kind first and omits empty optional fields.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	writeString(&buf, "kind", string(e.Kind), true)
	writeString(&buf, "chain", e.Chain, false)
	writeString(&buf, "reason", e.Reason, false)
	writeString(&buf, "cause", e.Cause, false)

	if outputs := sortedCopy(e.Outputs); len(outputs) > 0 {
		buf.WriteString(`,"outputs":[`)
		for i, o := range outputs {
			if i > 0 {
				buf.WriteByte(',')
			}
			ob, _ := json.Marshal(o)
			buf.Write(ob)
		}
		buf.WriteByte(']')
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, key, value string, first bool) {
	if value == "" && !first {
		return
	}
	if !first {
		buf.WriteByte(',')
	}
	kb, _ := json.Marshal(key)
	buf.Write(kb)
	buf.WriteByte(':')
	vb, _ := json.Marshal(value)
	buf.Write(vb)
}

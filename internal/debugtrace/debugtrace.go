// Package debugtrace defines the debug-log collector contract consumed
// by the core and implemented by an external sink, plus a simple
// in-memory implementation used by tests and by cmd/bookengine's demo
// driver.
package debugtrace

import (
	"sync"

	"github.com/google/uuid"
)

// StepEvent is one structured trace event within an operation.
type StepEvent struct {
	Type      string
	Message   string
	URL       string
	SourceID  string
	Module    string
	FieldPath string
	Expr      string
	Data      map[string]any
}

// OperationInput describes the operation a Handle was opened for.
type OperationInput struct {
	OpType   string
	SourceID string
	Module   string
	Input    string
}

// Handle receives ordered step events for one operation.
type Handle interface {
	Step(e StepEvent)
	EndOk()
	EndError(err error)
}

// Collector opens operation handles. StartOperation may return nil — a
// nil Handle means tracing is disabled and callers must no-op.
type Collector interface {
	StartOperation(in OperationInput) Handle
}

// NoopCollector never traces; StartOperation always returns nil.
type NoopCollector struct{}

func (NoopCollector) StartOperation(OperationInput) Handle { return nil }

// Step is a no-op-safe helper: calling Step/EndOk/EndError on a nil
// Handle does nothing, sparing every call site a nil check.
func Step(h Handle, e StepEvent) {
	if h != nil {
		h.Step(e)
	}
}

func EndOk(h Handle) {
	if h != nil {
		h.EndOk()
	}
}

func EndError(h Handle, err error) {
	if h != nil {
		h.EndError(err)
	}
}

// MemoryCollector records every operation's steps in memory, keyed by a
// generated handle id — useful for tests asserting on trace ordering and
// for a local debug console in cmd/bookengine.
type MemoryCollector struct {
	mu   sync.Mutex
	Ops  []*MemoryOperation
}

type MemoryOperation struct {
	ID    string
	Input OperationInput
	Steps []StepEvent
	Err   error
	Done  bool
}

func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

func (c *MemoryCollector) StartOperation(in OperationInput) Handle {
	op := &MemoryOperation{ID: uuid.New().String(), Input: in}
	c.mu.Lock()
	c.Ops = append(c.Ops, op)
	c.mu.Unlock()
	return &memoryHandle{collector: c, op: op}
}

type memoryHandle struct {
	collector *MemoryCollector
	op        *MemoryOperation
}

func (h *memoryHandle) Step(e StepEvent) {
	h.collector.mu.Lock()
	defer h.collector.mu.Unlock()
	h.op.Steps = append(h.op.Steps, e)
}

func (h *memoryHandle) EndOk() {
	h.collector.mu.Lock()
	defer h.collector.mu.Unlock()
	h.op.Done = true
}

func (h *memoryHandle) EndError(err error) {
	h.collector.mu.Lock()
	defer h.collector.mu.Unlock()
	h.op.Done = true
	h.op.Err = err
}

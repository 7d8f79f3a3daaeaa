package ioengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInjectedFault is returned by a SimBackend handle when the active
// FaultPlan calls for a failure on the current operation.
var ErrInjectedFault = errors.New("ioengine: injected fault")

// FaultPlan configures the failures a SimBackend should inject. All
// counters are consumed (decremented to zero) as matching operations
// occur, so a test can arrange "fail the 3rd write, then behave".
type FaultPlan struct {
	// FailWriteAfter, when > 0, counts down writes; the write that
	// brings it to zero fails outright.
	FailWriteAfter int
	// PartialWriteAfter, when > 0, counts down writes; the write that
	// brings it to zero only persists PartialWriteBytes of the buffer,
	// simulating a short write that a batch's fsync will later catch.
	PartialWriteAfter int
	PartialWriteBytes int
	// FailFsyncAfter, when > 0, counts down fsyncs; the fsync that
	// brings it to zero fails, leaving prior writes durable-or-not per
	// the underlying in-memory buffer (undefined by POSIX, modeled here
	// as "still buffered, not yet guaranteed visible after a crash").
	FailFsyncAfter int
}

func (p *FaultPlan) consume(counter *int) bool {
	if *counter <= 0 {
		return false
	}
	*counter--
	return *counter == 0
}

// SimBackend is an in-memory Backend for deterministic simulation
// testing. It never touches the real filesystem.
type SimBackend struct {
	mu    sync.Mutex
	files map[string]*simFile
}

// NewSimBackend returns an empty in-memory backend.
func NewSimBackend() *SimBackend {
	return &SimBackend{files: make(map[string]*simFile)}
}

// SetFaultPlan installs the fault plan used by the handle for path,
// creating the backing file if it does not exist yet.
func (b *SimBackend) SetFaultPlan(path string, plan FaultPlan) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.file(path)
	f.mu.Lock()
	f.plan = plan
	f.mu.Unlock()
}

func (b *SimBackend) file(path string) *simFile {
	f, ok := b.files[path]
	if !ok {
		f = &simFile{}
		b.files[path] = f
	}
	return f
}

func (b *SimBackend) Open(_ context.Context, path string, _ OpenFlag) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &simHandle{f: b.file(path)}, nil
}

type simFile struct {
	mu   sync.Mutex
	data []byte
	plan FaultPlan
}

type simHandle struct {
	f *simFile
}

func (h *simHandle) ReadAt(_ context.Context, off int64, buf []byte) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if off < 0 || off > int64(len(h.f.data)) {
		return 0, fmt.Errorf("ioengine: read at %d out of range (size %d)", off, len(h.f.data))
	}
	n := copy(buf, h.f.data[off:])
	return n, nil
}

func (h *simHandle) Write(_ context.Context, buf []byte) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	if h.f.plan.consume(&h.f.plan.FailWriteAfter) {
		return 0, ErrInjectedFault
	}
	if h.f.plan.consume(&h.f.plan.PartialWriteAfter) {
		n := h.f.plan.PartialWriteBytes
		if n > len(buf) {
			n = len(buf)
		}
		h.f.data = append(h.f.data, buf[:n]...)
		return n, nil
	}
	h.f.data = append(h.f.data, buf...)
	return len(buf), nil
}

func (h *simHandle) Fsync(_ context.Context) error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if h.f.plan.consume(&h.f.plan.FailFsyncAfter) {
		return ErrInjectedFault
	}
	return nil
}

func (h *simHandle) Close() error {
	return nil
}

func (h *simHandle) Size() (int64, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	return int64(len(h.f.data)), nil
}

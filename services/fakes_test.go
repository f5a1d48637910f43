package services

import (
	"bytes"
	"context"
	"os"
	"sync"
	"time"
)

// fakeBackend is a controllable EncodingBackend. If block is non-nil every
// Encode waits on it; if failWith is non-nil Encode fails after the wait.
type fakeBackend struct {
	mu       sync.Mutex
	calls    int
	delay    time.Duration
	started  chan struct{}
	block    chan struct{}
	failWith error
	output   []byte
}

func (b *fakeBackend) Encode(ctx context.Context, input, output string) error {
	b.mu.Lock()
	b.calls++
	started := b.started
	block := b.block
	fail := b.failWith
	b.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if block != nil {
		<-block
	}
	if fail != nil {
		return fail
	}

	data := b.output
	if len(data) == 0 {
		data = bytes.Repeat([]byte("a"), 2*MinValidArtifactSize)
	}
	return os.WriteFile(output, data, 0644)
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *fakeBackend) setFail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith = err
}

// fakeMonitor reports fixed utilization samples.
type fakeMonitor struct {
	mu  sync.Mutex
	cpu float64
	mem float64
}

func (m *fakeMonitor) set(cpu, mem float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpu, m.mem = cpu, mem
}

func (m *fakeMonitor) CPUUtilization() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cpu
}

func (m *fakeMonitor) MemUtilization() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mem
}

func (m *fakeMonitor) IsOverloaded() bool {
	return m.CPUUtilization() > OverloadThreshold || m.MemUtilization() > OverloadThreshold
}

func (m *fakeMonitor) Threshold() float64 {
	return OverloadThreshold
}

func (m *fakeMonitor) TotalMemoryBytes() uint64 {
	return 8 << 30
}

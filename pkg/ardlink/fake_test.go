// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
)

// scriptedTransport returns one scripted chunk per Read. A nil chunk, or an
// exhausted script, reads as a timeout (0 bytes, nil error).
type scriptedTransport struct {
	mu        sync.Mutex
	reads     [][]byte
	readErr   error
	readCalls int
	writes    [][]byte
	closed    int
}

func newScriptedTransport(reads ...string) *scriptedTransport {
	t := &scriptedTransport{}
	for _, r := range reads {
		if r == "" {
			t.reads = append(t.reads, nil)
			continue
		}
		t.reads = append(t.reads, []byte(r))
	}
	return t
}

func (t *scriptedTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.readCalls++
	if len(t.reads) == 0 {
		return 0, t.readErr
	}
	chunk := t.reads[0]
	t.reads = t.reads[1:]
	return copy(p, chunk), nil
}

func (t *scriptedTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.writes = append(t.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (t *scriptedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

// scriptedReader returns one scripted batch per ReadAvailable call
type scriptedReader struct {
	batches [][]*ardproto.Frame
	calls   int
	windows []time.Duration
}

func (r *scriptedReader) ReadAvailable(ctx context.Context, window time.Duration) ([]*ardproto.Frame, error) {
	r.calls++
	r.windows = append(r.windows, window)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.batches) == 0 {
		return []*ardproto.Frame{}, nil
	}
	b := r.batches[0]
	r.batches = r.batches[1:]
	return b, nil
}

func fixedIDs(id int) ardproto.IDGenerator {
	return ardproto.IDsFromFunc(func() int { return id })
}

// fastOptions keep tests well under a second
func fastOptions() []Option {
	return []Option{
		WithReadWindow(30 * time.Millisecond),
		WithReadTimeout(0),
		WithTickInterval(time.Millisecond),
		WithPollPeriod(time.Millisecond),
	}
}

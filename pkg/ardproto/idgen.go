// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mrand "math/rand/v2"
	"sync/atomic"
)

// IDGenerator produces command identifiers in [0, MaxCmdID)
type IDGenerator interface {
	NextID() int
}

// RandomIDs draws every identifier independently and uniformly.
//
// Two commands issued close together can receive the same identifier, in
// which case an acknowledgment cannot be told apart. Prefer SequentialIDs
// unless the firmware side relies on random identifiers.
type RandomIDs struct{}

// NextID implements IDGenerator
func (RandomIDs) NextID() int {
	return mrand.IntN(MaxCmdID)
}

// SequentialIDs hands out consecutive identifiers, wrapping at MaxCmdID.
//
// The starting point is random so that identifiers from a restarted host do
// not repeat the previous run's sequence. An identifier is reused only after
// MaxCmdID further commands.
type SequentialIDs struct {
	next atomic.Uint32
}

// NewSequentialIDs creates a sequential generator with a random start
func NewSequentialIDs() *SequentialIDs {
	g := &SequentialIDs{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return g
	}
	g.next.Store(binary.LittleEndian.Uint32(buf[:]) % MaxCmdID)
	return g
}

// NewSequentialIDsFrom creates a sequential generator starting at start
func NewSequentialIDsFrom(start int) *SequentialIDs {
	g := &SequentialIDs{}
	g.next.Store(uint32(((start % MaxCmdID) + MaxCmdID) % MaxCmdID))
	return g
}

// NextID implements IDGenerator
func (g *SequentialIDs) NextID() int {
	for {
		cur := g.next.Load()
		nxt := (cur + 1) % MaxCmdID
		if g.next.CompareAndSwap(cur, nxt) {
			return int(cur % MaxCmdID)
		}
	}
}

// IDsFromFunc adapts a function to IDGenerator
type IDsFromFunc func() int

// NextID implements IDGenerator
func (f IDsFromFunc) NextID() int {
	return f()
}

// IDDistance returns how many identifiers were issued between a and b by a
// sequential generator, accounting for wraparound. The result is in
// [0, MaxCmdID).
func IDDistance(a, b int) int {
	return ((b-a)%MaxCmdID + MaxCmdID) % MaxCmdID
}

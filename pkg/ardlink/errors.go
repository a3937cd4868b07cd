// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
)

var (
	// ErrProtocol indicates a response batch carried neither an
	// acknowledgment nor a rejection.
	ErrProtocol = errors.New("protocol error")

	// ErrCommandTimeout indicates no frames arrived for a command within the
	// initial read window and every poll iteration.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrClosed is returned when using an executor after Close.
	ErrClosed = errors.New("executor closed")
)

// ProtocolError reports a response batch with no control frame
type ProtocolError struct {
	ExpectedID int
	Frames     []*ardproto.Frame
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: no ack or rejection for cmdID %d in %d frame(s)", e.ExpectedID, len(e.Frames))
}

// Unwrap allows errors.Is(err, ErrProtocol)
func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// CommandTimeoutError reports a command that received no frames at all
type CommandTimeoutError struct {
	Command    ardproto.Command
	Iterations int // poll iterations attempted after the initial read
	Elapsed    time.Duration
}

// Error implements the error interface
func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %s (cmdID %d) timed out after %d poll iteration(s) (%v)",
		e.Command.WireFunction(), e.Command.ID, e.Iterations, e.Elapsed.Round(time.Millisecond))
}

// Unwrap allows errors.Is(err, ErrCommandTimeout)
func (e *CommandTimeoutError) Unwrap() error {
	return ErrCommandTimeout
}

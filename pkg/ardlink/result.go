// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import (
	"fmt"
	"time"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
)

// State is a step in the life of one command
type State int

const (
	StateBuilt State = iota
	StateSent
	StateAwaitingAck
	StateAcknowledged
	StateRejected
	StateTimedOut
	StateDone
)

var stateNames = map[State]string{
	StateBuilt:        "BUILT",
	StateSent:         "SENT",
	StateAwaitingAck:  "AWAITING_ACK",
	StateAcknowledged: "ACKNOWLEDGED",
	StateRejected:     "REJECTED",
	StateTimedOut:     "TIMED_OUT",
	StateDone:         "DONE",
}

// String returns the state name
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE_%d", int(s))
}

// Result is the outcome of one executed command
type Result struct {
	Command ardproto.Command
	Outcome Outcome

	// Payload holds every non-control frame received for the command, in
	// arrival order.
	Payload []*ardproto.Frame

	// Completion is the status 0 frame for the command, once seen.
	Completion *ardproto.Frame

	// States traces the states the command passed through.
	States []State

	// Polls counts poll iterations after the initial read.
	Polls int

	Elapsed time.Duration
}

func (r *Result) enter(s State) {
	r.States = append(r.States, s)
}

// Acknowledged reports whether the device received the command
func (r *Result) Acknowledged() bool {
	return r.Outcome == OutcomeAcknowledged
}

// Rejected reports whether the device has no function by the command's name
func (r *Result) Rejected() bool {
	return r.Outcome == OutcomeRejected
}

// Arg sets one argument slot of a command
type Arg func(ardproto.Command) ardproto.Command

// Int sets integer slot i
func Int(i, v int) Arg {
	return func(c ardproto.Command) ardproto.Command { return c.WithInt(i, v) }
}

// Float sets floating-point slot i
func Float(i int, v float64) Arg {
	return func(c ardproto.Command) ardproto.Command { return c.WithFloat(i, v) }
}

// String sets string slot i
func String(i int, v string) Arg {
	return func(c ardproto.Command) ardproto.Command { return c.WithString(i, v) }
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import "github.com/Thermoquad/ardlink/pkg/ardproto"

// Outcome classifies the response batch of a command
type Outcome int

const (
	// OutcomeNoControlFrame means the batch held neither ack nor rejection.
	OutcomeNoControlFrame Outcome = iota
	// OutcomeAcknowledged means the device received the command.
	OutcomeAcknowledged
	// OutcomeRejected means the device has no function by that name.
	OutcomeRejected
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "ACKNOWLEDGED"
	case OutcomeRejected:
		return "REJECTED"
	default:
		return "NO_CONTROL_FRAME"
	}
}

// Resolve finds the control frame of a command in a batch of frames.
//
// The first acknowledgment wins: it is removed and every other frame is
// returned, in arrival order, as payload. Without an acknowledgment the
// first rejection yields OutcomeRejected and no payload. A batch with
// neither fails with a *ProtocolError.
//
// expectedID is reported in the error; control frames are not filtered by
// identifier, matching the firmware which answers one command at a time.
func Resolve(frames []*ardproto.Frame, expectedID int) (Outcome, []*ardproto.Frame, error) {
	for i, f := range frames {
		if f.IsAck() {
			payload := make([]*ardproto.Frame, 0, len(frames)-1)
			payload = append(payload, frames[:i]...)
			payload = append(payload, frames[i+1:]...)
			return OutcomeAcknowledged, payload, nil
		}
	}

	for _, f := range frames {
		if f.IsRejection() {
			return OutcomeRejected, []*ardproto.Frame{}, nil
		}
	}

	return OutcomeNoControlFrame, nil, &ProtocolError{ExpectedID: expectedID, Frames: frames}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyIDOutOfRange AnomalyType = iota
	AnomalyIDMismatch
	AnomalyStaleID
	AnomalyNegativeStatus
	AnomalyMissingStatus
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// staleWindow is how far behind the expected identifier a frame may be before
// it is considered unrelated rather than a late reply to an earlier command.
const staleWindow = 16

// ValidateFrame checks a frame for anomalies.
// expectedID is the identifier of the outstanding command, or -1 when frames
// are observed passively. Returns an empty slice if the frame is valid.
func ValidateFrame(f *Frame, expectedID int) []ValidationError {
	errors := []ValidationError{}

	if f.ID < 0 || f.ID >= MaxCmdID {
		errors = append(errors, ValidationError{
			Type:    AnomalyIDOutOfRange,
			Message: fmt.Sprintf("cmdID %d out of range [0, %d)", f.ID, MaxCmdID),
			Details: map[string]interface{}{"cmdID": f.ID},
		})
	}

	if f.Status == StatusUnset {
		errors = append(errors, ValidationError{
			Type:    AnomalyMissingStatus,
			Message: "record has no status",
			Details: map[string]interface{}{"cmdID": f.ID},
		})
	} else if f.Status < 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyNegativeStatus,
			Message: fmt.Sprintf("negative status %d", f.Status),
			Details: map[string]interface{}{"status": int(f.Status)},
		})
	}

	if expectedID >= 0 && f.ID != expectedID {
		if d := IDDistance(f.ID, expectedID); d > 0 && d <= staleWindow {
			errors = append(errors, ValidationError{
				Type:    AnomalyStaleID,
				Message: fmt.Sprintf("late frame for cmdID %d (expected %d)", f.ID, expectedID),
				Details: map[string]interface{}{"cmdID": f.ID, "expected": expectedID, "behind": d},
			})
		} else {
			errors = append(errors, ValidationError{
				Type:    AnomalyIDMismatch,
				Message: fmt.Sprintf("cmdID %d does not match expected %d", f.ID, expectedID),
				Details: map[string]interface{}{"cmdID": f.ID, "expected": expectedID},
			})
		}
	}

	return errors
}

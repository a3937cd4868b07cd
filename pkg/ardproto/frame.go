// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import "time"

// Frame is one decoded response record
type Frame struct {
	ID     int
	Status Status

	// Fields holds every key other than cmdID and status. Numbers are stored
	// as int64 when integral, float64 otherwise.
	Fields map[string]any

	Raw       []byte // record bytes as received, without delimiters
	Timestamp time.Time
}

// NewFrame creates a frame with the given identifier, status and payload
// fields. It is mostly useful for simulators and tests.
func NewFrame(id int, status Status, fields map[string]any) *Frame {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Frame{
		ID:        id,
		Status:    status,
		Fields:    fields,
		Timestamp: time.Now(),
	}
}

// IsAck returns true for an acknowledgment frame
func (f *Frame) IsAck() bool {
	return f.Status == StatusAck
}

// IsRejection returns true when the device reports the function is not registered
func (f *Frame) IsRejection() bool {
	return f.Status == StatusNotRegistered
}

// IsSuccess returns true when the device reports the command completed
func (f *Frame) IsSuccess() bool {
	return f.Status == StatusSuccess
}

// Has reports whether the frame carries the payload field
func (f *Frame) Has(key string) bool {
	_, ok := f.Fields[key]
	return ok
}

// Int extracts an integer payload field
func (f *Frame) Int(key string) (int64, bool) {
	v, ok := f.Fields[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	}
	return 0, false
}

// Float extracts a floating-point payload field
func (f *Frame) Float(key string) (float64, bool) {
	v, ok := f.Fields[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	}
	return 0, false
}

// Text extracts a string payload field
func (f *Frame) Text(key string) (string, bool) {
	v, ok := f.Fields[key]
	if !ok {
		return "", false
	}
	if val, ok := v.(string); ok {
		return val, true
	}
	return "", false
}

// Bool extracts a boolean payload field
func (f *Frame) Bool(key string) (bool, bool) {
	v, ok := f.Fields[key]
	if !ok {
		return false, false
	}
	if val, ok := v.(bool); ok {
		return val, true
	}
	return false, false
}

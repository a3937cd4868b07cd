// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ardproto implements the wire protocol spoken by the Arduino
// command firmware.
//
// The host sends one JSON record per command. The device answers with one or
// more JSON records separated by a single '|' byte: an acknowledgment (status 1)
// or a rejection (status 14), followed by any command-specific payload records.
// Records are correlated to commands with the cmdID field.
//
// This package provides command encoding, response frame decoding, command
// identifier generation, frame validation and formatting.
package ardproto

// Framing
const (
	Delimiter = '|'

	// MaxRecordSize bounds a single record in the streaming decoder. The
	// firmware serialises into a 256 byte buffer.
	MaxRecordSize = 256
)

// Command identifiers are drawn from [0, MaxCmdID)
const MaxCmdID = 100000

// Absent argument sentinels
const (
	AbsentInt    = -1
	AbsentFloat  = -1.0
	AbsentString = ""
)

// Argument slot counts
const (
	IntSlots    = 4
	FloatSlots  = 2
	StringSlots = 2
)

// Record keys
const (
	KeyFunction = "function"
	KeyCmdID    = "cmdID"
	KeyStatus   = "status"
)

var (
	intArgKeys    = [IntSlots]string{"intArg0", "intArg1", "intArg2", "intArg3"}
	floatArgKeys  = [FloatSlots]string{"floatArg0", "floatArg1"}
	stringArgKeys = [StringSlots]string{"strArg0", "strArg1"}
)

// Status is the status code carried by every response record
type Status int

// Status values with protocol meaning. Every other value is defined by the
// command that produced the record.
const (
	StatusSuccess       Status = 0
	StatusAck           Status = 1
	StatusNotRegistered Status = 14

	// StatusUnset marks a record without a status key, such as an echoed
	// command record.
	StatusUnset Status = -1
)

// IsControl reports whether the status marks an acknowledgment or rejection
func (s Status) IsControl() bool {
	return s == StatusAck || s == StatusNotRegistered
}

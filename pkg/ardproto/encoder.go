// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Encoder encodes commands for transmission.
//
// By default every argument slot is written, absent slots carrying their
// sentinel. With Compact set, absent slots are left out and the firmware
// applies its own defaults.
type Encoder struct {
	Compact bool
}

// NewEncoder creates a command encoder that writes every argument slot
func NewEncoder() *Encoder {
	return &Encoder{}
}

// wireCommand fixes the key order of an encoded command
type wireCommand struct {
	Function  string     `json:"function"`
	CmdID     int        `json:"cmdID"`
	IntArg0   *int       `json:"intArg0,omitempty"`
	IntArg1   *int       `json:"intArg1,omitempty"`
	IntArg2   *int       `json:"intArg2,omitempty"`
	IntArg3   *int       `json:"intArg3,omitempty"`
	FloatArg0 *wireFloat `json:"floatArg0,omitempty"`
	FloatArg1 *wireFloat `json:"floatArg1,omitempty"`
	StrArg0   *string    `json:"strArg0,omitempty"`
	StrArg1   *string    `json:"strArg1,omitempty"`
}

// wireFloat always carries a decimal point so the firmware reads it as a float
type wireFloat float64

func (f wireFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: float argument %v is not representable", ErrInvalidCommand, v)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return []byte(s), nil
}

// Encode encodes a command to its wire record. The record carries no delimiter.
func (e *Encoder) Encode(c Command) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	w := wireCommand{
		Function: c.WireFunction(),
		CmdID:    c.ID,
	}

	ints := [IntSlots]**int{&w.IntArg0, &w.IntArg1, &w.IntArg2, &w.IntArg3}
	for i, v := range c.Ints {
		if e.Compact && v == AbsentInt {
			continue
		}
		v := v
		*ints[i] = &v
	}

	floats := [FloatSlots]**wireFloat{&w.FloatArg0, &w.FloatArg1}
	for i, v := range c.Floats {
		if e.Compact && v == AbsentFloat {
			continue
		}
		f := wireFloat(v)
		*floats[i] = &f
	}

	strs := [StringSlots]**string{&w.StrArg0, &w.StrArg1}
	for i, v := range c.Strings {
		if e.Compact && v == AbsentString {
			continue
		}
		v := v
		*strs[i] = &v
	}

	return marshalRecord(w)
}

// Encode encodes a command with the default (full) encoder
func Encode(c Command) ([]byte, error) {
	return NewEncoder().Encode(c)
}

// EncodeFrame encodes a response frame the way the firmware does. It is used
// by device simulators and tests.
func EncodeFrame(f *Frame) ([]byte, error) {
	record := make(map[string]any, len(f.Fields)+2)
	for k, v := range f.Fields {
		record[k] = v
	}
	record[KeyCmdID] = f.ID
	record[KeyStatus] = int(f.Status)
	return marshalRecord(record)
}

// marshalRecord marshals without HTML escaping and without a trailing newline
func marshalRecord(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

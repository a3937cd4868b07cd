// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"fmt"
	"sort"
	"strings"
)

// String returns the human-readable name for a status
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusAck:
		return "ACK"
	case StatusNotRegistered:
		return "NOT_REGISTERED"
	case StatusUnset:
		return "NO_STATUS"
	default:
		return fmt.Sprintf("STATUS_%d", int(s))
	}
}

// FormatFrame formats a frame into a human-readable line
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (%d) cmdID=%05d", timestamp, f.Status, int(f.Status), f.ID)

	if len(f.Fields) > 0 {
		result += " " + FormatFields(f.Fields)
	}

	return result + "\n"
}

// FormatFields renders payload fields as key=value pairs in key order
func FormatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%g", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

// FormatCommand formats a command, listing only present arguments
func FormatCommand(c Command) string {
	args := make([]string, 0, IntSlots+FloatSlots+StringSlots)
	for i, v := range c.Ints {
		if v != AbsentInt {
			args = append(args, fmt.Sprintf("%s=%d", intArgKeys[i], v))
		}
	}
	for i, v := range c.Floats {
		if v != AbsentFloat {
			args = append(args, fmt.Sprintf("%s=%g", floatArgKeys[i], v))
		}
	}
	for i, v := range c.Strings {
		if v != AbsentString {
			args = append(args, fmt.Sprintf("%s=%q", stringArgKeys[i], v))
		}
	}

	result := fmt.Sprintf("%s cmdID=%05d", c.WireFunction(), c.ID)
	if len(args) > 0 {
		result += " " + strings.Join(args, " ")
	}
	return result
}

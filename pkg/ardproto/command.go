// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command is a single function call on the device.
//
// A Command is a value: the With* setters return a modified copy, so a built
// command is never changed behind the back of whoever holds it.
type Command struct {
	Function string // function name without the trailing "()"
	ID       int

	Ints    [IntSlots]int
	Floats  [FloatSlots]float64
	Strings [StringSlots]string
}

// NewCommand creates a command with every argument slot absent
func NewCommand(function string, id int) Command {
	c := Command{Function: function, ID: id}
	for i := range c.Ints {
		c.Ints[i] = AbsentInt
	}
	for i := range c.Floats {
		c.Floats[i] = AbsentFloat
	}
	return c
}

// WithInt returns a copy of the command with integer slot i set to v.
// Out-of-range slots leave the command unchanged.
func (c Command) WithInt(i int, v int) Command {
	if i >= 0 && i < IntSlots {
		c.Ints[i] = v
	}
	return c
}

// WithFloat returns a copy of the command with float slot i set to v
func (c Command) WithFloat(i int, v float64) Command {
	if i >= 0 && i < FloatSlots {
		c.Floats[i] = v
	}
	return c
}

// WithString returns a copy of the command with string slot i set to v
func (c Command) WithString(i int, v string) Command {
	if i >= 0 && i < StringSlots {
		c.Strings[i] = v
	}
	return c
}

// WithID returns a copy of the command carrying a different identifier
func (c Command) WithID(id int) Command {
	c.ID = id
	return c
}

// WireFunction returns the function name as it appears on the wire
func (c Command) WireFunction() string {
	return c.Function + "()"
}

// Validate checks that the command can be encoded
func (c Command) Validate() error {
	if c.Function == "" {
		return fmt.Errorf("%w: empty function name", ErrInvalidCommand)
	}
	if strings.ContainsRune(c.Function, Delimiter) {
		return fmt.Errorf("%w: function name contains delimiter %q", ErrInvalidCommand, Delimiter)
	}
	if c.ID < 0 || c.ID >= MaxCmdID {
		return fmt.Errorf("%w: cmdID %d out of range [0, %d)", ErrInvalidCommand, c.ID, MaxCmdID)
	}
	for i, s := range c.Strings {
		if strings.ContainsRune(s, Delimiter) {
			return fmt.Errorf("%w: %s contains delimiter %q", ErrInvalidCommand, stringArgKeys[i], Delimiter)
		}
	}
	return nil
}

// ParseArgs fills argument slots from command line words.
//
// Words are typed by syntax: integers go to the next free integer slot,
// decimals to the next float slot, anything else to the next string slot.
// A single "-" skips the next integer slot, leaving it absent. Quote a word
// with a leading ' to force it into a string slot ("'42").
func ParseArgs(c Command, words []string) (Command, error) {
	var ni, nf, ns int
	for _, w := range words {
		switch {
		case w == "-":
			if ni >= IntSlots {
				return c, fmt.Errorf("%w: too many integer arguments", ErrInvalidCommand)
			}
			c.Ints[ni] = AbsentInt
			ni++

		case strings.HasPrefix(w, "'"):
			if ns >= StringSlots {
				return c, fmt.Errorf("%w: too many string arguments", ErrInvalidCommand)
			}
			c.Strings[ns] = strings.TrimPrefix(w, "'")
			ns++

		case isInteger(w):
			v, err := strconv.Atoi(w)
			if err != nil {
				return c, fmt.Errorf("%w: integer %q: %v", ErrInvalidCommand, w, err)
			}
			if ni >= IntSlots {
				return c, fmt.Errorf("%w: too many integer arguments", ErrInvalidCommand)
			}
			c.Ints[ni] = v
			ni++

		default:
			if v, err := strconv.ParseFloat(w, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
				if nf >= FloatSlots {
					return c, fmt.Errorf("%w: too many float arguments", ErrInvalidCommand)
				}
				c.Floats[nf] = v
				nf++
				continue
			}
			if ns >= StringSlots {
				return c, fmt.Errorf("%w: too many string arguments", ErrInvalidCommand)
			}
			c.Strings[ns] = w
			ns++
		}
	}
	return c, nil
}

func isInteger(w string) bool {
	w = strings.TrimPrefix(w, "-")
	if w == "" {
		return false
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameDecode indicates a delimited segment is not a well-formed record.
	ErrFrameDecode = errors.New("frame decode failed")

	// ErrInvalidCommand indicates a command cannot be put on the wire.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrRecordTooLarge is returned by the streaming decoder when no delimiter
	// arrives within MaxRecordSize bytes.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
)

// FrameDecodeError describes the segment that failed to decode
type FrameDecodeError struct {
	Index   int    // position of the segment in the stream
	Segment []byte // offending bytes, without delimiters
	Err     error  // underlying parse error
}

// Error implements the error interface
func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("frame decode failed: segment %d %q: %v", e.Index, e.Segment, e.Err)
}

// Unwrap allows errors.Is(err, ErrFrameDecode) and access to the parse error
func (e *FrameDecodeError) Unwrap() []error {
	return []error{ErrFrameDecode, e.Err}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// DecodeStream splits raw bytes on the delimiter and decodes every non-empty
// segment as one frame.
//
// A segment that is not a well-formed record fails the whole stream with a
// *FrameDecodeError. No attempt is made to recover the remaining segments.
func DecodeStream(raw []byte) ([]*Frame, error) {
	segments := bytes.Split(raw, []byte{Delimiter})
	frames := make([]*Frame, 0, len(segments))
	now := time.Now()

	index := 0
	for _, seg := range segments {
		if len(bytes.TrimSpace(seg)) == 0 {
			continue
		}
		frame, err := ParseRecord(seg)
		if err != nil {
			return nil, &FrameDecodeError{Index: index, Segment: seg, Err: err}
		}
		frame.Timestamp = now
		frames = append(frames, frame)
		index++
	}

	return frames, nil
}

// ParseRecord parses a single record (no delimiters) into a frame.
// The record must be a JSON object with an integer cmdID key. The status key,
// when present, must be an integer; a record without one gets StatusUnset.
func ParseRecord(record []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(record))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("expected JSON object, got null")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after record")
	}

	id, err := requireInt(obj, KeyCmdID)
	if err != nil {
		return nil, err
	}
	status := int64(StatusUnset)
	if _, ok := obj[KeyStatus]; ok {
		status, err = requireInt(obj, KeyStatus)
		if err != nil {
			return nil, err
		}
	}

	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == KeyCmdID || k == KeyStatus {
			continue
		}
		fields[k] = normalizeNumber(v)
	}

	raw := make([]byte, len(record))
	copy(raw, record)

	return &Frame{
		ID:     int(id),
		Status: Status(status),
		Fields: fields,
		Raw:    raw,
	}, nil
}

func requireInt(obj map[string]any, key string) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected integer for %q, got %T", key, v)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("expected integer for %q, got %s", key, n)
	}
	return i, nil
}

// normalizeNumber converts json.Number leaves into int64 or float64
func normalizeNumber(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i := range val {
			val[i] = normalizeNumber(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = normalizeNumber(val[k])
		}
		return val
	}
	return v
}

// Decoder decodes frames from a continuous byte stream.
//
// Unlike DecodeStream it keeps a partial record across calls, so bytes can be
// fed as they arrive. A malformed record is reported and dropped; decoding
// resumes at the next delimiter.
type Decoder struct {
	buffer    []byte
	discard   bool   // drop bytes until the next delimiter
	rawBuffer []byte // bytes of the pending record, at most MaxRecordSize
}

// NewDecoder creates a new streaming frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer:    make([]byte, 0, MaxRecordSize),
		rawBuffer: make([]byte, 0, MaxRecordSize),
	}
}

// Reset drops any partial record
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
	d.rawBuffer = d.rawBuffer[:0]
	d.discard = false
}

// GetRawBytes returns the bytes consumed toward the pending record. Bytes
// dropped while skipping an oversized record are not kept.
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// Buffered returns the number of bytes of the pending partial record
func (d *Decoder) Buffered() int {
	return len(d.buffer)
}

// DecodeByte processes a single byte.
// Returns a completed frame when b terminates a non-empty record, nil while a
// record is incomplete, and an error when the terminated record is malformed.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if b != Delimiter {
		if d.discard {
			return nil, nil
		}
		if len(d.buffer) >= MaxRecordSize {
			d.buffer = d.buffer[:0]
			d.rawBuffer = d.rawBuffer[:0]
			d.discard = true
			return nil, fmt.Errorf("%w: no delimiter within %d bytes", ErrRecordTooLarge, MaxRecordSize)
		}
		d.buffer = append(d.buffer, b)
		d.rawBuffer = append(d.rawBuffer, b)
		return nil, nil
	}

	// Delimiter
	if d.discard {
		d.Reset()
		return nil, nil
	}
	if len(bytes.TrimSpace(d.buffer)) == 0 {
		d.Reset()
		return nil, nil
	}

	frame, err := ParseRecord(d.buffer)
	if err != nil {
		err = &FrameDecodeError{Segment: append([]byte(nil), d.buffer...), Err: err}
		d.Reset()
		return nil, err
	}
	frame.Timestamp = time.Now()
	d.Reset()
	return frame, nil
}

// Decode feeds a chunk of bytes and returns every frame completed by it,
// along with the errors of any malformed records.
func (d *Decoder) Decode(chunk []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range chunk {
		frame, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

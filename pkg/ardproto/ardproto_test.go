// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// joinRecords concatenates records with the delimiter between them
func joinRecords(records ...string) []byte {
	return []byte(strings.Join(records, string(Delimiter)))
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_AllSlots(t *testing.T) {
	data, err := Encode(NewCommand("do_nothing", 77777))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	expected := `{"function":"do_nothing()","cmdID":77777,` +
		`"intArg0":-1,"intArg1":-1,"intArg2":-1,"intArg3":-1,` +
		`"floatArg0":-1.0,"floatArg1":-1.0,"strArg0":"","strArg1":""}`
	if string(data) != expected {
		t.Errorf("Encode mismatch:\n got: %s\nwant: %s", data, expected)
	}
}

func TestEncode_Compact(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		expected string
	}{
		{
			name:     "no arguments",
			cmd:      NewCommand("do_nothing", 88888),
			expected: `{"function":"do_nothing()","cmdID":88888}`,
		},
		{
			name:     "move forward",
			cmd:      NewCommand("move_forward", 44444).WithInt(0, 90).WithInt(1, 1).WithFloat(0, 0.40),
			expected: `{"function":"move_forward()","cmdID":44444,"intArg0":90,"intArg1":1,"floatArg0":0.4}`,
		},
		{
			name:     "string argument",
			cmd:      NewCommand("say", 1).WithString(1, "a<b>&c"),
			expected: `{"function":"say()","cmdID":1,"strArg1":"a<b>&c"}`,
		},
		{
			name:     "integral float keeps decimal point",
			cmd:      NewCommand("rotate", 2).WithFloat(1, 3),
			expected: `{"function":"rotate()","cmdID":2,"floatArg1":3.0}`,
		},
	}

	enc := &Encoder{Compact: true}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := enc.Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("got %s, want %s", data, tt.expected)
			}
		})
	}
}

func TestEncode_NoDelimiterInOutput(t *testing.T) {
	data, err := Encode(NewCommand("move_backward", 55555).WithInt(0, 30).WithString(0, "fast"))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if bytes.IndexByte(data, Delimiter) >= 0 {
		t.Errorf("encoded command contains delimiter: %s", data)
	}
	if bytes.HasSuffix(data, []byte("\n")) {
		t.Error("encoded command should not end with a newline")
	}
}

func TestEncode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"empty function", NewCommand("", 1)},
		{"negative id", NewCommand("f", -1)},
		{"id too large", NewCommand("f", MaxCmdID)},
		{"delimiter in function", NewCommand("a|b", 1)},
		{"delimiter in string", NewCommand("f", 1).WithString(0, "x|y")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.cmd)
			if !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("expected ErrInvalidCommand, got %v", err)
			}
		})
	}
}

// ============================================================
// DecodeStream Tests
// ============================================================

func TestDecodeStream_RoundTrip(t *testing.T) {
	cmd := NewCommand("do_nothing", 88888)
	data, err := Encode(cmd)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	frames, err := DecodeStream(append(data, Delimiter))
	if err != nil {
		t.Fatalf("DecodeStream error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].ID != cmd.ID {
		t.Errorf("cmdID = %d, want %d", frames[0].ID, cmd.ID)
	}
	function, ok := frames[0].Text(KeyFunction)
	if !ok || function != "do_nothing()" {
		t.Errorf("function = %q, want %q", function, "do_nothing()")
	}
	if frames[0].Status != StatusUnset {
		t.Errorf("status = %v, want %v", frames[0].Status, StatusUnset)
	}
}

func TestDecodeStream_KRecords(t *testing.T) {
	records := []string{
		`{"cmdID":5,"status":1}`,
		`{"cmdID":5,"status":0,"val":7}`,
		`{"cmdID":5,"status":3,"dist":12.5}`,
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"plain", joinRecords(records...)},
		{"leading delimiter", append([]byte{Delimiter}, joinRecords(records...)...)},
		{"trailing delimiters", append(joinRecords(records...), Delimiter, Delimiter)},
		{"empty middle segments", joinRecords(records[0], "", "", records[1], "", records[2])},
		{"line endings", []byte("|" + records[0] + "|" + records[1] + "|" + records[2] + "|\r\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := DecodeStream(tt.raw)
			if err != nil {
				t.Fatalf("DecodeStream error: %v", err)
			}
			if len(frames) != len(records) {
				t.Fatalf("expected %d frames, got %d", len(records), len(frames))
			}
			if frames[0].Status != StatusAck || frames[1].Status != StatusSuccess {
				t.Errorf("frames out of order: %v, %v", frames[0].Status, frames[1].Status)
			}
		})
	}
}

func TestDecodeStream_Empty(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {Delimiter}, []byte("||"), []byte(" \r\n")} {
		frames, err := DecodeStream(raw)
		if err != nil {
			t.Errorf("DecodeStream(%q) error: %v", raw, err)
		}
		if len(frames) != 0 {
			t.Errorf("DecodeStream(%q) = %d frames, want 0", raw, len(frames))
		}
	}
}

func TestDecodeStream_Payload(t *testing.T) {
	frames, err := DecodeStream([]byte(`{"cmdID":12,"status":0,"val":7,"dist":1.5,"name":"left","ok":true}|`))
	if err != nil {
		t.Fatalf("DecodeStream error: %v", err)
	}
	f := frames[0]

	if v, ok := f.Int("val"); !ok || v != 7 {
		t.Errorf("val = %d (%v), want 7", v, ok)
	}
	if v, ok := f.Float("dist"); !ok || v != 1.5 {
		t.Errorf("dist = %g (%v), want 1.5", v, ok)
	}
	if v, ok := f.Float("val"); !ok || v != 7 {
		t.Errorf("val as float = %g (%v), want 7", v, ok)
	}
	if v, ok := f.Text("name"); !ok || v != "left" {
		t.Errorf("name = %q (%v), want left", v, ok)
	}
	if v, ok := f.Bool("ok"); !ok || !v {
		t.Errorf("ok = %v (%v), want true", v, ok)
	}
	if f.Has(KeyCmdID) || f.Has(KeyStatus) {
		t.Error("cmdID and status should not be payload fields")
	}
	if _, ok := f.Int("missing"); ok {
		t.Error("missing field should not be found")
	}
	if string(f.Raw) != `{"cmdID":12,"status":0,"val":7,"dist":1.5,"name":"left","ok":true}` {
		t.Errorf("Raw = %s", f.Raw)
	}
}

func TestDecodeStream_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		index int
	}{
		{"not json", `{"cmdID":1,"status":1}|garbage`, 1},
		{"truncated", `{"cmdID":1,"sta`, 0},
		{"array", `[1,2]`, 0},
		{"null", `null`, 0},
		{"missing cmdID", `{"status":1}`, 0},
		{"string cmdID", `{"cmdID":"1","status":1}`, 0},
		{"float status", `{"cmdID":1,"status":1.5}`, 0},
		{"two objects in one segment", `{"cmdID":1,"status":1}{"cmdID":1,"status":0}`, 0},
		{"single quotes", `{'cmdID':1,'status':1}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := DecodeStream([]byte(tt.raw))
			if frames != nil {
				t.Errorf("expected no frames, got %d", len(frames))
			}
			if !errors.Is(err, ErrFrameDecode) {
				t.Fatalf("expected ErrFrameDecode, got %v", err)
			}
			var decodeErr *FrameDecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *FrameDecodeError, got %T", err)
			}
			if decodeErr.Index != tt.index {
				t.Errorf("Index = %d, want %d", decodeErr.Index, tt.index)
			}
		})
	}
}

// ============================================================
// Streaming Decoder Tests
// ============================================================

func TestDecoder_SplitAcrossChunks(t *testing.T) {
	d := NewDecoder()

	frames, errs := d.Decode([]byte(`{"cmdID":9,"sta`))
	if len(frames) != 0 || len(errs) != 0 {
		t.Fatalf("expected nothing yet, got %d frames %v", len(frames), errs)
	}
	if d.Buffered() == 0 {
		t.Error("expected partial record to be buffered")
	}

	frames, errs = d.Decode([]byte(`tus":1}|{"cmdID":9,"status":0}|`))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !frames[0].IsAck() || !frames[1].IsSuccess() {
		t.Errorf("unexpected statuses %v, %v", frames[0].Status, frames[1].Status)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d after complete record", d.Buffered())
	}
}

func TestDecoder_RecoversAfterMalformed(t *testing.T) {
	d := NewDecoder()
	frames, errs := d.Decode([]byte(`oops|{"cmdID":3,"status":14}|`))
	if len(errs) != 1 || !errors.Is(errs[0], ErrFrameDecode) {
		t.Fatalf("expected one decode error, got %v", errs)
	}
	if len(frames) != 1 || !frames[0].IsRejection() {
		t.Fatalf("expected rejection frame after error, got %v", frames)
	}
}

func TestDecoder_RecordTooLarge(t *testing.T) {
	d := NewDecoder()
	big := bytes.Repeat([]byte("x"), MaxRecordSize+10)

	_, errs := d.Decode(big)
	if len(errs) != 1 || !errors.Is(errs[0], ErrRecordTooLarge) {
		t.Fatalf("expected ErrRecordTooLarge, got %v", errs)
	}

	frames, errs := d.Decode([]byte(`|{"cmdID":1,"status":1}|`))
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("decoder did not resync: %d frames, %v", len(frames), errs)
	}
}

func TestDecoder_NoDelimiterStaysBounded(t *testing.T) {
	d := NewDecoder()
	noise := bytes.Repeat([]byte("z"), 10*MaxRecordSize+7)

	_, errs := d.Decode(noise)
	if len(errs) != 1 || !errors.Is(errs[0], ErrRecordTooLarge) {
		t.Fatalf("expected one ErrRecordTooLarge, got %v", errs)
	}
	if n := len(d.GetRawBytes()); n > MaxRecordSize {
		t.Errorf("raw buffer holds %d bytes, limit %d", n, MaxRecordSize)
	}
	if d.Buffered() > MaxRecordSize {
		t.Errorf("buffered %d bytes, limit %d", d.Buffered(), MaxRecordSize)
	}

	frames, errs := d.Decode([]byte(`|{"cmdID":2,"status":0}|`))
	if len(errs) != 0 || len(frames) != 1 || frames[0].ID != 2 {
		t.Fatalf("decoder did not resync: %d frames, %v", len(frames), errs)
	}
}

// ============================================================
// Identifier Generator Tests
// ============================================================

func TestRandomIDs_Range(t *testing.T) {
	var g RandomIDs
	for i := 0; i < 10000; i++ {
		id := g.NextID()
		if id < 0 || id >= MaxCmdID {
			t.Fatalf("id %d out of range", id)
		}
	}
}

func TestSequentialIDs_Range(t *testing.T) {
	g := NewSequentialIDs()
	for i := 0; i < 10000; i++ {
		id := g.NextID()
		if id < 0 || id >= MaxCmdID {
			t.Fatalf("id %d out of range", id)
		}
	}
}

func TestSequentialIDs_Wraparound(t *testing.T) {
	g := NewSequentialIDsFrom(MaxCmdID - 2)
	got := []int{g.NextID(), g.NextID(), g.NextID()}
	want := []int{MaxCmdID - 2, MaxCmdID - 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NextID #%d = %d, want %d", i, got[i], want[i])
		}
	}

	if g := NewSequentialIDsFrom(-1); g.NextID() != MaxCmdID-1 {
		t.Error("negative start should wrap")
	}
}

func TestSequentialIDs_ConcurrentUnique(t *testing.T) {
	g := NewSequentialIDs()
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[int]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := g.NextID()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestIDDistance(t *testing.T) {
	tests := []struct {
		a, b, want int
	}{
		{10, 10, 0},
		{10, 12, 2},
		{MaxCmdID - 1, 1, 2},
		{12, 10, MaxCmdID - 2},
	}
	for _, tt := range tests {
		if got := IDDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("IDDistance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name     string
		frame    *Frame
		expected int
		want     []AnomalyType
	}{
		{"valid", NewFrame(5, StatusAck, nil), 5, nil},
		{"passive", NewFrame(5, StatusSuccess, nil), -1, nil},
		{"out of range", NewFrame(MaxCmdID, StatusSuccess, nil), -1, []AnomalyType{AnomalyIDOutOfRange}},
		{"no status", NewFrame(5, StatusUnset, nil), 5, []AnomalyType{AnomalyMissingStatus}},
		{"negative status", NewFrame(5, Status(-3), nil), 5, []AnomalyType{AnomalyNegativeStatus}},
		{"stale", NewFrame(3, StatusSuccess, nil), 5, []AnomalyType{AnomalyStaleID}},
		{"stale across wrap", NewFrame(MaxCmdID-1, StatusSuccess, nil), 2, []AnomalyType{AnomalyStaleID}},
		{"mismatch", NewFrame(500, StatusSuccess, nil), 5, []AnomalyType{AnomalyIDMismatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(tt.frame, tt.expected)
			if len(errs) != len(tt.want) {
				t.Fatalf("got %d anomalies %v, want %d", len(errs), errs, len(tt.want))
			}
			for i, e := range errs {
				if e.Type != tt.want[i] {
					t.Errorf("anomaly %d = %v, want %v", i, e.Type, tt.want[i])
				}
				if e.Error() == "" {
					t.Error("anomaly message should not be empty")
				}
			}
		})
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusSuccess:       "SUCCESS",
		StatusAck:           "ACK",
		StatusNotRegistered: "NOT_REGISTERED",
		StatusUnset:         "NO_STATUS",
		Status(42):          "STATUS_42",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestFormatFrame(t *testing.T) {
	f := NewFrame(42, StatusSuccess, map[string]any{"val": int64(7), "name": "x", "dist": 0.5})
	out := FormatFrame(f)

	for _, want := range []string{"SUCCESS (0)", "cmdID=00042", `dist=0.5 name="x" val=7`} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame output %q missing %q", out, want)
		}
	}
}

func TestFormatCommand(t *testing.T) {
	c := NewCommand("move_forward", 33333).WithInt(0, 90).WithFloat(0, 0.4).WithString(1, "s")
	want := `move_forward() cmdID=33333 intArg0=90 floatArg0=0.4 strArg1="s"`
	if got := FormatCommand(c); got != want {
		t.Errorf("FormatCommand = %q, want %q", got, want)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(NewFrame(1, StatusAck, nil), nil, nil)
	s.Update(NewFrame(1, StatusSuccess, nil), nil, nil)
	s.Update(nil, errors.New("bad"), nil)
	s.Update(NewFrame(9, StatusSuccess, nil), nil, ValidateFrame(NewFrame(900, StatusSuccess, nil), 1))
	s.RecordGarbledRead()
	s.RecordSent()
	s.RecordAck()
	s.RecordTimeout()

	snap := s.Snapshot()
	if snap.TotalFrames != 4 {
		t.Errorf("TotalFrames = %d, want 4", snap.TotalFrames)
	}
	if snap.ValidFrames != 2 || snap.PayloadFrames != 1 {
		t.Errorf("ValidFrames = %d, PayloadFrames = %d", snap.ValidFrames, snap.PayloadFrames)
	}
	if snap.DecodeErrors != 1 || snap.AnomalousIDs != 1 || snap.GarbledReads != 1 {
		t.Errorf("error counters = %d/%d/%d", snap.DecodeErrors, snap.AnomalousIDs, snap.GarbledReads)
	}
	if snap.CommandsSent != 1 || snap.Acknowledged != 1 || snap.Timeouts != 1 {
		t.Errorf("command counters = %d/%d/%d", snap.CommandsSent, snap.Acknowledged, snap.Timeouts)
	}

	out := s.String()
	if !strings.Contains(out, "Commands Sent:") || !strings.Contains(out, "Timed Out:") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	s.Reset()
	if snap := s.Snapshot(); snap.TotalFrames != 0 || snap.CommandsSent != 0 {
		t.Error("Reset should clear counters")
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

func newTestChannel(tr Transport, stats *ardproto.Statistics) *ResponseChannel {
	return NewResponseChannel(tr, time.Millisecond, logger.Nop(), stats)
}

func TestReadAvailable_FirstBatch(t *testing.T) {
	tr := newScriptedTransport(
		"",
		`{"cmdID":7,"status":1}|{"cmdID":7,"status":0,"distance":12}|`,
		`{"cmdID":8,"status":1}|`,
	)
	ch := newTestChannel(tr, nil)

	frames, err := ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.True(t, frames[0].IsAck())
	assert.True(t, frames[1].IsSuccess())

	dist, ok := frames[1].Int("distance")
	require.True(t, ok)
	assert.EqualValues(t, 12, dist)

	// the next batch stays on the transport
	assert.Equal(t, 2, tr.readCalls)

	frames, err = ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 8, frames[0].ID)
}

func TestReadAvailable_WindowElapses(t *testing.T) {
	tr := newScriptedTransport()
	ch := newTestChannel(tr, nil)

	start := time.Now()
	frames, err := ch.ReadAvailable(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, frames)
	assert.Empty(t, frames)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Greater(t, tr.readCalls, 1, "transport is polled every tick")
}

func TestReadAvailable_ZeroWindowReadsOnce(t *testing.T) {
	tr := newScriptedTransport()
	ch := newTestChannel(tr, nil)

	frames, err := ch.ReadAvailable(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Equal(t, 1, tr.readCalls)
}

func TestReadAvailable_SkipsGarbledRead(t *testing.T) {
	tr := newScriptedTransport(
		string([]byte{0xff, 0xfe, 0x7b}),
		`{"cmdID":3,"status":14}|`,
	)
	stats := ardproto.NewStatistics()
	ch := newTestChannel(tr, stats)

	frames, err := ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsRejection())
	assert.EqualValues(t, 1, stats.Snapshot().GarbledReads)
}

func TestReadAvailable_MalformedRecord(t *testing.T) {
	tr := newScriptedTransport(`{"cmdID":1,"status":1}|not json|`)
	stats := ardproto.NewStatistics()
	ch := newTestChannel(tr, stats)

	frames, err := ch.ReadAvailable(context.Background(), time.Second)
	assert.Nil(t, frames)
	require.ErrorIs(t, err, ardproto.ErrFrameDecode)

	var decErr *ardproto.FrameDecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, 1, decErr.Index)
	assert.Equal(t, "not json", string(decErr.Segment))
	assert.EqualValues(t, 1, stats.Snapshot().DecodeErrors)
}

func TestReadAvailable_TransportError(t *testing.T) {
	tr := newScriptedTransport()
	tr.readErr = io.ErrUnexpectedEOF
	ch := newTestChannel(tr, nil)

	_, err := ch.ReadAvailable(context.Background(), time.Second)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadAvailable_Cancelled(t *testing.T) {
	tr := newScriptedTransport()
	ch := newTestChannel(tr, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ch.ReadAvailable(ctx, time.Minute)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReadAvailable_RecordSplitAcrossReads(t *testing.T) {
	tr := newScriptedTransport(`{"cmdID":88888,"sta`, `tus":1}|`)
	ch := newTestChannel(tr, nil)

	frames, err := ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 88888, frames[0].ID)
	assert.True(t, frames[0].IsAck())
	assert.Equal(t, 2, tr.readCalls)
}

func TestReadAvailable_SplitWithIdleTick(t *testing.T) {
	tr := newScriptedTransport(
		`{"cmdID":5,"status":1}|{"cmdID":5,"sta`,
		"",
		`tus":0,"distance":3}|`,
	)
	ch := newTestChannel(tr, nil)

	frames, err := ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.True(t, frames[0].IsAck())
	assert.True(t, frames[1].IsSuccess())
	assert.Equal(t, 3, tr.readCalls)
}

func TestReadAvailable_UnterminatedRecord(t *testing.T) {
	tr := newScriptedTransport(`{"cmdID":4,"status":1}`)
	ch := newTestChannel(tr, nil)

	frames, err := ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsAck())
}

func TestReadAvailable_IncompleteTailAtWindowEnd(t *testing.T) {
	tr := newScriptedTransport(`{"cmdID":4,"status":1}|{"cmdID":4,"st`, "", `atus":0}|{"cmdID":6,"status":1}|`)
	stats := ardproto.NewStatistics()
	ch := newTestChannel(tr, stats)

	frames, err := ch.ReadAvailable(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsAck())
	assert.EqualValues(t, 1, stats.Snapshot().GarbledReads)

	// an idle read, then the rest of the dropped record is skipped
	frames, err = ch.ReadAvailable(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 6, frames[0].ID)
}

func TestReadAvailable_FragmentOnlyIsNotAnError(t *testing.T) {
	tr := newScriptedTransport(`{"cmdID":4,"sta`)
	ch := newTestChannel(tr, nil)

	frames, err := ch.ReadAvailable(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, frames)
	assert.Empty(t, frames)
}

func TestReadAvailable_GarbledMidRecord(t *testing.T) {
	tr := newScriptedTransport(
		`{"cmdID":9,"st`,
		string([]byte{0xff, 0xfe}),
		`atus":1}|{"cmdID":9,"status":1}|`,
	)
	stats := ardproto.NewStatistics()
	ch := newTestChannel(tr, stats)

	frames, err := ch.ReadAvailable(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 9, frames[0].ID)
	assert.True(t, frames[0].IsAck())
	assert.EqualValues(t, 1, stats.Snapshot().GarbledReads)
	assert.Zero(t, stats.Snapshot().DecodeErrors)
}

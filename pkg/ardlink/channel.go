// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

// DefaultTickInterval is how often the transport is polled for bytes
const DefaultTickInterval = 100 * time.Millisecond

// readBufferSize holds several full records; the firmware never sends more
// than a handful per command.
const readBufferSize = 4096

// FrameReader yields the frames available within a time window
type FrameReader interface {
	ReadAvailable(ctx context.Context, window time.Duration) ([]*ardproto.Frame, error)
}

// ResponseChannel reads byte batches from a transport and decodes them.
//
// Each call returns the frames of the first complete response. Bytes arriving
// after it are left for the next call. A ResponseChannel is not safe for
// concurrent use.
type ResponseChannel struct {
	transport Transport
	tick      time.Duration
	buf       []byte
	log       logger.Logger
	stats     *ardproto.Statistics

	// resync is set when the last call ended inside a record
	resync bool
}

// NewResponseChannel creates a response channel over the transport.
// stats may be nil.
func NewResponseChannel(t Transport, tick time.Duration, log logger.Logger, stats *ardproto.Statistics) *ResponseChannel {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ResponseChannel{
		transport: t,
		tick:      tick,
		buf:       make([]byte, readBufferSize),
		log:       log,
		stats:     stats,
	}
}

// ReadAvailable polls the transport every tick until a complete response
// arrives or window elapses.
//
// Reads landing mid-write are expected: text is accumulated within the call
// until it ends on a delimiter or on a record that parses on its own. A batch
// that is not valid UTF-8 is dropped along with any partial record, and the
// fragment that follows it up to the next delimiter is skipped if it does not
// parse. A delimited record that is malformed fails the call with a
// *ardproto.FrameDecodeError. When window elapses the delimited records read
// so far are returned and an unterminated tail is dropped, with the rest of
// that record skipped by the next call; with none, an empty slice and a nil
// error are returned.
func (c *ResponseChannel) ReadAvailable(ctx context.Context, window time.Duration) ([]*ardproto.Frame, error) {
	deadline := time.Now().Add(window)

	var pending []byte
	resync := c.resync
	c.resync = false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := c.transport.Read(c.buf)
		if n > 0 {
			batch := c.buf[:n]
			if utf8.Valid(batch) {
				pending = append(pending, batch...)
				if resync {
					pending, resync = c.dropFragment(pending)
				}
				if !resync && complete(pending) {
					return c.decode(pending)
				}
			} else {
				c.log.Debug("skipping garbled read", "bytes", n, "partial", len(pending))
				if c.stats != nil {
					c.stats.RecordGarbledRead()
				}
				pending = pending[:0]
				resync = true
			}
		}
		if err != nil {
			return nil, fmt.Errorf("transport read failed: %w", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.flush(pending, resync)
		}
		if err := sleepContext(ctx, min(c.tick, remaining)); err != nil {
			return nil, err
		}
	}
}

// complete reports whether pending holds at least one record and ends on a
// record boundary.
func complete(pending []byte) bool {
	if len(bytes.TrimSpace(pending)) == 0 {
		return false
	}
	tail := bytes.TrimSpace(pending[bytes.LastIndexByte(pending, ardproto.Delimiter)+1:])
	if len(tail) == 0 {
		return true
	}
	_, err := ardproto.ParseRecord(tail)
	return err == nil
}

// dropFragment removes the leading segment when it is the unparseable end of
// a record broken by a garbled read. It reports whether a delimiter is still
// awaited.
func (c *ResponseChannel) dropFragment(pending []byte) ([]byte, bool) {
	i := bytes.IndexByte(pending, ardproto.Delimiter)
	if i < 0 {
		return pending, true
	}
	seg := bytes.TrimSpace(pending[:i])
	if len(seg) == 0 {
		return pending, false
	}
	if _, err := ardproto.ParseRecord(seg); err == nil {
		return pending, false
	}
	c.log.Debug("skipping partial record", "raw", string(seg))
	return pending[i+1:], false
}

// flush decodes the delimited records of pending once the window is over
func (c *ResponseChannel) flush(pending []byte, resync bool) ([]*ardproto.Frame, error) {
	last := bytes.LastIndexByte(pending, ardproto.Delimiter)
	if tail := bytes.TrimSpace(pending[last+1:]); len(tail) > 0 {
		c.log.Debug("dropping incomplete record", "raw", string(tail))
		if c.stats != nil {
			c.stats.RecordGarbledRead()
		}
		c.resync = true
	} else if last < 0 {
		c.resync = resync
	}
	if last < 0 {
		return []*ardproto.Frame{}, nil
	}
	return c.decode(pending[:last+1])
}

func (c *ResponseChannel) decode(batch []byte) ([]*ardproto.Frame, error) {
	frames, err := ardproto.DecodeStream(batch)
	if err != nil {
		if c.stats != nil {
			c.stats.Update(nil, err, nil)
		}
		c.log.Error("frame decode failed", "raw", string(batch), "error", err)
		return nil, err
	}

	for _, f := range frames {
		c.log.Debug("ARD01 -->", "cmdID", f.ID, "status", f.Status, "raw", string(f.Raw))
	}
	return frames, nil
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

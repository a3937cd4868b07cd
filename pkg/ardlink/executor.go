// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ardlink drives a microcontroller over a duplex byte link: it sends
// commands, classifies the acknowledgment and polls for late responses.
package ardlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

// Executor sends one command at a time over an owned transport.
//
// Concurrent callers are serialised; a command is never written while the
// previous one is still awaiting its response.
type Executor struct {
	mu sync.Mutex

	transport Transport
	reader    FrameReader
	encoder   *ardproto.Encoder
	ids       ardproto.IDGenerator
	limiter   *rate.Limiter
	stats     *ardproto.Statistics
	log       logger.Logger

	readWindow     time.Duration
	pollSleep      time.Duration
	pollIterations int

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// NewExecutor takes ownership of the transport. Close releases it.
func NewExecutor(t Transport, opts ...Option) (*Executor, error) {
	if t == nil {
		return nil, errors.New("transport is nil")
	}

	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.log == nil {
		cfg.log = logger.GetLogger()
	}
	if cfg.ids == nil {
		cfg.ids = ardproto.NewSequentialIDs()
	}
	if cfg.encoder == nil {
		cfg.encoder = ardproto.NewEncoder()
	}
	if cfg.reader == nil {
		cfg.reader = NewResponseChannel(t, cfg.tickInterval, cfg.log, cfg.stats)
	}

	return &Executor{
		transport:      t,
		reader:         cfg.reader,
		encoder:        cfg.encoder,
		ids:            cfg.ids,
		limiter:        cfg.limiter,
		stats:          cfg.stats,
		log:            cfg.log,
		readWindow:     cfg.readWindow,
		pollSleep:      cfg.pollSleep(),
		pollIterations: cfg.pollIterations,
	}, nil
}

// Statistics returns the counters the executor records into, or nil
func (e *Executor) Statistics() *ardproto.Statistics {
	return e.stats
}

// NextCommand builds a command with a fresh identifier and every argument slot
// absent.
func (e *Executor) NextCommand(function string) ardproto.Command {
	return ardproto.NewCommand(function, e.ids.NextID())
}

// Execute builds and executes a command with a fresh identifier
func (e *Executor) Execute(ctx context.Context, function string, args ...Arg) (*Result, error) {
	cmd := e.NextCommand(function)
	for _, arg := range args {
		cmd = arg(cmd)
	}
	return e.ExecuteCommand(ctx, cmd)
}

// ExecuteCommand sends cmd and waits for its acknowledgment.
//
// An acknowledged command returns the other frames of its response batch as
// payload, which may be empty. A rejected command is a successful call with
// Outcome set to OutcomeRejected. When the first read window passes without
// frames the executor polls; if every poll iteration is empty as well the
// call fails with a *CommandTimeoutError. A response batch with no control
// frame fails with a *ProtocolError.
func (e *Executor) ExecuteCommand(ctx context.Context, cmd ardproto.Command) (*Result, error) {
	return e.execute(ctx, cmd, e.encoder)
}

// ExecuteCompact is ExecuteCommand with absent argument slots left off the
// wire.
func (e *Executor) ExecuteCompact(ctx context.Context, cmd ardproto.Command) (*Result, error) {
	return e.execute(ctx, cmd, &ardproto.Encoder{Compact: true})
}

func (e *Executor) execute(ctx context.Context, cmd ardproto.Command, enc *ardproto.Encoder) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	res := &Result{Command: cmd}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	res.enter(StateBuilt)
	raw, err := enc.Encode(cmd)
	if err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if _, err := e.transport.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to write command: %w", err)
	}
	res.enter(StateSent)
	if e.stats != nil {
		e.stats.RecordSent()
	}
	e.log.Debug("ARD01 <--", "cmdID", cmd.ID, "raw", string(raw))

	res.enter(StateAwaitingAck)
	frames, polls, err := e.awaitFrames(ctx, e.pollIterations)
	res.Polls = polls
	if err != nil {
		if errors.Is(err, ErrCommandTimeout) {
			res.enter(StateTimedOut)
			res.enter(StateDone)
			if e.stats != nil {
				e.stats.RecordTimeout()
			}
			return res, &CommandTimeoutError{Command: cmd, Iterations: polls, Elapsed: time.Since(start)}
		}
		return nil, err
	}
	e.observe(frames, cmd.ID)

	outcome, payload, err := Resolve(frames, cmd.ID)
	res.Outcome = outcome
	if err != nil {
		if e.stats != nil {
			e.stats.RecordProtocolFailure()
		}
		e.log.Error("no control frame in response", "cmdID", cmd.ID, "frames", len(frames))
		return res, err
	}

	switch outcome {
	case OutcomeAcknowledged:
		res.enter(StateAcknowledged)
		res.Payload = payload
		res.Completion = findCompletion(payload, cmd.ID)
		if e.stats != nil {
			e.stats.RecordAck()
			if res.Completion != nil {
				e.stats.RecordCompleted()
			}
		}
		e.log.Debug("command acknowledged", "cmdID", cmd.ID, "payload", len(payload))
	case OutcomeRejected:
		res.enter(StateRejected)
		if e.stats != nil {
			e.stats.RecordRejected()
		}
		e.log.Warn("function not registered on device", "function", cmd.WireFunction(), "cmdID", cmd.ID)
	}
	res.enter(StateDone)

	return res, nil
}

// AwaitCompletion polls for the status 0 frame of an acknowledged command.
//
// Frames arriving meanwhile are appended to the result payload. The
// completion is returned at once when the payload already holds it. A
// rejected command has no completion and returns nil with no error. No
// completion after the given number of poll iterations fails with a
// *CommandTimeoutError.
func (e *Executor) AwaitCompletion(ctx context.Context, res *Result, iterations int) (*ardproto.Frame, error) {
	if res == nil {
		return nil, errors.New("result is nil")
	}
	if res.Completion != nil {
		return res.Completion, nil
	}
	if res.Outcome == OutcomeRejected {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	id := res.Command.ID
	for i := 1; i <= iterations; i++ {
		frames, err := e.reader.ReadAvailable(ctx, e.readWindow)
		if err != nil {
			return nil, err
		}
		res.Polls++

		if len(frames) > 0 {
			e.observe(frames, id)
			res.Payload = append(res.Payload, frames...)
			if done := findCompletion(frames, id); done != nil {
				res.Completion = done
				if e.stats != nil {
					e.stats.RecordCompleted()
				}
				e.log.Debug("command completed", "cmdID", id)
				return done, nil
			}
		}

		if i < iterations {
			if err := sleepContext(ctx, e.pollSleep); err != nil {
				return nil, err
			}
		}
	}

	if e.stats != nil {
		e.stats.RecordTimeout()
	}
	return nil, &CommandTimeoutError{Command: res.Command, Iterations: iterations, Elapsed: time.Since(start)}
}

// DoNothing round-trips the device's no-op function.
//
// An acknowledgment with no other frames waits one poll iteration for the
// completion. When the acknowledgment already carried payload the result is
// returned as is, with Completion set only if the status 0 frame was among it.
func (e *Executor) DoNothing(ctx context.Context) (*Result, error) {
	res, err := e.Execute(ctx, "do_nothing")
	if err != nil {
		return res, err
	}
	if !res.Acknowledged() || len(res.Payload) > 0 {
		return res, nil
	}
	if _, err := e.AwaitCompletion(ctx, res, 1); err != nil {
		return res, err
	}
	return res, nil
}

// Close releases the transport. It is safe to call more than once.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.closeErr = e.transport.Close()
	})
	return e.closeErr
}

// awaitFrames performs the initial read and then up to iterations poll reads.
// It returns the first non-empty batch and the number of poll iterations used.
func (e *Executor) awaitFrames(ctx context.Context, iterations int) ([]*ardproto.Frame, int, error) {
	frames, err := e.reader.ReadAvailable(ctx, e.readWindow)
	if err != nil {
		return nil, 0, err
	}
	if len(frames) > 0 {
		return frames, 0, nil
	}

	for i := 1; i <= iterations; i++ {
		e.log.Debug("polling for response", "iteration", i, "of", iterations)
		frames, err := e.reader.ReadAvailable(ctx, e.readWindow)
		if err != nil {
			return nil, i, err
		}
		if len(frames) > 0 {
			return frames, i, nil
		}
		if i < iterations {
			if err := sleepContext(ctx, e.pollSleep); err != nil {
				return nil, i, err
			}
		}
	}

	return nil, iterations, ErrCommandTimeout
}

// observe validates frames against the outstanding identifier
func (e *Executor) observe(frames []*ardproto.Frame, expectedID int) {
	for _, f := range frames {
		anomalies := ardproto.ValidateFrame(f, expectedID)
		for _, a := range anomalies {
			e.log.Warn("frame anomaly", "cmdID", f.ID, "expected", expectedID, "error", a.Message)
		}
		if e.stats != nil {
			e.stats.Update(f, nil, anomalies)
		}
	}
}

func findCompletion(frames []*ardproto.Frame, id int) *ardproto.Frame {
	for _, f := range frames {
		if f.ID == id && f.IsSuccess() {
			return f
		}
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

// Defaults for an Executor
const (
	DefaultReadWindow     = time.Second
	DefaultReadTimeout    = 100 * time.Millisecond
	DefaultPollPeriod     = time.Second
	DefaultPollIterations = 2
)

// ErrInvalidOption is returned by NewExecutor for an option value out of range
var ErrInvalidOption = errors.New("invalid executor option")

type executorConfig struct {
	readWindow     time.Duration
	readTimeout    time.Duration
	tickInterval   time.Duration
	pollPeriod     time.Duration
	pollIterations int
	ids            ardproto.IDGenerator
	log            logger.Logger
	limiter        *rate.Limiter
	stats          *ardproto.Statistics
	encoder        *ardproto.Encoder
	reader         FrameReader
}

func defaultExecutorConfig() *executorConfig {
	return &executorConfig{
		readWindow:     DefaultReadWindow,
		readTimeout:    DefaultReadTimeout,
		tickInterval:   DefaultTickInterval,
		pollPeriod:     DefaultPollPeriod,
		pollIterations: DefaultPollIterations,
	}
}

// pollSleep is the pause between empty poll iterations: one poll period less
// the time a single read may already have blocked.
func (cfg *executorConfig) pollSleep() time.Duration {
	return max(cfg.pollPeriod-cfg.readTimeout, 0)
}

// Option configures an Executor
type Option interface {
	apply(*executorConfig) error
}

type optionFunc struct {
	name      string
	applyFunc func(*executorConfig) error
}

func (o *optionFunc) apply(cfg *executorConfig) error {
	if err := o.applyFunc(cfg); err != nil {
		return errors.Join(ErrInvalidOption, errors.New(o.name+": "+err.Error()))
	}
	return nil
}

func newOption(name string, f func(*executorConfig) error) Option {
	return &optionFunc{name: name, applyFunc: f}
}

// WithReadWindow sets how long the executor waits for the first response
// batch after sending a command.
//
// The default is 1s.
func WithReadWindow(d time.Duration) Option {
	return newOption("WithReadWindow", func(cfg *executorConfig) error {
		if d <= 0 {
			return errors.New("read window must be positive")
		}
		cfg.readWindow = d
		return nil
	})
}

// WithReadTimeout sets the link's per-read timeout. Each poll iteration sleeps
// one poll period less this value.
//
// The default is 100ms.
func WithReadTimeout(d time.Duration) Option {
	return newOption("WithReadTimeout", func(cfg *executorConfig) error {
		if d < 0 {
			return errors.New("read timeout must not be negative")
		}
		cfg.readTimeout = d
		return nil
	})
}

// WithTickInterval sets how often the response channel checks the transport.
func WithTickInterval(d time.Duration) Option {
	return newOption("WithTickInterval", func(cfg *executorConfig) error {
		if d <= 0 {
			return errors.New("tick interval must be positive")
		}
		cfg.tickInterval = d
		return nil
	})
}

// WithPollPeriod sets the period of the late-response poll loop.
func WithPollPeriod(d time.Duration) Option {
	return newOption("WithPollPeriod", func(cfg *executorConfig) error {
		if d < 0 {
			return errors.New("poll period must not be negative")
		}
		cfg.pollPeriod = d
		return nil
	})
}

// WithPollIterations sets how many times the executor re-reads after an empty
// first read before failing with a CommandTimeoutError. Zero disables the
// poll loop.
func WithPollIterations(n int) Option {
	return newOption("WithPollIterations", func(cfg *executorConfig) error {
		if n < 0 {
			return errors.New("poll iterations must not be negative")
		}
		cfg.pollIterations = n
		return nil
	})
}

// WithIDGenerator replaces the default sequential identifier source
func WithIDGenerator(ids ardproto.IDGenerator) Option {
	return newOption("WithIDGenerator", func(cfg *executorConfig) error {
		if ids == nil {
			return errors.New("id generator is nil")
		}
		cfg.ids = ids
		return nil
	})
}

// WithLogger sets the executor logger. The package default logger is used
// otherwise.
func WithLogger(l logger.Logger) Option {
	return newOption("WithLogger", func(cfg *executorConfig) error {
		cfg.log = l
		return nil
	})
}

// WithLimiter paces command writes. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return newOption("WithLimiter", func(cfg *executorConfig) error {
		cfg.limiter = l
		return nil
	})
}

// WithStatistics records command and frame counters into stats
func WithStatistics(stats *ardproto.Statistics) Option {
	return newOption("WithStatistics", func(cfg *executorConfig) error {
		cfg.stats = stats
		return nil
	})
}

// WithEncoder sets the command encoder, e.g. a compact one
func WithEncoder(enc *ardproto.Encoder) Option {
	return newOption("WithEncoder", func(cfg *executorConfig) error {
		if enc == nil {
			return errors.New("encoder is nil")
		}
		cfg.encoder = enc
		return nil
	})
}

// WithFrameReader replaces the transport-backed response channel
func WithFrameReader(r FrameReader) Option {
	return newOption("WithFrameReader", func(cfg *executorConfig) error {
		if r == nil {
			return errors.New("frame reader is nil")
		}
		cfg.reader = r
		return nil
	})
}

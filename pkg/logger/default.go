// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logger

import (
	"os"
	"sync/atomic"
)

var defLogger atomic.Value

func init() {
	defLogger.Store(loggerHolder{NewSlog(os.Stderr, InfoLevel, FormatConsole)})
}

// loggerHolder keeps the stored concrete type constant for atomic.Value
type loggerHolder struct {
	Logger
}

// GetLogger returns the process-wide default logger
func GetLogger() Logger {
	return defLogger.Load().(loggerHolder).Logger
}

// SetDefault replaces the process-wide default logger
func SetDefault(l Logger) {
	if l == nil {
		l = Nop()
	}
	defLogger.Store(loggerHolder{l})
}

// nopLogger discards everything
type nopLogger struct{}

// Nop returns a logger that discards every message
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }
func (nopLogger) Level() Level         { return ErrorLevel }
func (nopLogger) SetLevel(Level)       {}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads ardlink settings from an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/ardlink/pkg/ardlink"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

// DefaultBaudRate matches the firmware's serial setup
const DefaultBaudRate = 115200

// Config holds connection and executor settings
type Config struct {
	Port        string
	BaudRate    int
	URL         string
	Username    string
	NoSSLVerify bool

	LogLevel  string
	LogFormat string

	ReadWindow     time.Duration
	ReadTimeout    time.Duration
	PollPeriod     time.Duration
	PollIterations int

	// Rate limits command writes per second. Zero disables pacing.
	Rate      float64
	RandomIDs bool
}

// Default returns the settings used when no file or flag overrides them
func Default() Config {
	return Config{
		BaudRate:       DefaultBaudRate,
		LogLevel:       "info",
		LogFormat:      "console",
		ReadWindow:     ardlink.DefaultReadWindow,
		ReadTimeout:    ardlink.DefaultReadTimeout,
		PollPeriod:     ardlink.DefaultPollPeriod,
		PollIterations: ardlink.DefaultPollIterations,
	}
}

type fileConfig struct {
	Port           string  `toml:"port"`
	Baud           int     `toml:"baud"`
	URL            string  `toml:"url"`
	Username       string  `toml:"username"`
	NoSSLVerify    bool    `toml:"no_ssl_verify"`
	LogLevel       string  `toml:"log_level"`
	LogFormat      string  `toml:"log_format"`
	ReadWindow     string  `toml:"read_window"`
	ReadTimeout    string  `toml:"read_timeout"`
	PollPeriod     string  `toml:"poll_period"`
	PollIterations int     `toml:"poll_iterations"`
	Rate           float64 `toml:"rate"`
	RandomIDs      bool    `toml:"random_ids"`
}

// Load reads the file at path over the defaults. Keys absent from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.BaudRate = raw.Baud
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("no_ssl_verify") {
		cfg.NoSSLVerify = raw.NoSSLVerify
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_window", raw.ReadWindow, &cfg.ReadWindow},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"poll_period", raw.PollPeriod, &cfg.PollPeriod},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("poll_iterations") {
		cfg.PollIterations = raw.PollIterations
	}
	if meta.IsDefined("rate") {
		cfg.Rate = raw.Rate
	}
	if meta.IsDefined("random_ids") {
		cfg.RandomIDs = raw.RandomIDs
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	var errs []error

	if c.Port != "" && c.URL != "" {
		errs = append(errs, errors.New("port and url are mutually exclusive"))
	}
	if c.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("baud rate must be positive, got %d", c.BaudRate))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.ReadWindow <= 0 {
		errs = append(errs, fmt.Errorf("read window must be positive, got %v", c.ReadWindow))
	}
	if c.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("read timeout must not be negative, got %v", c.ReadTimeout))
	}
	if c.PollPeriod < 0 {
		errs = append(errs, fmt.Errorf("poll period must not be negative, got %v", c.PollPeriod))
	}
	if c.PollIterations < 0 {
		errs = append(errs, fmt.Errorf("poll iterations must not be negative, got %d", c.PollIterations))
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate must not be negative, got %g", c.Rate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/ardlink/internal/config"
	"github.com/Thermoquad/ardlink/pkg/ardlink"
	"github.com/Thermoquad/ardlink/pkg/ardproto"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	logLevel  string
	logFormat string

	// Executor flags
	readWindow     time.Duration
	readTimeout    time.Duration
	pollPeriod     time.Duration
	pollIterations int
	sendRate       float64
	randomIDs      bool

	// settings is the merged configuration, valid once a command runs
	settings config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ardlink",
	Short: "Arduino command link",
	Long: `Ardlink - drive an Arduino motor controller over its JSON command link.

Commands are sent as JSON records; the controller answers with records separated
by '|': an acknowledgment (status 1) or a rejection (status 14), followed by
payload records and a completion (status 0).

Connection modes:
  Serial:    --port /dev/ttyS0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a TOML file given with --config; flags given on
the command line take precedence over the file.

For WebSocket authentication, the password is read from the ARDLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	defaults := config.Default()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", defaults.BaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", defaults.LogFormat, "Log format (console, json)")

	// Executor flags
	rootCmd.PersistentFlags().DurationVar(&readWindow, "read-window", defaults.ReadWindow, "Time to wait for a response batch")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "read-timeout", defaults.ReadTimeout, "Per-read timeout of the link")
	rootCmd.PersistentFlags().DurationVar(&pollPeriod, "poll-period", defaults.PollPeriod, "Period of the late-response poll loop")
	rootCmd.PersistentFlags().IntVar(&pollIterations, "poll-iterations", defaults.PollIterations, "Poll iterations before a command times out")
	rootCmd.PersistentFlags().Float64Var(&sendRate, "rate", defaults.Rate, "Maximum commands per second (0 = unlimited)")
	rootCmd.PersistentFlags().BoolVar(&randomIDs, "random-ids", defaults.RandomIDs, "Draw command IDs at random instead of sequentially")
}

// Exit codes shared by the link commands
const (
	ExitOK         = 0
	ExitFailure    = 1 // timeout or protocol failure
	ExitConnection = 2
)

// ExitError carries a process exit code out of a command so that deferred
// cleanup such as closing the link still runs.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withExitCode(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings merges defaults, the config file and explicitly set flags,
// then installs the default logger.
func loadSettings(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("baud") {
		cfg.BaudRate = baudRate
	}
	if flags.Changed("url") {
		cfg.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("read-window") {
		cfg.ReadWindow = readWindow
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = readTimeout
	}
	if flags.Changed("poll-period") {
		cfg.PollPeriod = pollPeriod
	}
	if flags.Changed("poll-iterations") {
		cfg.PollIterations = pollIterations
	}
	if flags.Changed("rate") {
		cfg.Rate = sendRate
	}
	if flags.Changed("random-ids") {
		cfg.RandomIDs = randomIDs
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	format, _ := logger.ParseFormat(cfg.LogFormat)
	logger.SetDefault(logger.NewSlog(os.Stderr, level, format))

	settings = cfg
	return nil
}

// executorOptions maps the settings to executor options
func executorOptions(cfg config.Config, stats *ardproto.Statistics) []ardlink.Option {
	opts := []ardlink.Option{
		ardlink.WithReadWindow(cfg.ReadWindow),
		ardlink.WithReadTimeout(cfg.ReadTimeout),
		ardlink.WithPollPeriod(cfg.PollPeriod),
		ardlink.WithPollIterations(cfg.PollIterations),
		ardlink.WithLogger(logger.GetLogger()),
		ardlink.WithStatistics(stats),
	}
	if cfg.Rate > 0 {
		opts = append(opts, ardlink.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Rate), 1)))
	}
	if cfg.RandomIDs {
		opts = append(opts, ardlink.WithIDGenerator(ardproto.RandomIDs{}))
	}
	return opts
}

// openExecutor connects and hands the connection to a new executor
func openExecutor(stats *ardproto.Statistics) (*ardlink.Executor, string, error) {
	conn, connInfo, err := OpenConnection(settings)
	if err != nil {
		return nil, "", err
	}

	exec, err := ardlink.NewExecutor(conn, executorOptions(settings, stats)...)
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("failed to create executor: %w", err)
	}
	return exec, connInfo, nil
}

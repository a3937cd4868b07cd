// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive console for sending commands",
	Long: `Send commands to the controller from an interactive terminal UI.

Type a command line and press Enter:
  move_forward 90 1 0.40
  rotate 90
  do_nothing

Arguments are typed as for "ardlink exec". Each command shows its outcome
and payload frames in the log; Up and Down recall earlier command lines,
PgUp and PgDn scroll the log.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	// Log lines would tear the alternate screen
	logger.SetDefault(logger.NewSlog(io.Discard, logger.ErrorLevel, logger.FormatConsole))

	stats := ardproto.NewStatistics()
	exec, connInfo, err := openExecutor(stats)
	if err != nil {
		return withExitCode(ExitConnection, fmt.Errorf("connection error: %w", err))
	}
	defer exec.Close()

	m := initialControlModel(exec, connInfo, settings.PollIterations)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

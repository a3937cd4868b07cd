// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ardlink/pkg/ardlink"
	"github.com/Thermoquad/ardlink/pkg/ardproto"
)

var (
	execWait    bool
	execCompact bool
	execID      int
)

var execCmd = &cobra.Command{
	Use:   "exec <function> [args...]",
	Short: "Execute one command on the controller",
	Long: `Send one command and print its acknowledgment and payload.

Arguments fill the command's slots by their syntax:
  integer  (90, -30)   next intArg slot (4 slots)
  decimal  (0.40)      next floatArg slot (2 slots)
  -                    leaves the next intArg slot absent
  'text                forces a string, e.g. '12
  anything else        next strArg slot (2 slots)

Examples:
  ardlink exec -p /dev/ttyS0 move_forward 90 1 0.40
  ardlink exec -p /dev/ttyS0 --wait do_nothing

Exit codes:
  0 - Command acknowledged or rejected
  1 - Timeout or protocol failure
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVarP(&execWait, "wait", "w", false, "Wait for the completion (status 0) frame")
	execCmd.Flags().BoolVar(&execCompact, "compact", false, "Leave absent argument slots off the wire")
	execCmd.Flags().IntVar(&execID, "id", -1, "Command ID (default: next from the generator)")
}

func runExec(cmd *cobra.Command, args []string) error {
	stats := ardproto.NewStatistics()
	exec, connInfo, err := openExecutor(stats)
	if err != nil {
		return withExitCode(ExitConnection, fmt.Errorf("connection error: %w", err))
	}
	defer exec.Close()

	command := exec.NextCommand(args[0])
	if execID >= 0 {
		command = command.WithID(execID)
	}
	command, err = ardproto.ParseArgs(command, args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("ARD01 <-- %s\n", ardproto.FormatCommand(command))

	var res *ardlink.Result
	if execCompact {
		res, err = exec.ExecuteCompact(ctx, command)
	} else {
		res, err = exec.ExecuteCommand(ctx, command)
	}
	if err != nil {
		return execFailure(err)
	}

	if execWait && res.Acknowledged() {
		if _, err := exec.AwaitCompletion(ctx, res, settings.PollIterations); err != nil {
			printResult(res)
			return execFailure(err)
		}
	}

	printResult(res)
	return nil
}

func execFailure(err error) error {
	switch {
	case errors.Is(err, ardproto.ErrInvalidCommand):
		return err
	case errors.Is(err, ErrConnectionClosed):
		return withExitCode(ExitConnection, err)
	default:
		return withExitCode(ExitFailure, err)
	}
}

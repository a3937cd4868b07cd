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

// debugCommand is one entry of the fixed debug run
type debugCommand struct {
	cmd     ardproto.Command
	compact bool
}

func motion(function string, id int, ints []int, speed float64) ardproto.Command {
	c := ardproto.NewCommand(function, id)
	for i, v := range ints {
		c = c.WithInt(i, v)
	}
	if speed >= 0 {
		c = c.WithFloat(0, speed)
	}
	return c
}

var debugValidCommands = []debugCommand{
	{cmd: motion("move_forward", 33333, []int{90, 1}, 0.40)},
	{cmd: motion("move_forward", 44444, []int{90, 1}, 0.40), compact: true},
	{cmd: motion("move_backward", 55555, []int{30, 1}, 0.40)},
	{cmd: motion("rotate", 66666, []int{90}, -1)},
	{cmd: ardproto.NewCommand("do_nothing", 77777)},
	{cmd: ardproto.NewCommand("do_nothing", 88888), compact: true},
}

var debugInvalidCommands = []debugCommand{
	{cmd: motion("move_left", 33333, []int{90, 1}, 0.40)},
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Run the fixed debug command list against the controller",
	Long: `Exercise the command link with a fixed list of commands.

A do_nothing round trip runs first and waits for completion. Then every
command of the valid list (move_forward, move_backward, rotate, do_nothing)
is sent, followed by the invalid list (move_left, which the controller does
not register). Commands acknowledged without payload are polled for their
late response.

Exit codes:
  0 - All commands answered
  1 - A command timed out or broke the protocol
  2 - Connection error`,
	RunE: runDebug,
}

func init() {
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	stats := ardproto.NewStatistics()
	exec, connInfo, err := openExecutor(stats)
	if err != nil {
		return withExitCode(ExitConnection, fmt.Errorf("connection error: %w", err))
	}
	defer exec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Ardlink - Debug Run\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	failed := false
	report := func(err error) bool {
		if err == nil {
			return true
		}
		if errors.Is(err, context.Canceled) {
			return false
		}
		failed = true
		fmt.Fprintf(os.Stderr, "\tERROR: %v\n", err)
		return !errors.Is(err, ErrConnectionClosed)
	}

	res, err := exec.DoNothing(ctx)
	if err == nil {
		printResult(res)
	}
	if !report(err) {
		return interrupted(ctx, stats)
	}

	fmt.Printf("Executing %d valid commands:\n", len(debugValidCommands))
	if !runDebugList(ctx, exec, debugValidCommands, report) {
		return interrupted(ctx, stats)
	}

	fmt.Printf("Executing %d invalid commands:\n", len(debugInvalidCommands))
	if !runDebugList(ctx, exec, debugInvalidCommands, report) {
		return interrupted(ctx, stats)
	}

	fmt.Printf("\n%s", stats.Snapshot())
	if failed {
		return withExitCode(ExitFailure, nil)
	}
	return nil
}

func runDebugList(ctx context.Context, exec *ardlink.Executor, list []debugCommand, report func(error) bool) bool {
	for _, dc := range list {
		fmt.Printf("\tARD01 <-- %s\n", ardproto.FormatCommand(dc.cmd))

		var res *ardlink.Result
		var err error
		if dc.compact {
			res, err = exec.ExecuteCompact(ctx, dc.cmd)
		} else {
			res, err = exec.ExecuteCommand(ctx, dc.cmd)
		}
		if err == nil && res.Acknowledged() && len(res.Payload) == 0 {
			_, err = exec.AwaitCompletion(ctx, res, settings.PollIterations)
		}
		if err == nil {
			printResult(res)
		}
		if !report(err) {
			return false
		}
	}
	return true
}

func printResult(res *ardlink.Result) {
	if res.Rejected() {
		fmt.Printf("\tFunction for cmdID %d not registered on the controller\n", res.Command.ID)
		return
	}
	fmt.Printf("\tARD01 --> %s (cmdID %d)\n", res.Outcome, res.Command.ID)
	for _, f := range res.Payload {
		fmt.Printf("\tARD01 --> %s", ardproto.FormatFrame(f))
	}
}

func interrupted(ctx context.Context, stats *ardproto.Statistics) error {
	fmt.Printf("\n%s", stats.Snapshot())
	if ctx.Err() != nil {
		fmt.Fprintf(os.Stderr, "Interrupted\n")
		return nil
	}
	return withExitCode(ExitConnection, ErrConnectionClosed)
}

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
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ardlink/pkg/ardlink"
	"github.com/Thermoquad/ardlink/pkg/ardproto"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Round-trip do_nothing commands and report latency",
	Long: `Send do_nothing commands and wait for each to complete.

Each ping is acknowledged by the controller and then reports completion
(status 0). The time from sending to completion is the round-trip time.

This is useful for verifying:
  - The serial link or WebSocket bridge is up
  - The controller firmware is running its command loop
  - Bidirectional traffic works

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	stats := ardproto.NewStatistics()
	exec, connInfo, err := openExecutor(stats)
	if err != nil {
		return withExitCode(ExitConnection, fmt.Errorf("connection error: %w", err))
	}
	defer exec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Ardlink - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	sent := 0
	failCount := 0
	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)
		sent++

		start := time.Now()
		res, err := exec.DoNothing(ctx)
		switch {
		case err == nil && res.Rejected():
			fmt.Printf("REJECTED (firmware has no do_nothing)\n")
			failCount++
		case err == nil:
			fmt.Printf("DONE cmdID=%05d rtt=%v\n", res.Command.ID, time.Since(start).Round(time.Millisecond))
		case errors.Is(err, ardlink.ErrCommandTimeout):
			fmt.Printf("TIMEOUT (%v)\n", err)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if i < pingCount {
			if err := sleepOrDone(ctx, pingInterval); err != nil {
				break
			}
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	if sent > 0 {
		fmt.Printf("%d pings sent, %d completed, %.0f%% loss\n",
			sent, sent-failCount, float64(failCount)/float64(sent)*100)
	}

	if failCount > 0 {
		return withExitCode(ExitFailure, nil)
	}
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

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

	"github.com/Thermoquad/ardlink/pkg/ardproto"
	"github.com/Thermoquad/ardlink/pkg/logger"
)

var (
	monitorErrorsOnly   bool
	monitorStatsSeconds int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display response frames as they arrive",
	Long: `Continuously decode and display frames sent by the controller.

Bytes are decoded as a stream, so a record split across reads is joined
before it is parsed. Each frame is checked for anomalies (identifier out of
range, missing or negative status) and the counters are printed
periodically and on exit.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorErrorsOnly, "errors-only", false, "Only show frames with anomalies and decode errors")
	monitorCmd.Flags().IntVar(&monitorStatsSeconds, "stats-interval", 10, "Statistics interval in seconds (0 disables)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(settings)
	if err != nil {
		return withExitCode(ExitConnection, fmt.Errorf("connection error: %w", err))
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Ardlink - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	log := logger.GetLogger()
	stats := ardproto.NewStatistics()
	decoder := ardproto.NewDecoder()
	buf := make([]byte, 256)

	var statsTick <-chan time.Time
	if monitorStatsSeconds > 0 {
		ticker := time.NewTicker(time.Duration(monitorStatsSeconds) * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%s", stats.Snapshot())
			return nil
		case <-statsTick:
			fmt.Printf("\n%s\n", stats.Snapshot())
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) {
				log.Info("connection closed")
				fmt.Printf("\n%s", stats.Snapshot())
				return nil
			}
			log.Warn("read error", "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		frames, decodeErrs := decoder.Decode(buf[:n])
		for _, decodeErr := range decodeErrs {
			stats.Update(nil, decodeErr, nil)
			printDecodeError(decodeErr)
		}
		for _, f := range frames {
			anomalies := ardproto.ValidateFrame(f, -1)
			stats.Update(f, nil, anomalies)
			if len(anomalies) > 0 {
				printAnomalies(f, anomalies)
				continue
			}
			if !monitorErrorsOnly {
				fmt.Print(ardproto.FormatFrame(f))
			}
		}
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
}

// printAnomalies prints a frame followed by its anomalies
func printAnomalies(f *ardproto.Frame, anomalies []ardproto.ValidationError) {
	fmt.Printf("\033[1;33mANOMALY\033[0m %s", ardproto.FormatFrame(f))
	for i, a := range anomalies {
		fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
	}
}

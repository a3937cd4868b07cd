// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ardlink/pkg/ardproto"
)

var (
	frameTestTimeout int
	frameTestPing    bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid response frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
well-formed frame. Bytes that do not decode are skipped. With --ping a
do_nothing command is sent first so that an idle controller answers.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestPing, "ping", false, "Send do_nothing before waiting")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(settings)
	if err != nil {
		return withExitCode(ExitConnection, fmt.Errorf("connection error: %w", err))
	}
	defer conn.Close()

	fmt.Printf("Ardlink - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)

	if frameTestPing {
		ping, err := ardproto.NewEncoder().Encode(ardproto.NewCommand("do_nothing", ardproto.NewSequentialIDs().NextID()))
		if err != nil {
			return err
		}
		if _, err := conn.Write(ping); err != nil {
			return withExitCode(ExitConnection, fmt.Errorf("write error: %w", err))
		}
		fmt.Printf("Sent: %s\n", ping)
	}
	fmt.Printf("Waiting for valid frame...\n\n")

	decoder := ardproto.NewDecoder()
	buf := make([]byte, 128)

	frameChan := make(chan *ardproto.Frame, 1)
	errChan := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	// Reader goroutine
	go func() {
		skipped := 0
		for {
			select {
			case <-stop:
				return
			default:
			}

			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			frames, decodeErrs := decoder.Decode(buf[:n])
			skipped += len(decodeErrs)
			if len(frames) > 0 {
				if skipped > 0 {
					fmt.Printf("(skipped %d malformed records before sync)\n", skipped)
				}
				frameChan <- frames[0]
				return
			}
		}
	}()

	select {
	case f := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  cmdID: %d\n", f.ID)
		fmt.Printf("  Status: %s\n", f.Status)
		fmt.Printf("  Fields: %s\n", ardproto.FormatFields(f.Fields))
		fmt.Printf("  Length: %d bytes\n", len(f.Raw))
		return nil

	case err := <-errChan:
		return withExitCode(ExitConnection, fmt.Errorf("read error: %w", err))

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		return withExitCode(ExitFailure, fmt.Errorf("TIMEOUT: no valid frame received within %d seconds", frameTestTimeout))
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Ardlink - Arduino command link
//
// A CLI tool for driving an Arduino motor controller over its JSON
// command/response link.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Thermoquad/ardlink/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		var exitErr *cmd.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(cmd.ExitCode(err))
}

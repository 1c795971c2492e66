// Package main provides the entry point for the deptqa CLI.
package main

import (
	"fmt"
	"os"

	"github.com/northbound/deptqa/cmd/deptqa/cmd"
	qerrors "github.com/northbound/deptqa/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(qerrors.ExitCode(err))
	}
}

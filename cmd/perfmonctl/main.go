// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

// perfmonctl controls and waits for the perfmon buffer interrupts of the GPU
// devices listed in a device table.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/perfmonirq/devices.yaml"

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// run executes the perfmonctl command line and returns the process exit
// status.
func run(ctx context.Context, args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	return 1
}

// options shared by all subcommands.
type rootOptions struct {
	configPath string
	verbosity  int
	log        logr.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "perfmonctl",
		Short:         "control and wait for GPU perfmon buffer interrupts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			errw := cmd.ErrOrStderr()
			opts.log = funcr.New(func(prefix, args string) {
				if prefix != "" {
					fmt.Fprintln(errw, prefix, args)
					return
				}
				fmt.Fprintln(errw, args)
			}, funcr.Options{Verbosity: opts.verbosity})
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath,
		"path to the perfmon device table")
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v",
		"increase logging verbosity (repeatable)")
	cmd.AddCommand(
		newSetIRQsCmd(opts),
		newWaitCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

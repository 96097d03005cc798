// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd implements the formdecode CLI: a decode subcommand that runs
// the core decoder over a file, and a serve subcommand that exercises it
// behind a small demo HTTP server. Neither is part of the decoder's public
// API; both are integration glue over package form.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs" // tune GOMAXPROCS to the container's cgroup cpu quota on import

	"github.com/packetd/formdecode/logger"
)

var (
	logStdout bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "formdecode",
	Short: "A streaming multipart/form-data decoder",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetOptions(logger.Options{
			Stdout: logStdout,
			Level:  logLevel,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logStdout, "log-stdout", true, "Log to stdout instead of a rotating file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level [debug|info|warn|error]")
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

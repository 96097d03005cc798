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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packetd/formdecode/confengine"
	"github.com/packetd/formdecode/form"
	"github.com/packetd/formdecode/logger"
)

// fileConfig is the on-disk shape a deployment can pin formdecode's serve
// and factory defaults to. Nothing in this repository currently auto-loads
// one at startup (serve/decode take their settings as flags);
// validate-config exists so an operator can catch a bad config file before
// wiring it into a process supervisor.
type fileConfig struct {
	Logger  logger.Options         `config:"logger"`
	Serve   serveCmdConfig         `config:"serve"`
	Factory form.DiskFactoryConfig `config:"factory"`
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config [path]",
	Short: "Load and validate a formdecode YAML config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := confengine.LoadConfigPath(args[0])
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var cfg fileConfig
		if err := c.Unpack(&cfg); err != nil {
			return fmt.Errorf("unpack config: %w", err)
		}

		if cfg.Factory.MaxMemory < 0 {
			return fmt.Errorf("factory.maxMemory must be >= 0, got %d", cfg.Factory.MaxMemory)
		}

		fmt.Printf("config OK: serve.addr=%q serve.h2c=%v factory.maxMemory=%d\n",
			cfg.Serve.Addr, cfg.Serve.H2C, cfg.Factory.MaxMemory)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateConfigCmd)
}

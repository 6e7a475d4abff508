// Command zwctl is a diagnostic CLI for the corezwave driver: it opens a
// serial port, brings a Driver up, and exposes its node/value model and
// event stream for inspection from a shell.
package main

/*
Copyright (C) 2017 Jan Kasiak

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	portName   string
	baudRate   int
	configPath string
	logLevel   string
	version    = "dev"
	commit     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "zwctl",
	Short:   "Z-Wave serial driver control tool",
	Long:    `zwctl drives a Z-Wave controller over a serial port using the corezwave driver core: initializing the network, watching its event stream, and inspecting or re-interviewing individual nodes.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "serial port device (e.g. /dev/ttyACM0)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "serial baud rate (config file value, else 115200, if unset)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML driver config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (silent if unset)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(valuesCmd)
	rootCmd.AddCommand(interviewCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the zwctl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("zwctl %s (commit: %s)\n", version, commit)
		return nil
	},
}

// newLogger builds a zap.Logger from --log-level, silent (zap.NewNop)
// when unset, matching the driver's "logger may be nil" contract.
func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		return zap.NewNop(), nil
	}
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		return nil, fmt.Errorf("zwctl: invalid --log-level %q: %w", level, err)
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

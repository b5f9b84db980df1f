// Copyright 2025 Renegade Studio
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command matrixd is a minimal CLI entrypoint over the session
// runtime. Argument parsing, config file discovery, and the server
// surface itself are out of scope; this just wires one session
// together and runs a single turn, the way a smoke-test harness would.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/logger"
	"github.com/renegade-studio/matrix/internal/session"
	"github.com/renegade-studio/matrix/internal/tracing"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	var logLevel string

	root := &cobra.Command{
		Use:   "matrixd",
		Short: "Matrix conversational session runtime",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "matrix.yaml", "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(buildRunCmd(&configPath, &logLevel))
	root.AddCommand(buildValidateCmd(&configPath))
	return root
}

func buildRunCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <message>",
		Short: "Run a single turn against a new session and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(logger.ParseLevel(*logLevel), os.Stderr)
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("matrixd: load config: %w", err)
			}
			tracing.Init(tracing.Config{
				Enabled:        cfg.Tracing.Enabled,
				ServiceName:    cfg.Tracing.ServiceName,
				SampleFraction: cfg.Tracing.SampleFraction,
			})
			return runOneTurn(cmd.Context(), cfg, args[0])
		},
	}
}

func buildValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and sanity-check the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(*configPath); err != nil {
				return fmt.Errorf("matrixd: %w", err)
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func runOneTurn(ctx context.Context, cfg *config.Config, message string) error {
	sess, err := newSessionFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := sess.Init(); err != nil {
		return fmt.Errorf("matrixd: init session: %w", err)
	}

	// A long-running server tracks every session in a registry and lets
	// the idle sweep reclaim exclusively-owned history providers; the
	// one-shot CLI exercises the same lifecycle over a single session
	// and disconnects explicitly once the turn completes.
	registry := session.NewRegistry()
	registry.Track(sess.ID(), sess)

	result, err := sess.Run(ctx, message, runOptionsDefault())
	if err != nil {
		return fmt.Errorf("matrixd: run: %w", err)
	}
	registry.Touch(sess.ID())
	fmt.Println(result.Response)
	result.BackgroundOperations.Wait()

	if err := sess.Disconnect(); err != nil {
		return fmt.Errorf("matrixd: disconnect session: %w", err)
	}
	return nil
}

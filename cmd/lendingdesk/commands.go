// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/LendingDesk/pkg/logging"
)

// Config is the optional CLI configuration, loaded from
// ~/.lendingdesk/config.yaml when present. Flags override it.
type Config struct {
	// ServerURL is the base URL of the lending service.
	ServerURL string `yaml:"server_url"`

	// LogDir enables CLI file logging when set.
	LogDir string `yaml:"log_dir"`
}

var (
	config    Config
	logger    *logging.Logger
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "lendingdesk",
	Short: "Operator CLI for the LendingDesk service",
	Long: `Operator tooling for the LendingDesk book lending service.

Examples:
  lendingdesk health                     # Check the server and its credentials
  lendingdesk loans recBook123           # List loan records for a book
  lendingdesk reset                      # Abandon a stuck wizard session`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "",
		"Base URL of the lending service (default http://localhost:12310)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loadConfig()
		logger = logging.New(logging.Config{Service: "cli", LogDir: config.LogDir})
		if serverURL == "" {
			serverURL = config.ServerURL
		}
		if serverURL == "" {
			serverURL = "http://localhost:12310"
		}
	}
}

// loadConfig reads ~/.lendingdesk/config.yaml if it exists. A missing file
// is not an error; a malformed one is.
func loadConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".lendingdesk", "config.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", path, err)
		os.Exit(1)
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command configpilot is the CLI for the ConfigPilot patch API.
//
// Usage:
//
//	configpilot patch "set the chat motd to welcome back"
//	configpilot patch --service chat "raise the message limit to 2000"
//	configpilot services
//	configpilot history chat --limit 20
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serverURL and patchService hold persistent and patch flag values.
var (
	serverURL    string
	patchService string
	historyLimit int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "configpilot",
		Short: "Patch service configuration with natural language",
		Long: "configpilot sends natural language instructions to the " +
			"ConfigPilot pipeline, which resolves the target service and " +
			"field, validates the value against the schema, and persists " +
			"the patch.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CONFIGPILOT_URL", "http://localhost:8080"),
		"Pipeline server base URL")

	patchCmd := &cobra.Command{
		Use:   "patch <instruction>",
		Short: "Apply a natural language configuration patch",
		Args:  cobra.MinimumNArgs(1),
		Run:   runPatchCommand,
	}
	patchCmd.Flags().StringVar(&patchService, "service", "", "Pin the target service instead of resolving it")

	servicesCmd := &cobra.Command{
		Use:   "services",
		Short: "List services known to the schema store",
		Args:  cobra.NoArgs,
		Run:   runServicesCommand,
	}

	historyCmd := &cobra.Command{
		Use:   "history <service>",
		Short: "Show recent patch attempts for a service",
		Args:  cobra.ExactArgs(1),
		Run:   runHistoryCommand,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum records to show (1-500)")

	getCmd := &cobra.Command{
		Use:   "get <service>",
		Short: "Show the current configuration document for a service",
		Args:  cobra.ExactArgs(1),
		Run:   runGetCommand,
	}

	rootCmd.AddCommand(patchCmd, servicesCmd, historyCmd, getCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

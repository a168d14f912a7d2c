// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "codeatlas",
		Short: "A CLI to map a code repository into a navigable module tree",
		Long: `codeatlas ingests a repository, extracts its components and their
dependencies, and partitions the important ones into a hierarchical
module tree with the help of an LLM grouping step.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the codeatlas version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("codeatlas", version)
		},
	}
)

// version is stamped by the release build.
var version = "dev"

func main() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

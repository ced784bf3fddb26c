// Package main provides the entry point for the diligence engine CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "diligence_agent",
	Short: "Clean-energy investor due-diligence pipeline",
	Long:  "diligence_agent runs a multi-stage assessment of a clean-energy technology: technology maturity, market, costs, claim verification, risks, and an investment recommendation.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

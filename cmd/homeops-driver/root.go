package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "homeops-driver",
	Short: "Smart-home scenario playback driver",
	Long:  "homeops-driver replays a scripted day-in-the-life scenario against one or two home-automation backends, mixing scripted events with generated sensor noise.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(validateCmd)
}

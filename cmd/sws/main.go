package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sws",
		Short: "SWS - Simple Web Server",
		Long: "SWS serves static documents over a minimal HTTP/1.1 subset with digest " +
			"authentication and per-address connection throttling.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

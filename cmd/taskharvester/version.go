package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "taskharvester %s\n", version)
	fmt.Fprintf(w, "  commit:  %s\n", gitCommit)
	fmt.Fprintf(w, "  built:   %s\n", buildDate)
	fmt.Fprintf(w, "  go:      %s\n", runtime.Version())
}

package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/shutter/pkg/shutter/tuner"
)

// Set by the stavefile through -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the shutter version, the build it came from, and the save queue
tier this machine would run with.`,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().Bool("short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	if short, _ := cmd.Flags().GetBool("short"); short {
		fmt.Fprintln(cmd.OutOrStdout(), version)
		return nil
	}

	// Undetected memory plans the smallest tier.
	res, _ := tuner.Detect()
	writeVersion(cmd.OutOrStdout(), tuner.PlanWithOverrides(res, tuner.Overrides{}))
	return nil
}

// writeVersion renders the build info followed by the local queue plan.
func writeVersion(w io.Writer, plan tuner.QueuePlan) {
	rows := [][2]string{
		{"commit", commit},
		{"built", date},
		{"go", runtime.Version()},
		{"platform", runtime.GOOS + "/" + runtime.GOARCH},
		{"queue", fmt.Sprintf("%v tier, capacity %d", plan.Tier, plan.Capacity)},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("shutter " + version))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-9s", row[0]+":")))
		b.WriteString(valueStyle.Render(row[1]))
		b.WriteString("\n")
	}
	fmt.Fprint(w, b.String())
}

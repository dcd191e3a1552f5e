package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/shutter/pkg/shutter/request"
	"github.com/jamesainslie/shutter/pkg/shutter/tuner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the queue plan for this machine",
	Long: `Detect available memory and print the save-queue plan derived from it:
the memory tier, the cost capacity, the slot count, and how many RAW+JPEG
captures can be held before the camera has to wait.

Overrides from flags, environment and config file are applied.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().Int("heap-mb", 0, "use this memory tier signal instead of detecting one")
	rootCmd.AddCommand(planCmd)
}

// runPlan prints the detected plan.
func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("%v", err)
		return err
	}

	res, err := tuner.Detect()
	if err != nil {
		return fmt.Errorf("detecting resources: %w", err)
	}

	o := cfg.Overrides()
	if heap, _ := cmd.Flags().GetInt("heap-mb"); heap > 0 {
		o.HeapMB = heap
	}

	fmt.Println(renderPlan(res, tuner.PlanWithOverrides(res, o)))
	return nil
}

// burstDepth returns how many RAW+JPEG captures fit in capacity. The
// first is always admitted into an idle queue.
func burstDepth(capacity int) int {
	return max(1, capacity/request.PhotoCost(1, 1))
}

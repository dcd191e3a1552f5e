package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/shutter/pkg/shutter/mediastore"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "List saved images",
	Long:  `List the images recorded in the media index, newest first.`,
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().IntP("limit", "l", 20, "maximum number of entries (0 = all)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("%v", err)
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := mediastore.Open(cfg.Index.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	total, err := store.Count()
	if err != nil {
		return fmt.Errorf("counting records: %w", err)
	}
	records, err := store.List(limit)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	printInfo("%s %s", titleStyle.Render("Saved images"), labelStyle.Render(fmt.Sprintf("(%d of %d)", len(records), total)))
	for _, rec := range records {
		fmt.Println(formatRecord(rec))
	}
	return nil
}

// formatRecord renders one index line.
func formatRecord(rec *mediastore.Record) string {
	line := fmt.Sprintf("%s  %-8s %10s  %s",
		labelStyle.Render(rec.SavedAt.Format("2006-01-02 15:04:05")),
		rec.Kind,
		humanize.IBytes(uint64(max(rec.Size, 0))),
		valueStyle.Render(filepath.Base(rec.Path)))
	if rec.Quality > 0 {
		line += fmt.Sprintf("  q%d", rec.Quality)
	}
	return line
}

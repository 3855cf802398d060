package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dolphinpod/internal/db"
	"dolphinpod/internal/ingest"
	"dolphinpod/internal/nightmode"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := db.Connect(cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info().Msg("schema up to date")
		return nil
	},
}

var (
	nightStart string
	nightEnd   string
	nightZone  string
)

var nightcheckCmd = &cobra.Command{
	Use:   "nightcheck TIMESTAMP...",
	Short: "Classify session start times against a night window",
	Example: `  dolphinpod nightcheck --start 23:00 --end 07:00 2025-03-01T23:30:00
  dolphinpod nightcheck --tz UTC 2025-03-01T14:30:00Z`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNightcheck,
}

func init() {
	nightcheckCmd.Flags().StringVar(&nightStart, "start", "23:00", "Night window start (HH:MM)")
	nightcheckCmd.Flags().StringVar(&nightEnd, "end", "07:00", "Night window end (HH:MM, exclusive)")
	nightcheckCmd.Flags().StringVar(&nightZone, "tz", "Asia/Seoul", "IANA timezone the window is read in")
	rootCmd.AddCommand(migrateCmd, nightcheckCmd)
}

func runNightcheck(cmd *cobra.Command, args []string) error {
	window, err := nightmode.ParseWindow(nightStart, nightEnd)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(nightZone)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, arg := range args {
		t, err := ingest.ParseTimestamp(arg, loc)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		label := "day"
		if window.ContainsTime(t, loc) {
			label = "night"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", arg, nightmode.ClockOf(t, loc), label)
	}
	return nil
}

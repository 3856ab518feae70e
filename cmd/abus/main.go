package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"abus-go/internal/abus"
	"abus-go/internal/app"
	"abus-go/internal/config"
	"abus-go/internal/encryption"
	"abus-go/internal/fs"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Rebuild", "Prune").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg, operation, app.EnvOrPromptPassphrase())
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// beforeLayouts are accepted by --before, all in local time.
var beforeLayouts = []string{
	abus.RunNameLayout,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseBefore(s string) (time.Time, error) {
	for _, layout := range beforeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --before %q: use YYYY-MM-DD [HH:MM] or a run name", s)
}

// queryFromFlags builds the archive query shared by list and restore.
func queryFromFlags(cmd *cobra.Command, patterns []string) (abus.ArchiveQuery, error) {
	q := abus.ArchiveQuery{Patterns: patterns}

	if file, _ := cmd.Flags().GetString("patterns-file"); file != "" {
		more, err := fs.ParsePatternFile(file)
		if err != nil {
			return q, err
		}
		if more == nil {
			return q, fmt.Errorf("patterns file not found: %s", file)
		}
		q.Patterns = append(q.Patterns, more...)
	}

	if before, _ := cmd.Flags().GetString("before"); before != "" {
		t, err := parseBefore(before)
		if err != nil {
			return q, err
		}
		q.Before = t
	}

	q.AllVersions, _ = cmd.Flags().GetBool("all-versions")
	return q, nil
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("before", "b", "", "Select the state as of this time (YYYY-MM-DD [HH:MM])")
	cmd.Flags().BoolP("all-versions", "a", false, "Select every archived version, not just the latest")
	cmd.Flags().StringP("patterns-file", "f", "", "Read additional patterns from a file, one per line")
}

var rootCmd = &cobra.Command{
	Use:          "abus",
	Short:        "Backup archive index and restore tool",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init ARCHIVE_ROOT",
	Short: "Initialize configuration and archive keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir, args[0])
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Archive Root: %s\n", cfg.Archive.Root)

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc.IsConfigured() {
			fmt.Printf("Using existing keys at %s\n", cfg.Encryption.PublicKeyPath)
			return nil
		}

		pass, err := newPassphrase()
		if err != nil {
			return err
		}
		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("creating archive keys: %w", err)
		}
		fmt.Printf("Archive keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

// newPassphrase reads a new passphrase from ABUS_PASSPHRASE or asks twice.
func newPassphrase() (string, error) {
	if p, ok := os.LookupEnv(app.PassphraseEnv); ok {
		return p, nil
	}
	p, err := app.PromptPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	again, err := app.PromptPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if p != again {
		return "", errors.New("passphrases do not match")
	}
	return p, nil
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Index DB:   %s\n", cfg.IndexDB)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		switch cfg.Archive.Type {
		case "s3":
			fmt.Printf("Archive:    s3://%s/%s\n", cfg.Archive.S3Bucket, cfg.Archive.S3Prefix)
		default:
			fmt.Printf("Archive:    %s %s\n", cfg.Archive.Type, cfg.Archive.Root)
		}
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Workers:    %d\n", cfg.Restore.Workers)
		return nil
	},
}

// rebuild command
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, "Rebuild")
		if err != nil {
			return err
		}
		defer a.Close()

		if path, _ := cmd.Flags().GetString("backup-catalog"); path != "" {
			if err := a.BackupCatalog(path); err != nil {
				return err
			}
			fmt.Printf("Previous index saved to %s\n", path)
		}

		totals, err := a.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}

		fmt.Printf("Index rebuilt: %s\n", totals)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list [PATTERN...]",
	Short: "List archived files",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queryFromFlags(cmd, args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "List")
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.List(q)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No files found.")
			return nil
		}

		for _, it := range items {
			fmt.Printf("%s  %s  %s\n",
				it.Checksum[:12],
				it.ModTime().Format("2006-01-02 15:04:05"),
				it.Path,
			)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore DEST [PATTERN...]",
	Short: "Restore archived files below DEST",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queryFromFlags(cmd, args[1:])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, "Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		progress, err := a.Restore(ctx, q, args[0], abus.NewTerminalStatus(os.Stdout))
		if err != nil {
			return err
		}
		if progress.Total == 0 {
			fmt.Println("No files selected.")
		}
		return nil
	},
}

// prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop runs the retention policy does not keep from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp(cmd.Context(), "Prune")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Prune(dryRun)
		if err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}

		if len(res.Removed) == 0 {
			fmt.Println("Nothing to prune.")
			return nil
		}
		for _, name := range res.Removed {
			fmt.Printf("remove %s\n", name)
		}
		if dryRun {
			fmt.Printf("Would remove %d run(s), keep %d\n", len(res.Removed), len(res.Kept))
			return nil
		}
		fmt.Printf("Removed %d run(s) (%d rows, %d carried forward), kept %d\n", len(res.Removed), res.Rows, res.Carried, len(res.Kept))
		return nil
	},
}

// runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List backup runs in the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Runs")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.Runs()
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("%s  %s\n", r.RunName, r.ArchiveDir)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View index operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if !op.FinishedAt.IsZero() {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-10s  %s  %-8s  %-10s  %s\n",
				op.ID[:8],
				op.Name,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Summary,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().String("backup-catalog", "", "Copy the current index to this path before rebuilding")
	rootCmd.AddCommand(listCmd)
	addQueryFlags(listCmd)
	rootCmd.AddCommand(restoreCmd)
	addQueryFlags(restoreCmd)
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolP("dry-run", "n", false, "Only show what would be removed")
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}

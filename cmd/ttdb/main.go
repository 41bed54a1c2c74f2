// Command ttdb is the operator-facing entry point for the Typed Tables
// storage engine: compact a data directory, bundle it into a portable
// archive, restore one back, or print a quick summary of what a schema
// document holds.
//
// Every subcommand reads its configuration the same way the embedding
// library does (config.Load, §1.2), so TTDB_DATA_PATH and friends apply
// here exactly as they would for a program linking the engine directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"typedtables/archive"
	"typedtables/compact"
	"typedtables/config"
	"typedtables/engine"
	"typedtables/logger"
	"typedtables/schema"
)

// Version is the ttdb build version, overridable at link time:
//
//	go build -ldflags "-X main.Version=1.2.3"
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataPath string

	root := &cobra.Command{
		Use:           "ttdb",
		Short:         "Inspect and maintain Typed Tables data directories",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Configure()
		},
	}
	root.PersistentFlags().StringVar(&dataPath, "data", "", "data directory (defaults to TTDB_DATA_PATH)")

	root.AddCommand(
		newCompactCmd(&dataPath),
		newArchiveCmd(&dataPath),
		newRestoreCmd(),
		newInspectCmd(&dataPath),
	)
	return root
}

// loadConfig builds a Config from the environment, then applies an
// explicit --data override if the caller gave one.
func loadConfig(dataPath string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dataPath != "" {
		cfg.DataPath = dataPath
	}
	return cfg, nil
}

func newCompactCmd(dataPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Copy live records into a fresh directory, discarding tombstones (§4.9)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*dataPath)
			if err != nil {
				return err
			}
			if out == "" {
				return fmt.Errorf("ttdb: --out is required")
			}
			report, err := compact.New(cfg.DataPath, out, cfg.GrowthFactor).Run()
			if err != nil {
				return fmt.Errorf("ttdb: compact: %w", err)
			}
			for _, t := range report.Tables {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s live=%-8d total_after=%d\n", t.Composite, t.LiveBefore, t.TotalAfter)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination directory for the compacted copy (must not exist)")
	return cmd
}

func newArchiveCmd(dataPath *string) *cobra.Command {
	var bundlePath string
	var gzipOverride string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Compact then bundle a data directory into a single .ttar file (§4.10, §6.4)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*dataPath)
			if err != nil {
				return err
			}
			if bundlePath == "" {
				return fmt.Errorf("ttdb: --bundle is required")
			}
			gzipEnabled := cfg.ArchiveCompression
			switch gzipOverride {
			case "true":
				gzipEnabled = true
			case "false":
				gzipEnabled = false
			case "":
			default:
				return fmt.Errorf("ttdb: --gzip must be true or false, got %q", gzipOverride)
			}
			if err := archive.Archive(cfg.DataPath, bundlePath, cfg.GrowthFactor, gzipEnabled); err != nil {
				return fmt.Errorf("ttdb: archive: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", bundlePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "output bundle path")
	cmd.Flags().StringVar(&gzipOverride, "gzip", "", "override TTDB_ARCHIVE_GZIP (true|false)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var bundlePath, destDir string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Unpack a .ttar bundle into a fresh data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundlePath == "" || destDir == "" {
				return fmt.Errorf("ttdb: --bundle and --out are both required")
			}
			if err := archive.Restore(bundlePath, destDir); err != nil {
				return fmt.Errorf("ttdb: restore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s into %s\n", bundlePath, destDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "bundle file to restore")
	cmd.Flags().StringVar(&destDir, "out", "", "destination directory (must not exist)")
	return cmd
}

func newInspectCmd(dataPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a summary of a data directory's registered types and record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*dataPath)
			if err != nil {
				return err
			}
			db, err := engine.Open(cfg)
			if err != nil {
				return fmt.Errorf("ttdb: opening %q: %w", cfg.DataPath, err)
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			total, composites, interfaces := db.Registry().Stats()
			fmt.Fprintf(w, "%s: %d registered types (%d composites, %d interfaces)\n", cfg.DataPath, total, composites, interfaces)
			for _, name := range db.Registry().NamesOfKind(schema.KindComposite) {
				count, err := db.Count(name)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "  %-24s %d records\n", name, count)
			}
			return nil
		},
	}
	return cmd
}

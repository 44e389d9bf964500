package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/overhaul/internal/config"
	"github.com/blackwell-systems/overhaul/internal/ledger"
	"github.com/blackwell-systems/overhaul/internal/output"
)

var (
	versionsFlagOutput string
	versionsFlagFollow bool
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Show the installed version of each component",
	Long: `Show the installed version of each managed component, read from the
per-component version ledger. Components without a recorded version (fresh
installs) show as "unknown".`,
	Example: `  overhaul versions
  overhaul versions --output json
  overhaul versions --follow`,
	Args: cobra.NoArgs,
	RunE: runVersions,
}

func init() {
	versionsCmd.Flags().StringVar(&versionsFlagOutput, "output", "text", "output format: text or json")
	versionsCmd.Flags().BoolVar(&versionsFlagFollow, "follow", false, "keep watching the ledger and re-print on change")
	RootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	if versionsFlagOutput != "text" && versionsFlagOutput != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", versionsFlagOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := printVersions(cfg); err != nil {
		return err
	}
	if !versionsFlagFollow {
		return nil
	}
	return followVersions(cfg)
}

func printVersions(cfg *config.Config) error {
	led := ledger.New()
	rows := make([]output.VersionRow, 0, len(cfg.Components))
	for _, comp := range cfg.Components {
		v, err := led.Read(comp)
		if err != nil {
			return err
		}
		rows = append(rows, output.VersionRow{Component: comp.Name, Version: v})
	}

	if versionsFlagOutput == "json" {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal versions: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Print(output.RenderVersionTable(rows))
	return nil
}

// followVersions watches each component's install directory and re-prints
// the table whenever a ledger file changes, until interrupted.
func followVersions(cfg *config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, comp := range cfg.Components {
		if err := watcher.Add(comp.InstallDir); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot watch %s: %v\n", comp.InstallDir, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no component install directories could be watched")
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != ledger.Filename {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			fmt.Println()
			if err := printVersions(cfg); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "warning: watch error: %v\n", err)
		}
	}
}

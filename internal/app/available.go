package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/overhaul/internal/ledger"
	"github.com/blackwell-systems/overhaul/internal/release"
)

var availableCmd = &cobra.Command{
	Use:   "available <component>",
	Short: "Show the latest release available for a component",
	Long: `Query the release metadata endpoint for the latest version of a
component and compare it with the installed one.`,
	Example: `  overhaul available backend
  overhaul available frontend`,
	Args: cobra.ExactArgs(1),
	RunE: runAvailable,
}

func init() {
	RootCmd.AddCommand(availableCmd)
}

func runAvailable(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comp, err := cfg.Lookup(args[0])
	if err != nil {
		return err
	}

	client := release.NewClient(cfg.BaseURL, cfg.HTTPTimeout)
	rel, err := client.Resolve(comp.Name, "latest")
	if err != nil {
		return fmt.Errorf("failed to check releases for %s: %w", comp.Name, err)
	}

	installed, err := ledger.New().Read(comp)
	if err != nil {
		return err
	}

	fmt.Printf("%s:\n", comp.Name)
	fmt.Printf("  installed: %s\n", installed)
	fmt.Printf("  latest:    %s\n", rel.Version)
	if release.Same(installed, rel.Version) {
		fmt.Println("  up to date")
	} else {
		fmt.Printf("  run 'overhaul update %s' to install %s\n", comp.Name, rel.Version)
	}
	return nil
}

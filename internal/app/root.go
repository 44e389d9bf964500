package app

import (
	"github.com/spf13/cobra"
)

var (
	configPath string

	// RootCmd is the root command for overhaul
	RootCmd = &cobra.Command{
		Use:   "overhaul",
		Short: "Safe update and rollback for appliance components",
		Long: `overhaul upgrades and downgrades the independently-versioned components
of this host (the backend service and the frontend bundle) without losing
user data or leaving the host in a non-functional state.

Every update takes a backup of the installation directory before touching
it, verifies downloaded artifacts against their declared checksum, and only
records the new version once the service is confirmed running. Any failure
after the backup rolls the component back to the previous version.

Examples:
  # Show installed versions
  overhaul versions

  # Check what is available for the backend
  overhaul available backend

  # Update one component
  overhaul update frontend
  overhaul update backend v1.4.2

  # Update everything in the safe order
  overhaul update-all

  # Return a component to its previously installed version
  overhaul rollback backend`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: /etc/overhaul/overhaul.yaml)")
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

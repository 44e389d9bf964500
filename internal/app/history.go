package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/overhaul/internal/output"
)

var historyFlagLimit int

var historyCmd = &cobra.Command{
	Use:   "history [component]",
	Short: "Show recorded update attempts",
	Long: `Show the update-attempt history, newest first, optionally filtered to one
component. Every attempt records the versions involved, the stage reached,
and the final outcome, including rollbacks.`,
	Example: `  overhaul history
  overhaul history backend
  overhaul history --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlagLimit, "limit", 20, "maximum attempts to show (0 for all)")
	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	component := ""
	if len(args) == 1 {
		if _, err := cfg.Lookup(args[0]); err != nil {
			return err
		}
		component = args[0]
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	attempts, err := st.ListAttempts(component, historyFlagLimit)
	if err != nil {
		return err
	}
	fmt.Print(output.RenderAttemptTable(attempts))
	return nil
}

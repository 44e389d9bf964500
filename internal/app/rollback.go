package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/overhaul/internal/ledger"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <component>",
	Short: "Return a component to its previously installed version",
	Long: `Start a new update attempt targeting the last version that was
successfully installed before the current one, according to the update
history. This is a full update attempt — backup, verify, swap, start —
not a silent undo.`,
	Example: `  overhaul rollback backend`,
	Args:    cobra.ExactArgs(1),
	RunE:    runRollback,
}

func init() {
	RootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comp, err := cfg.Lookup(args[0])
	if err != nil {
		return err
	}

	current, err := ledger.New().Read(comp)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	prev, err := st.LastSuccess(comp.Name, current)
	if err != nil {
		return err
	}
	if prev == nil {
		return fmt.Errorf("no previous version recorded for %s; use 'overhaul update %s <version>'", comp.Name, comp.Name)
	}

	fmt.Printf("Rolling %s back from %s to %s\n", comp.Name, current, prev.ToVersion)
	return newUpdater(cfg, st).Update(comp.Name, prev.ToVersion)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/config"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the configured usage backend",
}

var usageGetCmd = &cobra.Command{
	Use:   "get <subscription-id>",
	Short: "Print the usage record for a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Usage.Backend == config.BackendMemory {
			return fmt.Errorf("the memory backend is not shared with a running server")
		}

		store, closeStore, err := openUsageStore(cmd.Context(), cfg.Usage, clock.System())
		if err != nil {
			return err
		}
		defer closeStore()

		record, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, usage.ErrNotFound) {
			return fmt.Errorf("no usage recorded for %s", args[0])
		} else if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(record)
	},
}

func init() {
	usageCmd.AddCommand(usageGetCmd)
}

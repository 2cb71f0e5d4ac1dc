package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/pipescore/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status [snapshot-id]",
	Short: "Show the registry trail for a snapshot, or the latest entry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			entries, err := env.Registry.ForSnapshot(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Printf("no registry entries for snapshot %s\n", args[0])
				return nil
			}
			for _, e := range entries {
				printEntry(e)
			}
			return nil
		}

		latest, err := env.Registry.Latest(ctx, nil)
		if err != nil {
			return err
		}
		if latest == nil {
			fmt.Println("registry is empty")
			return nil
		}
		printEntry(*latest)
		return nil
	},
}

func printEntry(e model.RegistryEntry) {
	fmt.Printf("%s  %-20s %-10s %s  %s\n",
		e.RecordTimestamp.Format("2006-01-02 15:04:05"),
		e.Status, e.TriggeredBy, e.SnapshotID, e.Notes,
	)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

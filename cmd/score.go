package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pipescore/internal/model"
)

var scoreLatest bool

var scoreCmd = &cobra.Command{
	Use:   "score [snapshot-id]",
	Short: "Score one snapshot into pipeline units and history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var snapshotID string
		switch {
		case len(args) == 1 && !scoreLatest:
			snapshotID = args[0]
		case scoreLatest && len(args) == 0:
			snapshotID, err = env.Registry.LatestCompletedIngest(ctx)
			if err != nil {
				return err
			}
		default:
			return eris.New("pass exactly one snapshot id, or --latest")
		}

		result := env.Processor.Process(ctx, snapshotID)
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))

		if result.Status != model.ResultSuccess {
			return eris.Errorf("scoring failed for snapshot %s", snapshotID)
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreLatest, "latest", false, "score the most recent completed-ingest snapshot")
	rootCmd.AddCommand(scoreCmd)
}

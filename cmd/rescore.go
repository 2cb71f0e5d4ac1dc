package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pipescore/internal/scoring"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Rescore every completed-ingest snapshot, oldest first",
	Long:  "Replays scoring over all snapshots after a rubric change. Failed snapshots are reported and skipped; the run continues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rescorer := scoring.NewRescorer(env.Processor, env.Registry)
		summary, err := rescorer.RescoreAll(ctx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal summary")
		}
		fmt.Println(string(out))

		if summary.Failed > 0 {
			return eris.Errorf("%d of %d snapshots failed", summary.Failed, summary.Discovered)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescoreCmd)
}

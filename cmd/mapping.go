package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/scoring"
)

var mappingReload bool

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Show the scoring rubric, or reload it into the warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := scoring.DefaultEntries(time.Now().UTC())
		m, err := scoring.NewMapping(entries)
		if err != nil {
			return err
		}

		if !mappingReload {
			fmt.Printf("%-36s %-5s %s\n", "COMBINED STAGE", "LEVEL", "SCORE")
			for _, e := range m.Entries() {
				fmt.Printf("%-36s %5d %5.1f\n", e.CombinedStage, e.StageLevel, e.AdjustedScore)
			}
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.ReplaceStageMapping(ctx, m.Entries())
		if err != nil {
			return err
		}
		zap.L().Info("stage mapping reloaded", zap.Int("entries", n))
		return nil
	},
}

func init() {
	mappingCmd.Flags().BoolVar(&mappingReload, "reload", false, "truncate and reload the rubric table")
	rootCmd.AddCommand(mappingCmd)
}

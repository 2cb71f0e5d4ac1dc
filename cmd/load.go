package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/model"
)

var (
	loadSnapshotID string
	loadCompanies  string
	loadDeals      string
	loadOwners     string
	loadStages     string
)

// load exists for local development and backfills: it plays the role of the
// ingest collaborator, writing snapshot rows and the ingest-completed
// registry entry that scoring discovers.
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load snapshot and reference data from JSON files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadSnapshotID == "" && (loadCompanies != "" || loadDeals != "") {
			return eris.New("--snapshot is required when loading companies or deals")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		log := zap.L().With(zap.String("component", "load"))

		if loadOwners != "" {
			var owners []model.Owner
			if err := readJSON(loadOwners, &owners); err != nil {
				return err
			}
			n, err := env.Store.UpsertOwners(ctx, owners)
			if err != nil {
				return err
			}
			log.Info("owners loaded", zap.Int64("rows", n))
		}

		if loadStages != "" {
			var stages []model.DealStageRef
			if err := readJSON(loadStages, &stages); err != nil {
				return err
			}
			n, err := env.Store.UpsertDealStageReference(ctx, stages)
			if err != nil {
				return err
			}
			log.Info("deal stage reference loaded", zap.Int64("rows", n))
		}

		var companies int64
		if loadCompanies != "" {
			var rows []model.Company
			if err := readJSON(loadCompanies, &rows); err != nil {
				return err
			}
			companies, err = env.Store.ReplaceCompanies(ctx, loadSnapshotID, rows)
			if err != nil {
				return err
			}
			log.Info("companies loaded", zap.String("snapshot_id", loadSnapshotID), zap.Int64("rows", companies))
		}

		var deals int64
		if loadDeals != "" {
			var rows []model.Deal
			if err := readJSON(loadDeals, &rows); err != nil {
				return err
			}
			deals, err = env.Store.ReplaceDeals(ctx, loadSnapshotID, rows)
			if err != nil {
				return err
			}
			log.Info("deals loaded", zap.String("snapshot_id", loadSnapshotID), zap.Int64("rows", deals))
		}

		if loadSnapshotID != "" && companies > 0 {
			err := env.Store.AppendRegistryEntry(ctx, model.RegistryEntry{
				SnapshotID:      loadSnapshotID,
				RecordTimestamp: time.Now().UTC(),
				TriggeredBy:     model.TriggerManual,
				Status:          model.StatusIngestCompleted,
				Notes:           "loaded from file",
			})
			if err != nil {
				return err
			}
		}

		return nil
	},
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "parse %s", path)
	}
	return nil
}

func init() {
	loadCmd.Flags().StringVar(&loadSnapshotID, "snapshot", "", "snapshot id for company/deal rows")
	loadCmd.Flags().StringVar(&loadCompanies, "companies", "", "path to companies JSON file")
	loadCmd.Flags().StringVar(&loadDeals, "deals", "", "path to deals JSON file")
	loadCmd.Flags().StringVar(&loadOwners, "owners", "", "path to owners JSON file")
	loadCmd.Flags().StringVar(&loadStages, "stages", "", "path to deal stage reference JSON file")
	rootCmd.AddCommand(loadCmd)
}

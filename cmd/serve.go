package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/model"
)

var servePort int

// eventProcessor is the slice of the scoring processor the trigger server
// needs. Tests substitute a stub.
type eventProcessor interface {
	ProcessEvent(ctx context.Context, event model.SnapshotEvent) model.ScoreResult
}

// buildMux assembles the trigger server routes. Scoring runs asynchronously;
// the ingest caller only needs the ack.
func buildMux(ctx context.Context, proc eventProcessor) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /events/snapshot-completed", func(w http.ResponseWriter, r *http.Request) {
		var event model.SnapshotEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if event.SnapshotID == "" {
			http.Error(w, `{"error":"snapshot_id is required"}`, http.StatusBadRequest)
			return
		}

		go func() {
			if proc == nil {
				return
			}
			result := proc.ProcessEvent(ctx, event)
			if result.Status != model.ResultSuccess {
				zap.L().Error("triggered scoring failed",
					zap.String("snapshot_id", event.SnapshotID),
					zap.String("error", result.Error),
				)
				return
			}
			zap.L().Info("triggered scoring complete",
				zap.String("snapshot_id", event.SnapshotID),
				zap.Int64("pipeline_units", result.PipelineUnits),
				zap.Int64("score_history", result.ScoreHistory),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "accepted",
			"snapshot_id": event.SnapshotID,
		})
	})

	return mux
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the snapshot-completed trigger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildMux(ctx, env.Processor),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pipescore/internal/registry"
	"github.com/sells-group/pipescore/internal/resilience"
	"github.com/sells-group/pipescore/internal/scoring"
	"github.com/sells-group/pipescore/internal/warehouse"
)

// scoringEnv holds the store, registry log, and processor shared by the
// score/rescore/serve commands.
type scoringEnv struct {
	Store     warehouse.Store
	Registry  *registry.Log
	Processor *scoring.Processor
}

// Close releases resources held by the environment.
func (e *scoringEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (warehouse.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "pipescore.db"
		}
		return warehouse.NewSQLite(dsn)
	case "postgres":
		return warehouse.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, migrates the schema, and wires the processor.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*scoringEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := registry.New(st)

	retry := resilience.DefaultRetryConfig()
	if cfg.Scoring.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.Scoring.RetryMaxAttempts
	}

	proc := scoring.NewProcessor(st, reg,
		scoring.WithReadiness(cfg.Scoring.Readiness()),
		scoring.WithRetry(retry),
	)

	return &scoringEnv{Store: st, Registry: reg, Processor: proc}, nil
}

// requirePostgres returns the Postgres store behind the env, for subsystems
// that run raw SQL (views, integrity checks).
func requirePostgres(st warehouse.Store) (*warehouse.PostgresStore, error) {
	ps, ok := st.(*warehouse.PostgresStore)
	if !ok {
		return nil, eris.New("this command requires the postgres store driver")
	}
	return ps, nil
}

// commandTimeout bounds one-shot CLI operations.
const commandTimeout = 30 * time.Minute

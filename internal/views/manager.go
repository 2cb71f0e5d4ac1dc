package views

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/db"
)

// Manager deploys and drops the analytic views.
type Manager struct {
	pool db.Pool
}

// NewManager returns a Manager over pool.
func NewManager(pool db.Pool) *Manager {
	return &Manager{pool: pool}
}

// Deploy creates or replaces every view, in order. It stops at the first
// failure so a broken definition never leaves later views pointing at it.
func (m *Manager) Deploy(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "views"))

	for _, v := range All() {
		if _, err := m.pool.Exec(ctx, v.SQL); err != nil {
			return eris.Wrapf(err, "views: deploy %s", v.Name)
		}
		log.Info("view deployed", zap.String("view", v.Name))
	}
	return nil
}

// DeployOne creates or replaces a single view by name.
func (m *Manager) DeployOne(ctx context.Context, name string) error {
	for _, v := range All() {
		if v.Name != name {
			continue
		}
		if _, err := m.pool.Exec(ctx, v.SQL); err != nil {
			return eris.Wrapf(err, "views: deploy %s", v.Name)
		}
		zap.L().Info("view deployed",
			zap.String("component", "views"),
			zap.String("view", v.Name),
		)
		return nil
	}
	return eris.Errorf("views: unknown view %q", name)
}

// Drop removes every view, ignoring views that do not exist.
func (m *Manager) Drop(ctx context.Context) error {
	views := All()
	for i := len(views) - 1; i >= 0; i-- {
		if _, err := m.pool.Exec(ctx, "DROP VIEW IF EXISTS crm_data."+views[i].Name); err != nil {
			return eris.Wrapf(err, "views: drop %s", views[i].Name)
		}
	}
	return nil
}

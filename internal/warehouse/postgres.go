package warehouse

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pipescore/internal/db"
	"github.com/sells-group/pipescore/internal/model"
)

// PostgresStore implements Store against a crm_data schema using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (view deployment, integrity checks).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS crm_data;

CREATE TABLE IF NOT EXISTS crm_data.companies (
	company_id       TEXT NOT NULL,
	company_name     TEXT,
	lifecycle_stage  TEXT,
	lead_status      TEXT,
	owner_id         TEXT,
	company_type     TEXT,
	snapshot_id      TEXT NOT NULL,
	record_timestamp TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (snapshot_id, company_id)
);

CREATE TABLE IF NOT EXISTS crm_data.deals (
	deal_id               TEXT NOT NULL,
	deal_name             TEXT,
	deal_stage            TEXT,
	deal_type             TEXT,
	amount                DOUBLE PRECISION NOT NULL DEFAULT 0,
	owner_id              TEXT,
	associated_company_id TEXT,
	snapshot_id           TEXT NOT NULL,
	record_timestamp      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (snapshot_id, deal_id)
);

CREATE TABLE IF NOT EXISTS crm_data.owners (
	owner_id   TEXT PRIMARY KEY,
	email      TEXT,
	first_name TEXT,
	last_name  TEXT,
	active     BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS crm_data.deal_stage_reference (
	pipeline_id    TEXT NOT NULL,
	pipeline_label TEXT,
	stage_id       TEXT NOT NULL,
	stage_label    TEXT,
	is_closed      BOOLEAN NOT NULL DEFAULT false,
	probability    DOUBLE PRECISION NOT NULL DEFAULT 0,
	display_order  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (pipeline_id, stage_id)
);

CREATE TABLE IF NOT EXISTS crm_data.stage_mapping (
	lifecycle_stage  TEXT NOT NULL,
	lead_status      TEXT,
	deal_stage       TEXT,
	combined_stage   TEXT NOT NULL,
	stage_level      INTEGER NOT NULL,
	adjusted_score   DOUBLE PRECISION NOT NULL,
	record_timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_data.pipeline_units (
	snapshot_id      TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	deal_id          TEXT,
	owner_id         TEXT,
	lifecycle_stage  TEXT,
	lead_status      TEXT,
	deal_stage       TEXT,
	combined_stage   TEXT NOT NULL,
	stage_level      INTEGER,
	adjusted_score   DOUBLE PRECISION,
	stage_source     TEXT NOT NULL,
	record_timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_data.score_history (
	snapshot_id        TEXT NOT NULL,
	owner_id           TEXT NOT NULL,
	combined_stage     TEXT NOT NULL,
	num_companies      INTEGER NOT NULL,
	total_score        DOUBLE PRECISION NOT NULL,
	snapshot_timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_data.snapshot_registry (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	snapshot_id      TEXT NOT NULL,
	record_timestamp TIMESTAMPTZ NOT NULL,
	triggered_by     TEXT NOT NULL,
	status           TEXT NOT NULL,
	notes            TEXT
);

CREATE INDEX IF NOT EXISTS idx_companies_snapshot ON crm_data.companies(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_deals_snapshot ON crm_data.deals(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_deals_company ON crm_data.deals(associated_company_id);
CREATE INDEX IF NOT EXISTS idx_units_snapshot ON crm_data.pipeline_units(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_units_owner ON crm_data.pipeline_units(owner_id);
CREATE INDEX IF NOT EXISTS idx_history_snapshot ON crm_data.score_history(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_history_owner ON crm_data.score_history(owner_id);
CREATE INDEX IF NOT EXISTS idx_registry_snapshot ON crm_data.snapshot_registry(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_registry_status ON crm_data.snapshot_registry(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var companyColumns = []string{
	"company_id", "company_name", "lifecycle_stage", "lead_status",
	"owner_id", "company_type", "snapshot_id", "record_timestamp",
}

func (s *PostgresStore) ReplaceCompanies(ctx context.Context, snapshotID string, rows []model.Company) (int64, error) {
	values := make([][]any, len(rows))
	for i, c := range rows {
		values[i] = []any{
			c.CompanyID, c.CompanyName, c.LifecycleStage, c.LeadStatus,
			c.OwnerID, c.CompanyType, snapshotID, c.RecordTimestamp,
		}
	}
	return db.ReplacePartition(ctx, s.pool, "crm_data.companies", "snapshot_id", snapshotID, companyColumns, values)
}

var dealColumns = []string{
	"deal_id", "deal_name", "deal_stage", "deal_type", "amount",
	"owner_id", "associated_company_id", "snapshot_id", "record_timestamp",
}

func (s *PostgresStore) ReplaceDeals(ctx context.Context, snapshotID string, rows []model.Deal) (int64, error) {
	values := make([][]any, len(rows))
	for i, d := range rows {
		values[i] = []any{
			d.DealID, d.DealName, d.DealStage, d.DealType, d.Amount,
			d.OwnerID, d.AssociatedCompanyID, snapshotID, d.RecordTimestamp,
		}
	}
	return db.ReplacePartition(ctx, s.pool, "crm_data.deals", "snapshot_id", snapshotID, dealColumns, values)
}

func (s *PostgresStore) CompaniesForSnapshot(ctx context.Context, snapshotID string) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, company_name, lifecycle_stage, lead_status, owner_id, company_type, snapshot_id, record_timestamp
		 FROM crm_data.companies WHERE snapshot_id = $1 ORDER BY company_id`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: companies for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var name, lifecycle, owner, ctype *string
		if err := rows.Scan(&c.CompanyID, &name, &lifecycle, &c.LeadStatus, &owner, &ctype, &c.SnapshotID, &c.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		c.CompanyName = deref(name)
		c.LifecycleStage = deref(lifecycle)
		c.OwnerID = deref(owner)
		c.CompanyType = deref(ctype)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: companies iterate")
}

func (s *PostgresStore) DealsForSnapshot(ctx context.Context, snapshotID string) ([]model.Deal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT deal_id, deal_name, deal_stage, deal_type, amount, owner_id, associated_company_id, snapshot_id, record_timestamp
		 FROM crm_data.deals WHERE snapshot_id = $1 ORDER BY deal_id`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: deals for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		var d model.Deal
		var name, stage, dtype, owner, company *string
		if err := rows.Scan(&d.DealID, &name, &stage, &dtype, &d.Amount, &owner, &company, &d.SnapshotID, &d.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		d.DealName = deref(name)
		d.DealStage = deref(stage)
		d.DealType = deref(dtype)
		d.OwnerID = deref(owner)
		d.AssociatedCompanyID = deref(company)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: deals iterate")
}

func (s *PostgresStore) UpsertOwners(ctx context.Context, rows []model.Owner) (int64, error) {
	values := make([][]any, len(rows))
	for i, o := range rows {
		values[i] = []any{o.OwnerID, o.Email, o.FirstName, o.LastName, o.Active}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "crm_data.owners",
		Columns:      []string{"owner_id", "email", "first_name", "last_name", "active"},
		ConflictKeys: []string{"owner_id"},
	}, values)
}

func (s *PostgresStore) UpsertDealStageReference(ctx context.Context, rows []model.DealStageRef) (int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.PipelineID, r.PipelineLabel, r.StageID, r.StageLabel, r.IsClosed, r.Probability, r.DisplayOrder}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "crm_data.deal_stage_reference",
		Columns:      []string{"pipeline_id", "pipeline_label", "stage_id", "stage_label", "is_closed", "probability", "display_order"},
		ConflictKeys: []string{"pipeline_id", "stage_id"},
	}, values)
}

func (s *PostgresStore) ClosedDealStages(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage_id FROM crm_data.deal_stage_reference WHERE is_closed`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: closed deal stages")
	}
	defer rows.Close()

	closed := make(map[string]bool)
	for rows.Next() {
		var stageID string
		if err := rows.Scan(&stageID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan closed stage")
		}
		closed[strings.ToLower(stageID)] = true
	}
	return closed, eris.Wrap(rows.Err(), "postgres: closed stages iterate")
}

var stageMappingColumns = []string{
	"lifecycle_stage", "lead_status", "deal_stage", "combined_stage",
	"stage_level", "adjusted_score", "record_timestamp",
}

// ReplaceStageMapping truncates and reloads the rubric in one transaction so
// readers never observe a half-loaded table.
func (s *PostgresStore) ReplaceStageMapping(ctx context.Context, entries []model.StageMappingEntry) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: replace stage mapping: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM crm_data.stage_mapping`); err != nil {
		return 0, eris.Wrap(err, "postgres: replace stage mapping: delete")
	}

	values := make([][]any, len(entries))
	for i, e := range entries {
		values[i] = []any{
			e.LifecycleStage, e.LeadStatus, e.DealStage, e.CombinedStage,
			e.StageLevel, e.AdjustedScore, e.RecordTimestamp,
		}
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"crm_data", "stage_mapping"}, stageMappingColumns, pgx.CopyFromRows(values))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: replace stage mapping: COPY")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: replace stage mapping: commit tx")
	}
	return int(n), nil
}

func (s *PostgresStore) StageMapping(ctx context.Context) ([]model.StageMappingEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lifecycle_stage, lead_status, deal_stage, combined_stage, stage_level, adjusted_score, record_timestamp
		 FROM crm_data.stage_mapping ORDER BY stage_level, combined_stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stage mapping")
	}
	defer rows.Close()

	var out []model.StageMappingEntry
	for rows.Next() {
		var e model.StageMappingEntry
		if err := rows.Scan(&e.LifecycleStage, &e.LeadStatus, &e.DealStage, &e.CombinedStage, &e.StageLevel, &e.AdjustedScore, &e.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage mapping entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: stage mapping iterate")
}

var unitColumns = []string{
	"snapshot_id", "company_id", "deal_id", "owner_id", "lifecycle_stage",
	"lead_status", "deal_stage", "combined_stage", "stage_level",
	"adjusted_score", "stage_source", "record_timestamp",
}

func (s *PostgresStore) ReplaceUnits(ctx context.Context, snapshotID string, units []model.PipelineUnit) (int64, error) {
	values := make([][]any, len(units))
	for i, u := range units {
		values[i] = []any{
			snapshotID, u.CompanyID, u.DealID, u.OwnerID, u.LifecycleStage,
			u.LeadStatus, u.DealStage, u.CombinedStage, u.StageLevel,
			u.AdjustedScore, string(u.StageSource), u.RecordTimestamp,
		}
	}
	return db.ReplacePartition(ctx, s.pool, "crm_data.pipeline_units", "snapshot_id", snapshotID, unitColumns, values)
}

func (s *PostgresStore) UnitsForSnapshot(ctx context.Context, snapshotID string) ([]model.PipelineUnit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot_id, company_id, deal_id, owner_id, lifecycle_stage, lead_status, deal_stage,
		        combined_stage, stage_level, adjusted_score, stage_source, record_timestamp
		 FROM crm_data.pipeline_units WHERE snapshot_id = $1 ORDER BY company_id, deal_id`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: units for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.PipelineUnit
	for rows.Next() {
		var u model.PipelineUnit
		var owner, lifecycle, source *string
		if err := rows.Scan(&u.SnapshotID, &u.CompanyID, &u.DealID, &owner, &lifecycle, &u.LeadStatus, &u.DealStage,
			&u.CombinedStage, &u.StageLevel, &u.AdjustedScore, &source, &u.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unit")
		}
		u.OwnerID = deref(owner)
		u.LifecycleStage = deref(lifecycle)
		u.StageSource = model.StageSource(deref(source))
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: units iterate")
}

func (s *PostgresStore) CountUnits(ctx context.Context, snapshotID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM crm_data.pipeline_units WHERE snapshot_id = $1`,
		snapshotID,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count units for snapshot %s", snapshotID)
}

var historyColumns = []string{
	"snapshot_id", "owner_id", "combined_stage", "num_companies", "total_score", "snapshot_timestamp",
}

func (s *PostgresStore) ReplaceHistory(ctx context.Context, snapshotID string, entries []model.ScoreHistoryEntry) (int64, error) {
	values := make([][]any, len(entries))
	for i, e := range entries {
		values[i] = []any{snapshotID, e.OwnerID, e.CombinedStage, e.NumCompanies, e.TotalScore, e.SnapshotTimestamp}
	}
	return db.ReplacePartition(ctx, s.pool, "crm_data.score_history", "snapshot_id", snapshotID, historyColumns, values)
}

func (s *PostgresStore) HistoryForSnapshot(ctx context.Context, snapshotID string) ([]model.ScoreHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot_id, owner_id, combined_stage, num_companies, total_score, snapshot_timestamp
		 FROM crm_data.score_history WHERE snapshot_id = $1 ORDER BY owner_id, combined_stage`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.ScoreHistoryEntry
	for rows.Next() {
		var e model.ScoreHistoryEntry
		if err := rows.Scan(&e.SnapshotID, &e.OwnerID, &e.CombinedStage, &e.NumCompanies, &e.TotalScore, &e.SnapshotTimestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) AppendRegistryEntry(ctx context.Context, e model.RegistryEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crm_data.snapshot_registry (id, snapshot_id, record_timestamp, triggered_by, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), e.SnapshotID, e.RecordTimestamp, string(e.TriggeredBy), string(e.Status), e.Notes,
	)
	return eris.Wrapf(err, "postgres: append registry entry for snapshot %s", e.SnapshotID)
}

func (s *PostgresStore) LatestRegistryEntry(ctx context.Context, status *model.RegistryStatus) (*model.RegistryEntry, error) {
	query := `SELECT snapshot_id, record_timestamp, triggered_by, status, notes
	          FROM crm_data.snapshot_registry`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY record_timestamp DESC LIMIT 1`

	e, err := scanRegistryRow(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest registry entry")
	}
	return e, nil
}

func (s *PostgresStore) RegistryForSnapshot(ctx context.Context, snapshotID string) ([]model.RegistryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot_id, record_timestamp, triggered_by, status, notes
		 FROM crm_data.snapshot_registry WHERE snapshot_id = $1 ORDER BY record_timestamp`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: registry for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.RegistryEntry
	for rows.Next() {
		e, err := scanRegistryRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan registry entry")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: registry iterate")
}

// SnapshotsWithStatus lists snapshots holding at least one row with the given
// status, oldest first by the earliest matching row.
func (s *PostgresStore) SnapshotsWithStatus(ctx context.Context, status model.RegistryStatus) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot_id FROM crm_data.snapshot_registry
		 WHERE status = $1 GROUP BY snapshot_id ORDER BY MIN(record_timestamp)`,
		string(status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: snapshots with status %s", status)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot id")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "postgres: snapshots iterate")
}

func scanRegistryRow(row pgx.Row) (*model.RegistryEntry, error) {
	var e model.RegistryEntry
	var triggered, status string
	var notes *string
	if err := row.Scan(&e.SnapshotID, &e.RecordTimestamp, &triggered, &status, &notes); err != nil {
		return nil, err
	}
	e.TriggeredBy = model.RegistryTrigger(triggered)
	parsed, err := model.ParseRegistryStatus(status)
	if err != nil {
		return nil, err
	}
	e.Status = parsed
	e.Notes = deref(notes)
	return &e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

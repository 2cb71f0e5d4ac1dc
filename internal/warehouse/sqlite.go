package warehouse

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pipescore/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Tables are
// unqualified since SQLite has no schemas; otherwise the layout mirrors the
// Postgres crm_data schema.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	company_id       TEXT NOT NULL,
	company_name     TEXT,
	lifecycle_stage  TEXT,
	lead_status      TEXT,
	owner_id         TEXT,
	company_type     TEXT,
	snapshot_id      TEXT NOT NULL,
	record_timestamp DATETIME NOT NULL,
	PRIMARY KEY (snapshot_id, company_id)
);

CREATE TABLE IF NOT EXISTS deals (
	deal_id               TEXT NOT NULL,
	deal_name             TEXT,
	deal_stage            TEXT,
	deal_type             TEXT,
	amount                REAL NOT NULL DEFAULT 0,
	owner_id              TEXT,
	associated_company_id TEXT,
	snapshot_id           TEXT NOT NULL,
	record_timestamp      DATETIME NOT NULL,
	PRIMARY KEY (snapshot_id, deal_id)
);

CREATE TABLE IF NOT EXISTS owners (
	owner_id   TEXT PRIMARY KEY,
	email      TEXT,
	first_name TEXT,
	last_name  TEXT,
	active     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS deal_stage_reference (
	pipeline_id    TEXT NOT NULL,
	pipeline_label TEXT,
	stage_id       TEXT NOT NULL,
	stage_label    TEXT,
	is_closed      INTEGER NOT NULL DEFAULT 0,
	probability    REAL NOT NULL DEFAULT 0,
	display_order  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (pipeline_id, stage_id)
);

CREATE TABLE IF NOT EXISTS stage_mapping (
	lifecycle_stage  TEXT NOT NULL,
	lead_status      TEXT,
	deal_stage       TEXT,
	combined_stage   TEXT NOT NULL,
	stage_level      INTEGER NOT NULL,
	adjusted_score   REAL NOT NULL,
	record_timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_units (
	snapshot_id      TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	deal_id          TEXT,
	owner_id         TEXT,
	lifecycle_stage  TEXT,
	lead_status      TEXT,
	deal_stage       TEXT,
	combined_stage   TEXT NOT NULL,
	stage_level      INTEGER,
	adjusted_score   REAL,
	stage_source     TEXT NOT NULL,
	record_timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS score_history (
	snapshot_id        TEXT NOT NULL,
	owner_id           TEXT NOT NULL,
	combined_stage     TEXT NOT NULL,
	num_companies      INTEGER NOT NULL,
	total_score        REAL NOT NULL,
	snapshot_timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_registry (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id      TEXT NOT NULL,
	record_timestamp DATETIME NOT NULL,
	triggered_by     TEXT NOT NULL,
	status           TEXT NOT NULL,
	notes            TEXT
);

CREATE INDEX IF NOT EXISTS idx_companies_snapshot ON companies(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_deals_snapshot ON deals(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_units_snapshot ON pipeline_units(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_history_snapshot ON score_history(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_registry_snapshot ON snapshot_registry(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_registry_status ON snapshot_registry(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// replaceRows deletes one snapshot's partition and inserts the replacement
// rows in a single transaction.
func (s *SQLiteStore) replaceRows(ctx context.Context, table, keyColumn, keyValue, insertSQL string, rows [][]any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: replace %s: begin tx", table)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+keyColumn+" = ?", keyValue); err != nil {
		return 0, eris.Wrapf(err, "sqlite: replace %s: delete partition", table)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: replace %s: prepare insert", table)
	}
	defer stmt.Close()

	var n int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: replace %s: insert row", table)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: replace %s: commit tx", table)
	}
	return n, nil
}

func (s *SQLiteStore) ReplaceCompanies(ctx context.Context, snapshotID string, rows []model.Company) (int64, error) {
	values := make([][]any, len(rows))
	for i, c := range rows {
		values[i] = []any{
			c.CompanyID, c.CompanyName, c.LifecycleStage, c.LeadStatus,
			c.OwnerID, c.CompanyType, snapshotID, c.RecordTimestamp,
		}
	}
	return s.replaceRows(ctx, "companies", "snapshot_id", snapshotID,
		`INSERT INTO companies (company_id, company_name, lifecycle_stage, lead_status, owner_id, company_type, snapshot_id, record_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, values)
}

func (s *SQLiteStore) ReplaceDeals(ctx context.Context, snapshotID string, rows []model.Deal) (int64, error) {
	values := make([][]any, len(rows))
	for i, d := range rows {
		values[i] = []any{
			d.DealID, d.DealName, d.DealStage, d.DealType, d.Amount,
			d.OwnerID, d.AssociatedCompanyID, snapshotID, d.RecordTimestamp,
		}
	}
	return s.replaceRows(ctx, "deals", "snapshot_id", snapshotID,
		`INSERT INTO deals (deal_id, deal_name, deal_stage, deal_type, amount, owner_id, associated_company_id, snapshot_id, record_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, values)
}

func (s *SQLiteStore) CompaniesForSnapshot(ctx context.Context, snapshotID string) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, company_name, lifecycle_stage, lead_status, owner_id, company_type, snapshot_id, record_timestamp
		 FROM companies WHERE snapshot_id = ? ORDER BY company_id`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: companies for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var name, lifecycle, owner, ctype sql.NullString
		if err := rows.Scan(&c.CompanyID, &name, &lifecycle, &c.LeadStatus, &owner, &ctype, &c.SnapshotID, &c.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		c.CompanyName = name.String
		c.LifecycleStage = lifecycle.String
		c.OwnerID = owner.String
		c.CompanyType = ctype.String
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: companies iterate")
}

func (s *SQLiteStore) DealsForSnapshot(ctx context.Context, snapshotID string) ([]model.Deal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT deal_id, deal_name, deal_stage, deal_type, amount, owner_id, associated_company_id, snapshot_id, record_timestamp
		 FROM deals WHERE snapshot_id = ? ORDER BY deal_id`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: deals for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		var d model.Deal
		var name, stage, dtype, owner, company sql.NullString
		if err := rows.Scan(&d.DealID, &name, &stage, &dtype, &d.Amount, &owner, &company, &d.SnapshotID, &d.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		d.DealName = name.String
		d.DealStage = stage.String
		d.DealType = dtype.String
		d.OwnerID = owner.String
		d.AssociatedCompanyID = company.String
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: deals iterate")
}

func (s *SQLiteStore) UpsertOwners(ctx context.Context, rows []model.Owner) (int64, error) {
	var n int64
	for _, o := range rows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO owners (owner_id, email, first_name, last_name, active) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (owner_id) DO UPDATE SET email = ?, first_name = ?, last_name = ?, active = ?`,
			o.OwnerID, o.Email, o.FirstName, o.LastName, o.Active,
			o.Email, o.FirstName, o.LastName, o.Active,
		)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert owner %s", o.OwnerID)
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) UpsertDealStageReference(ctx context.Context, rows []model.DealStageRef) (int64, error) {
	var n int64
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO deal_stage_reference (pipeline_id, pipeline_label, stage_id, stage_label, is_closed, probability, display_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (pipeline_id, stage_id) DO UPDATE SET pipeline_label = ?, stage_label = ?, is_closed = ?, probability = ?, display_order = ?`,
			r.PipelineID, r.PipelineLabel, r.StageID, r.StageLabel, r.IsClosed, r.Probability, r.DisplayOrder,
			r.PipelineLabel, r.StageLabel, r.IsClosed, r.Probability, r.DisplayOrder,
		)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert deal stage %s/%s", r.PipelineID, r.StageID)
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) ClosedDealStages(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage_id FROM deal_stage_reference WHERE is_closed`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: closed deal stages")
	}
	defer rows.Close()

	closed := make(map[string]bool)
	for rows.Next() {
		var stageID string
		if err := rows.Scan(&stageID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan closed stage")
		}
		closed[strings.ToLower(stageID)] = true
	}
	return closed, eris.Wrap(rows.Err(), "sqlite: closed stages iterate")
}

func (s *SQLiteStore) ReplaceStageMapping(ctx context.Context, entries []model.StageMappingEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: replace stage mapping: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_mapping`); err != nil {
		return 0, eris.Wrap(err, "sqlite: replace stage mapping: delete")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stage_mapping (lifecycle_stage, lead_status, deal_stage, combined_stage, stage_level, adjusted_score, record_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: replace stage mapping: prepare")
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.LifecycleStage, e.LeadStatus, e.DealStage, e.CombinedStage, e.StageLevel, e.AdjustedScore, e.RecordTimestamp); err != nil {
			return 0, eris.Wrapf(err, "sqlite: replace stage mapping: insert %s", e.CombinedStage)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: replace stage mapping: commit tx")
	}
	return len(entries), nil
}

func (s *SQLiteStore) StageMapping(ctx context.Context) ([]model.StageMappingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lifecycle_stage, lead_status, deal_stage, combined_stage, stage_level, adjusted_score, record_timestamp
		 FROM stage_mapping ORDER BY stage_level, combined_stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stage mapping")
	}
	defer rows.Close()

	var out []model.StageMappingEntry
	for rows.Next() {
		var e model.StageMappingEntry
		if err := rows.Scan(&e.LifecycleStage, &e.LeadStatus, &e.DealStage, &e.CombinedStage, &e.StageLevel, &e.AdjustedScore, &e.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage mapping entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: stage mapping iterate")
}

func (s *SQLiteStore) ReplaceUnits(ctx context.Context, snapshotID string, units []model.PipelineUnit) (int64, error) {
	values := make([][]any, len(units))
	for i, u := range units {
		values[i] = []any{
			snapshotID, u.CompanyID, u.DealID, u.OwnerID, u.LifecycleStage,
			u.LeadStatus, u.DealStage, u.CombinedStage, u.StageLevel,
			u.AdjustedScore, string(u.StageSource), u.RecordTimestamp,
		}
	}
	return s.replaceRows(ctx, "pipeline_units", "snapshot_id", snapshotID,
		`INSERT INTO pipeline_units (snapshot_id, company_id, deal_id, owner_id, lifecycle_stage, lead_status, deal_stage, combined_stage, stage_level, adjusted_score, stage_source, record_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, values)
}

func (s *SQLiteStore) UnitsForSnapshot(ctx context.Context, snapshotID string) ([]model.PipelineUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_id, company_id, deal_id, owner_id, lifecycle_stage, lead_status, deal_stage,
		        combined_stage, stage_level, adjusted_score, stage_source, record_timestamp
		 FROM pipeline_units WHERE snapshot_id = ? ORDER BY company_id, deal_id`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: units for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.PipelineUnit
	for rows.Next() {
		var u model.PipelineUnit
		var owner, lifecycle, source sql.NullString
		if err := rows.Scan(&u.SnapshotID, &u.CompanyID, &u.DealID, &owner, &lifecycle, &u.LeadStatus, &u.DealStage,
			&u.CombinedStage, &u.StageLevel, &u.AdjustedScore, &source, &u.RecordTimestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unit")
		}
		u.OwnerID = owner.String
		u.LifecycleStage = lifecycle.String
		u.StageSource = model.StageSource(source.String)
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: units iterate")
}

func (s *SQLiteStore) CountUnits(ctx context.Context, snapshotID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pipeline_units WHERE snapshot_id = ?`,
		snapshotID,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count units for snapshot %s", snapshotID)
}

func (s *SQLiteStore) ReplaceHistory(ctx context.Context, snapshotID string, entries []model.ScoreHistoryEntry) (int64, error) {
	values := make([][]any, len(entries))
	for i, e := range entries {
		values[i] = []any{snapshotID, e.OwnerID, e.CombinedStage, e.NumCompanies, e.TotalScore, e.SnapshotTimestamp}
	}
	return s.replaceRows(ctx, "score_history", "snapshot_id", snapshotID,
		`INSERT INTO score_history (snapshot_id, owner_id, combined_stage, num_companies, total_score, snapshot_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`, values)
}

func (s *SQLiteStore) HistoryForSnapshot(ctx context.Context, snapshotID string) ([]model.ScoreHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_id, owner_id, combined_stage, num_companies, total_score, snapshot_timestamp
		 FROM score_history WHERE snapshot_id = ? ORDER BY owner_id, combined_stage`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.ScoreHistoryEntry
	for rows.Next() {
		var e model.ScoreHistoryEntry
		if err := rows.Scan(&e.SnapshotID, &e.OwnerID, &e.CombinedStage, &e.NumCompanies, &e.TotalScore, &e.SnapshotTimestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func (s *SQLiteStore) AppendRegistryEntry(ctx context.Context, e model.RegistryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot_registry (snapshot_id, record_timestamp, triggered_by, status, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		e.SnapshotID, e.RecordTimestamp, string(e.TriggeredBy), string(e.Status), e.Notes,
	)
	return eris.Wrapf(err, "sqlite: append registry entry for snapshot %s", e.SnapshotID)
}

func (s *SQLiteStore) LatestRegistryEntry(ctx context.Context, status *model.RegistryStatus) (*model.RegistryEntry, error) {
	query := `SELECT snapshot_id, record_timestamp, triggered_by, status, notes FROM snapshot_registry`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY record_timestamp DESC, id DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)

	var e model.RegistryEntry
	var triggered, statusStr string
	var notes sql.NullString
	err := row.Scan(&e.SnapshotID, &e.RecordTimestamp, &triggered, &statusStr, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest registry entry")
	}
	e.TriggeredBy = model.RegistryTrigger(triggered)
	e.Status, err = model.ParseRegistryStatus(statusStr)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest registry entry")
	}
	e.Notes = notes.String
	return &e, nil
}

func (s *SQLiteStore) RegistryForSnapshot(ctx context.Context, snapshotID string) ([]model.RegistryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_id, record_timestamp, triggered_by, status, notes
		 FROM snapshot_registry WHERE snapshot_id = ? ORDER BY record_timestamp, id`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: registry for snapshot %s", snapshotID)
	}
	defer rows.Close()

	var out []model.RegistryEntry
	for rows.Next() {
		var e model.RegistryEntry
		var triggered, statusStr string
		var notes sql.NullString
		if err := rows.Scan(&e.SnapshotID, &e.RecordTimestamp, &triggered, &statusStr, &notes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan registry entry")
		}
		e.TriggeredBy = model.RegistryTrigger(triggered)
		e.Status, err = model.ParseRegistryStatus(statusStr)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan registry entry")
		}
		e.Notes = notes.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: registry iterate")
}

func (s *SQLiteStore) SnapshotsWithStatus(ctx context.Context, status model.RegistryStatus) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_id FROM snapshot_registry
		 WHERE status = ? GROUP BY snapshot_id ORDER BY MIN(record_timestamp)`,
		string(status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: snapshots with status %s", status)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot id")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: snapshots iterate")
}

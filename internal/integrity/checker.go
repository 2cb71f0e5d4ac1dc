// Package integrity runs data-quality checks across the scoring tables and
// produces an operator-facing report.
package integrity

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pipescore/internal/db"
)

// Severity classifies an integrity issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue is one failed check.
type Issue struct {
	Check       string   `json:"check"`
	Table       string   `json:"table"`
	Severity    Severity `json:"severity"`
	Count       int64    `json:"count"`
	Description string   `json:"description"`
}

// Report is the outcome of a full integrity pass.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	TableCounts map[string]int64 `json:"table_counts"`
	Issues      []Issue          `json:"issues"`
}

// Critical reports whether any issue is critical.
func (r *Report) Critical() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Checker runs SQL-side integrity checks. Postgres only: the checks lean on
// the crm_data schema and are run against the reporting warehouse.
type Checker struct {
	pool db.Pool
}

// NewChecker returns a Checker over pool.
func NewChecker(pool db.Pool) *Checker {
	return &Checker{pool: pool}
}

type countCheck struct {
	name        string
	table       string
	severity    Severity
	description string
	query       string
}

// Each query returns a single count; a non-zero count raises the issue.
var countChecks = []countCheck{
	{
		name:        "orphaned_units",
		table:       "crm_data.pipeline_units",
		severity:    SeverityCritical,
		description: "pipeline units referencing companies absent from their snapshot",
		query: `SELECT COUNT(*) FROM crm_data.pipeline_units pu
		        LEFT JOIN crm_data.companies c
		          ON pu.company_id = c.company_id AND pu.snapshot_id = c.snapshot_id
		        WHERE c.company_id IS NULL`,
	},
	{
		name:        "orphaned_deals",
		table:       "crm_data.deals",
		severity:    SeverityWarning,
		description: "deals referencing companies absent from their snapshot",
		query: `SELECT COUNT(*) FROM crm_data.deals d
		        LEFT JOIN crm_data.companies c
		          ON d.associated_company_id = c.company_id AND d.snapshot_id = c.snapshot_id
		        WHERE d.associated_company_id IS NOT NULL AND d.associated_company_id != '' AND c.company_id IS NULL`,
	},
	{
		name:        "conflicting_stage_mapping",
		table:       "crm_data.stage_mapping",
		severity:    SeverityCritical,
		description: "combined stages mapped to more than one (level, score) pair",
		query: `SELECT COUNT(*) FROM (
		          SELECT combined_stage FROM crm_data.stage_mapping
		          GROUP BY combined_stage
		          HAVING COUNT(DISTINCT (stage_level, adjusted_score)) > 1
		        ) conflicts`,
	},
	{
		name:        "duplicate_units",
		table:       "crm_data.pipeline_units",
		severity:    SeverityCritical,
		description: "duplicate (snapshot, company, deal) unit rows",
		query: `SELECT COUNT(*) FROM (
		          SELECT snapshot_id, company_id, deal_id FROM crm_data.pipeline_units
		          GROUP BY snapshot_id, company_id, deal_id
		          HAVING COUNT(*) > 1
		        ) dups`,
	},
	{
		name:        "duplicate_history",
		table:       "crm_data.score_history",
		severity:    SeverityCritical,
		description: "duplicate (snapshot, owner, stage) history rows",
		query: `SELECT COUNT(*) FROM (
		          SELECT snapshot_id, owner_id, combined_stage FROM crm_data.score_history
		          GROUP BY snapshot_id, owner_id, combined_stage
		          HAVING COUNT(*) > 1
		        ) dups`,
	},
	{
		name:        "unmapped_units",
		table:       "crm_data.pipeline_units",
		severity:    SeverityWarning,
		description: "units whose combined stage has no rubric entry",
		query: `SELECT COUNT(*) FROM crm_data.pipeline_units pu
		        WHERE NOT EXISTS (
		          SELECT 1 FROM crm_data.stage_mapping sm WHERE sm.combined_stage = pu.combined_stage
		        )`,
	},
	{
		name:        "case_drift",
		table:       "crm_data.pipeline_units",
		severity:    SeverityWarning,
		description: "stage fields that escaped lowercase normalization",
		query: `SELECT COUNT(*) FROM crm_data.pipeline_units
		        WHERE lifecycle_stage != LOWER(lifecycle_stage)
		           OR combined_stage != LOWER(combined_stage)`,
	},
	{
		name:        "unregistered_snapshots",
		table:       "crm_data.pipeline_units",
		severity:    SeverityWarning,
		description: "scored snapshots with no registry trail",
		query: `SELECT COUNT(*) FROM (
		          SELECT DISTINCT snapshot_id FROM crm_data.pipeline_units
		        ) scored
		        WHERE NOT EXISTS (
		          SELECT 1 FROM crm_data.snapshot_registry r WHERE r.snapshot_id = scored.snapshot_id
		        )`,
	},
	{
		name:        "completed_without_units",
		table:       "crm_data.snapshot_registry",
		severity:    SeverityCritical,
		description: "snapshots marked scoring_completed with no unit rows",
		query: `SELECT COUNT(*) FROM (
		          SELECT DISTINCT snapshot_id FROM crm_data.snapshot_registry WHERE status = 'scoring_completed'
		        ) done
		        WHERE NOT EXISTS (
		          SELECT 1 FROM crm_data.pipeline_units pu WHERE pu.snapshot_id = done.snapshot_id
		        )`,
	},
}

var countedTables = []string{
	"crm_data.companies",
	"crm_data.deals",
	"crm_data.owners",
	"crm_data.deal_stage_reference",
	"crm_data.stage_mapping",
	"crm_data.pipeline_units",
	"crm_data.score_history",
	"crm_data.snapshot_registry",
}

// Run executes every check and returns the report. A failing query aborts
// the pass; a failing check only adds an issue.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("component", "integrity"))

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		TableCounts: make(map[string]int64, len(countedTables)),
	}

	for _, table := range countedTables {
		var count int64
		if err := c.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, eris.Wrapf(err, "integrity: count %s", table)
		}
		report.TableCounts[table] = count
	}

	for _, check := range countChecks {
		var count int64
		if err := c.pool.QueryRow(ctx, check.query).Scan(&count); err != nil {
			return nil, eris.Wrapf(err, "integrity: check %s", check.name)
		}
		if count == 0 {
			continue
		}
		report.Issues = append(report.Issues, Issue{
			Check:       check.name,
			Table:       check.table,
			Severity:    check.severity,
			Count:       count,
			Description: check.description,
		})
		log.Warn("integrity issue",
			zap.String("check", check.name),
			zap.String("severity", string(check.severity)),
			zap.Int64("count", count),
		)
	}

	log.Info("integrity pass finished", zap.Int("issues", len(report.Issues)))
	return report, nil
}

// Package views deploys the analytic views over the scoring tables. Views
// are Postgres-only; the SQLite backend is for local pipeline runs, not
// reporting.
package views

// View pairs a view name with its definition.
type View struct {
	Name        string
	Description string
	SQL         string
}

// All returns every analytic view in deployment order.
func All() []View {
	return []View{
		{
			Name:        "vw_current_pipeline_by_owner",
			Description: "Current pipeline scoring by sales rep from the latest snapshot",
			SQL:         currentPipelineByOwnerSQL,
		},
		{
			Name:        "vw_pipeline_comparison",
			Description: "Pipeline score comparison between the latest snapshot and the one closest to seven days prior",
			SQL:         pipelineComparisonSQL,
		},
		{
			Name:        "vw_pipeline_changes",
			Description: "Companies that appeared, changed stage, or dropped out between the latest two compared snapshots",
			SQL:         pipelineChangesSQL,
		},
		{
			Name:        "vw_pipeline_history_by_snapshot",
			Description: "Historical pipeline score trends by snapshot and owner",
			SQL:         pipelineHistoryBySnapshotSQL,
		},
	}
}

const currentPipelineByOwnerSQL = `
CREATE OR REPLACE VIEW crm_data.vw_current_pipeline_by_owner AS
WITH latest_snapshot AS (
  SELECT MAX(snapshot_id) AS snapshot_id, MAX(record_timestamp) AS record_timestamp
  FROM crm_data.pipeline_units
),
current_pipeline AS (
  SELECT
    pus.snapshot_id,
    pus.record_timestamp,
    pus.owner_id,
    o.email AS owner_email,
    CONCAT(COALESCE(o.first_name, ''), ' ', COALESCE(o.last_name, '')) AS owner_name,
    pus.company_id,
    c.company_name,
    c.company_type,
    pus.deal_id,
    d.deal_name,
    d.deal_type,
    pus.combined_stage,
    pus.stage_level,
    pus.adjusted_score,
    pus.stage_source
  FROM crm_data.pipeline_units pus
  JOIN latest_snapshot ls ON pus.snapshot_id = ls.snapshot_id
  LEFT JOIN crm_data.owners o ON pus.owner_id = o.owner_id
  LEFT JOIN crm_data.companies c ON pus.company_id = c.company_id AND pus.snapshot_id = c.snapshot_id
  LEFT JOIN crm_data.deals d ON pus.deal_id = d.deal_id AND pus.snapshot_id = d.snapshot_id
),
aggregated_pipeline AS (
  SELECT
    snapshot_id,
    record_timestamp,
    owner_id,
    owner_email,
    owner_name,
    combined_stage,
    stage_level,
    adjusted_score,
    COUNT(*) AS num_companies,
    SUM(adjusted_score) AS total_stage_score,
    STRING_AGG(DISTINCT company_type, ',' ORDER BY company_type) AS company_types_in_stage,
    STRING_AGG(DISTINCT deal_type, ',' ORDER BY deal_type) AS deal_types_in_stage,
    STRING_AGG(DISTINCT stage_source, ',' ORDER BY stage_source) AS stage_sources
  FROM current_pipeline
  GROUP BY 1, 2, 3, 4, 5, 6, 7, 8
)
SELECT
  ap.*,
  SUM(total_stage_score) OVER (PARTITION BY owner_id) AS owner_total_score,
  SUM(num_companies) OVER (PARTITION BY owner_id) AS owner_total_companies
FROM aggregated_pipeline ap
ORDER BY owner_total_score DESC, owner_id, stage_level DESC
`

const pipelineComparisonSQL = `
CREATE OR REPLACE VIEW crm_data.vw_pipeline_comparison AS
WITH latest_snapshot AS (
  SELECT MAX(snapshot_id) AS snapshot_id, MAX(record_timestamp) AS record_timestamp
  FROM crm_data.pipeline_units
),
target_previous_date AS (
  SELECT
    ls.snapshot_id AS current_snapshot_id,
    ls.record_timestamp AS current_record_timestamp,
    ls.record_timestamp::date - 7 AS target_previous_date
  FROM latest_snapshot ls
),
previous_snapshot AS (
  SELECT
    tpd.*,
    (SELECT snapshot_id
     FROM crm_data.pipeline_units
     WHERE record_timestamp::date <= tpd.target_previous_date
     ORDER BY record_timestamp DESC
     LIMIT 1) AS previous_snapshot_id,
    (SELECT record_timestamp
     FROM crm_data.pipeline_units
     WHERE record_timestamp::date <= tpd.target_previous_date
     ORDER BY record_timestamp DESC
     LIMIT 1) AS previous_record_timestamp
  FROM target_previous_date tpd
),
current_scores AS (
  SELECT
    pus.owner_id,
    o.email AS owner_email,
    CONCAT(COALESCE(o.first_name, ''), ' ', COALESCE(o.last_name, '')) AS owner_name,
    SUM(pus.adjusted_score) AS current_total_score,
    COUNT(*) AS current_total_companies
  FROM crm_data.pipeline_units pus
  JOIN previous_snapshot ps ON pus.snapshot_id = ps.current_snapshot_id
  LEFT JOIN crm_data.owners o ON pus.owner_id = o.owner_id
  GROUP BY 1, 2, 3
),
previous_scores AS (
  SELECT
    pus.owner_id,
    SUM(pus.adjusted_score) AS previous_total_score,
    COUNT(*) AS previous_total_companies
  FROM crm_data.pipeline_units pus
  JOIN previous_snapshot ps ON pus.snapshot_id = ps.previous_snapshot_id
  GROUP BY 1
)
SELECT
  cs.owner_id,
  cs.owner_email,
  cs.owner_name,
  ps.current_snapshot_id,
  ps.current_record_timestamp,
  ps.previous_snapshot_id,
  ps.previous_record_timestamp,
  ps.target_previous_date,
  COALESCE(cs.current_total_score, 0) AS current_total_score,
  COALESCE(cs.current_total_companies, 0) AS current_total_companies,
  COALESCE(prev.previous_total_score, 0) AS previous_total_score,
  COALESCE(prev.previous_total_companies, 0) AS previous_total_companies,
  COALESCE(cs.current_total_score, 0) - COALESCE(prev.previous_total_score, 0) AS score_change,
  COALESCE(cs.current_total_companies, 0) - COALESCE(prev.previous_total_companies, 0) AS company_change,
  CASE
    WHEN COALESCE(prev.previous_total_score, 0) = 0 THEN NULL
    ELSE ROUND(((COALESCE(cs.current_total_score, 0) - prev.previous_total_score) / prev.previous_total_score * 100)::numeric, 2)
  END AS score_change_percent
FROM current_scores cs
CROSS JOIN previous_snapshot ps
LEFT JOIN previous_scores prev ON cs.owner_id = prev.owner_id
ORDER BY score_change DESC, cs.owner_id
`

const pipelineChangesSQL = `
CREATE OR REPLACE VIEW crm_data.vw_pipeline_changes AS
WITH latest_snapshot AS (
  SELECT MAX(snapshot_id) AS snapshot_id, MAX(record_timestamp) AS record_timestamp
  FROM crm_data.pipeline_units
),
target_previous_date AS (
  SELECT
    ls.snapshot_id AS current_snapshot_id,
    ls.record_timestamp AS current_record_timestamp,
    ls.record_timestamp::date - 7 AS target_previous_date
  FROM latest_snapshot ls
),
previous_snapshot AS (
  SELECT
    tpd.*,
    (SELECT snapshot_id
     FROM crm_data.pipeline_units
     WHERE record_timestamp::date <= tpd.target_previous_date
     ORDER BY record_timestamp DESC
     LIMIT 1) AS previous_snapshot_id,
    (SELECT record_timestamp
     FROM crm_data.pipeline_units
     WHERE record_timestamp::date <= tpd.target_previous_date
     ORDER BY record_timestamp DESC
     LIMIT 1) AS previous_record_timestamp
  FROM target_previous_date tpd
),
current_companies AS (
  SELECT
    ps.current_snapshot_id,
    ps.current_record_timestamp,
    ps.previous_snapshot_id,
    ps.previous_record_timestamp,
    pus.company_id,
    pus.owner_id,
    o.email AS owner_email,
    CONCAT(COALESCE(o.first_name, ''), ' ', COALESCE(o.last_name, '')) AS owner_name,
    c.company_name,
    c.company_type,
    pus.deal_id,
    d.deal_name,
    d.deal_type,
    pus.lifecycle_stage AS current_lifecycle_stage,
    pus.lead_status AS current_lead_status,
    pus.deal_stage AS current_deal_stage,
    pus.combined_stage AS current_combined_stage,
    pus.stage_level AS current_stage_level,
    pus.adjusted_score AS current_adjusted_score
  FROM crm_data.pipeline_units pus
  CROSS JOIN previous_snapshot ps
  LEFT JOIN crm_data.owners o ON pus.owner_id = o.owner_id
  LEFT JOIN crm_data.companies c ON pus.company_id = c.company_id AND pus.snapshot_id = c.snapshot_id
  LEFT JOIN crm_data.deals d ON pus.deal_id = d.deal_id AND pus.snapshot_id = d.snapshot_id
  WHERE pus.snapshot_id = ps.current_snapshot_id
),
previous_companies AS (
  SELECT
    pus.company_id,
    pus.owner_id,
    c.company_type AS previous_company_type,
    pus.deal_id AS previous_deal_id,
    d.deal_type AS previous_deal_type,
    pus.lifecycle_stage AS previous_lifecycle_stage,
    pus.lead_status AS previous_lead_status,
    pus.deal_stage AS previous_deal_stage,
    pus.combined_stage AS previous_combined_stage,
    pus.stage_level AS previous_stage_level,
    pus.adjusted_score AS previous_adjusted_score
  FROM crm_data.pipeline_units pus
  CROSS JOIN previous_snapshot ps
  LEFT JOIN crm_data.companies c ON pus.company_id = c.company_id AND pus.snapshot_id = c.snapshot_id
  LEFT JOIN crm_data.deals d ON pus.deal_id = d.deal_id AND pus.snapshot_id = d.snapshot_id
  WHERE pus.snapshot_id = ps.previous_snapshot_id
),
company_changes AS (
  SELECT
    cc.*,
    pc.previous_company_type,
    pc.previous_deal_id,
    pc.previous_deal_type,
    pc.previous_lifecycle_stage,
    pc.previous_lead_status,
    pc.previous_deal_stage,
    pc.previous_combined_stage,
    pc.previous_stage_level,
    pc.previous_adjusted_score,
    CASE
      WHEN pc.company_id IS NULL THEN 'NEW'
      WHEN cc.company_id IS NULL THEN 'DELETED'
      WHEN (cc.current_lifecycle_stage != pc.previous_lifecycle_stage OR
            COALESCE(cc.current_lead_status, '') != COALESCE(pc.previous_lead_status, '') OR
            COALESCE(cc.current_deal_stage, '') != COALESCE(pc.previous_deal_stage, '')) THEN 'CHANGED'
      ELSE 'UNCHANGED'
    END AS change_type,
    COALESCE(cc.current_adjusted_score, 0) - COALESCE(pc.previous_adjusted_score, 0) AS score_impact
  FROM current_companies cc
  FULL OUTER JOIN previous_companies pc ON cc.company_id = pc.company_id
)
SELECT * FROM (
  SELECT
    current_snapshot_id,
    current_record_timestamp,
    previous_snapshot_id,
    previous_record_timestamp,
    company_id,
    owner_id,
    owner_email,
    owner_name,
    company_name,
    company_type,
    deal_id,
    deal_name,
    deal_type,
    current_lifecycle_stage,
    current_lead_status,
    current_deal_stage,
    current_combined_stage,
    current_stage_level,
    current_adjusted_score,
    previous_company_type,
    previous_deal_id,
    previous_deal_type,
    previous_lifecycle_stage,
    previous_lead_status,
    previous_deal_stage,
    previous_combined_stage,
    previous_stage_level,
    previous_adjusted_score,
    change_type,
    score_impact
  FROM company_changes
  WHERE change_type IN ('NEW', 'CHANGED')

  UNION ALL

  SELECT
    cc.current_snapshot_id,
    cc.current_record_timestamp,
    cc.previous_snapshot_id,
    cc.previous_record_timestamp,
    cc.company_id,
    cc.owner_id,
    cc.owner_email,
    cc.owner_name,
    cc.company_name,
    cc.previous_company_type AS company_type,
    cc.previous_deal_id AS deal_id,
    NULL AS deal_name,
    cc.previous_deal_type AS deal_type,
    'disqualified' AS current_lifecycle_stage,
    NULL AS current_lead_status,
    NULL AS current_deal_stage,
    sm.combined_stage AS current_combined_stage,
    sm.stage_level AS current_stage_level,
    sm.adjusted_score AS current_adjusted_score,
    cc.previous_company_type,
    cc.previous_deal_id,
    cc.previous_deal_type,
    cc.previous_lifecycle_stage,
    cc.previous_lead_status,
    cc.previous_deal_stage,
    cc.previous_combined_stage,
    cc.previous_stage_level,
    cc.previous_adjusted_score,
    'DELETED' AS change_type,
    sm.adjusted_score - COALESCE(cc.previous_adjusted_score, 0) AS score_impact
  FROM company_changes cc
  CROSS JOIN crm_data.stage_mapping sm
  WHERE cc.change_type = 'DELETED'
    AND sm.lifecycle_stage = 'disqualified'
    AND sm.lead_status IS NULL
    AND sm.deal_stage IS NULL
) changes
ORDER BY ABS(score_impact) DESC, change_type, owner_id, company_id
`

const pipelineHistoryBySnapshotSQL = `
CREATE OR REPLACE VIEW crm_data.vw_pipeline_history_by_snapshot AS
WITH owner_snapshot_scores AS (
  SELECT
    pus.snapshot_id,
    pus.record_timestamp,
    pus.owner_id,
    o.email AS owner_email,
    CONCAT(COALESCE(o.first_name, ''), ' ', COALESCE(o.last_name, '')) AS owner_name,
    COUNT(*) AS total_companies,
    SUM(pus.adjusted_score) AS total_score,
    SUM(CASE WHEN pus.stage_level = -1 THEN pus.adjusted_score ELSE 0 END) AS disqualified_score,
    SUM(CASE WHEN pus.stage_level = 0 THEN pus.adjusted_score ELSE 0 END) AS nurturing_score,
    SUM(CASE WHEN pus.stage_level BETWEEN 1 AND 3 THEN pus.adjusted_score ELSE 0 END) AS lead_score,
    SUM(CASE WHEN pus.stage_level = 4 THEN pus.adjusted_score ELSE 0 END) AS sql_score,
    SUM(CASE WHEN pus.stage_level BETWEEN 5 AND 8 THEN pus.adjusted_score ELSE 0 END) AS opportunity_score,
    SUM(CASE WHEN pus.stage_level = 9 THEN pus.adjusted_score ELSE 0 END) AS closed_won_score,
    SUM(CASE WHEN pus.stage_level = -1 THEN 1 ELSE 0 END) AS disqualified_count,
    SUM(CASE WHEN pus.stage_level = 0 THEN 1 ELSE 0 END) AS nurturing_count,
    SUM(CASE WHEN pus.stage_level BETWEEN 1 AND 3 THEN 1 ELSE 0 END) AS lead_count,
    SUM(CASE WHEN pus.stage_level = 4 THEN 1 ELSE 0 END) AS sql_count,
    SUM(CASE WHEN pus.stage_level BETWEEN 5 AND 8 THEN 1 ELSE 0 END) AS opportunity_count,
    SUM(CASE WHEN pus.stage_level = 9 THEN 1 ELSE 0 END) AS closed_won_count
  FROM crm_data.pipeline_units pus
  LEFT JOIN crm_data.owners o ON pus.owner_id = o.owner_id
  GROUP BY 1, 2, 3, 4, 5
),
snapshot_totals AS (
  SELECT
    snapshot_id,
    record_timestamp,
    COUNT(DISTINCT owner_id) AS active_owners,
    SUM(total_companies) AS total_companies_all_owners,
    SUM(total_score) AS total_score_all_owners,
    AVG(total_score) AS avg_score_per_owner
  FROM owner_snapshot_scores
  GROUP BY 1, 2
)
SELECT
  oss.*,
  st.active_owners,
  st.total_companies_all_owners,
  st.total_score_all_owners,
  st.avg_score_per_owner,
  ROW_NUMBER() OVER (PARTITION BY oss.snapshot_id ORDER BY oss.total_score DESC) AS owner_rank_in_snapshot,
  LAG(oss.total_score) OVER (PARTITION BY oss.owner_id ORDER BY oss.record_timestamp) AS previous_total_score,
  LAG(oss.total_companies) OVER (PARTITION BY oss.owner_id ORDER BY oss.record_timestamp) AS previous_total_companies,
  LAG(oss.record_timestamp) OVER (PARTITION BY oss.owner_id ORDER BY oss.record_timestamp) AS previous_record_timestamp,
  oss.total_score - LAG(oss.total_score) OVER (PARTITION BY oss.owner_id ORDER BY oss.record_timestamp) AS score_change_from_previous,
  oss.total_companies - LAG(oss.total_companies) OVER (PARTITION BY oss.owner_id ORDER BY oss.record_timestamp) AS company_change_from_previous
FROM owner_snapshot_scores oss
JOIN snapshot_totals st ON oss.snapshot_id = st.snapshot_id
ORDER BY oss.record_timestamp DESC, oss.total_score DESC, oss.owner_id
`

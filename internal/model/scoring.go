package model

import "time"

// StageSource records whether a unit's combined stage was derived from
// company-only data or from an associated open deal.
type StageSource string

const (
	SourceCompany StageSource = "company"
	SourceDeal    StageSource = "deal"
)

// StageMappingEntry maps a (lifecycle_stage, lead_status, deal_stage) triple to
// a combined stage with its ordinal level and numeric score. The unit scorer
// joins on CombinedStage alone, so duplicate combined stages with conflicting
// level or score are a data error.
type StageMappingEntry struct {
	LifecycleStage  string    `json:"lifecycle_stage"`
	LeadStatus      *string   `json:"lead_status,omitempty"`
	DealStage       *string   `json:"deal_stage,omitempty"`
	CombinedStage   string    `json:"combined_stage"`
	StageLevel      int       `json:"stage_level"`
	AdjustedScore   float64   `json:"adjusted_score"`
	RecordTimestamp time.Time `json:"record_timestamp"`
}

// PipelineUnit is one scored business unit: a company alone, or a
// company+deal pair. A company with N open deals yields N units; a company
// with none yields exactly one with a nil DealID. Units are immutable once
// written — a rescore replaces the whole snapshot partition.
//
// StageLevel and AdjustedScore are nil when the combined stage has no entry
// in the stage mapping table. That is not an error; it is surfaced as an
// unmapped-stage counter by the scorer.
type PipelineUnit struct {
	SnapshotID      string      `json:"snapshot_id"`
	CompanyID       string      `json:"company_id"`
	DealID          *string     `json:"deal_id,omitempty"`
	OwnerID         string      `json:"owner_id"`
	LifecycleStage  string      `json:"lifecycle_stage"`
	LeadStatus      *string     `json:"lead_status,omitempty"`
	DealStage       *string     `json:"deal_stage,omitempty"`
	CombinedStage   string      `json:"combined_stage"`
	StageLevel      *int        `json:"stage_level,omitempty"`
	AdjustedScore   *float64    `json:"adjusted_score,omitempty"`
	StageSource     StageSource `json:"stage_source"`
	RecordTimestamp time.Time   `json:"record_timestamp"`
}

// ScoreHistoryEntry is the longitudinal rollup keyed by
// (snapshot_id, owner_id, combined_stage).
type ScoreHistoryEntry struct {
	SnapshotID        string    `json:"snapshot_id"`
	OwnerID           string    `json:"owner_id"`
	CombinedStage     string    `json:"combined_stage"`
	NumCompanies      int       `json:"num_companies"`
	TotalScore        float64   `json:"total_score"`
	SnapshotTimestamp time.Time `json:"snapshot_timestamp"`
}

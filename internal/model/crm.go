// Package model defines the record schemas shared across the scoring pipeline:
// the raw CRM rows written by the ingest collaborator, the derived scoring rows,
// and the payloads exchanged at the trigger boundary.
package model

import "time"

// Company is a raw CRM company row as written by the ingest pipeline,
// tagged with the snapshot it belongs to.
type Company struct {
	CompanyID       string    `json:"company_id"`
	CompanyName     string    `json:"company_name"`
	LifecycleStage  string    `json:"lifecycle_stage"`
	LeadStatus      *string   `json:"lead_status,omitempty"`
	OwnerID         string    `json:"owner_id"`
	CompanyType     string    `json:"company_type,omitempty"`
	SnapshotID      string    `json:"snapshot_id"`
	RecordTimestamp time.Time `json:"record_timestamp"`
}

// Deal is a raw CRM deal row. AssociatedCompanyID links it to a Company
// within the same snapshot; the link is not enforced by the warehouse.
type Deal struct {
	DealID              string    `json:"deal_id"`
	DealName            string    `json:"deal_name"`
	DealStage           string    `json:"deal_stage"`
	DealType            string    `json:"deal_type,omitempty"`
	Amount              float64   `json:"amount"`
	OwnerID             string    `json:"owner_id"`
	AssociatedCompanyID string    `json:"associated_company_id"`
	SnapshotID          string    `json:"snapshot_id"`
	RecordTimestamp     time.Time `json:"record_timestamp"`
}

// Owner is a CRM owner (sales rep) reference row, used only for display
// enrichment in the analytic views.
type Owner struct {
	OwnerID   string `json:"owner_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Active    bool   `json:"active"`
}

// DealStageRef is a deal-stage reference row. IsClosed drives the open-deal
// filter in the unit scorer: deals in a closed stage never join to companies.
type DealStageRef struct {
	PipelineID    string  `json:"pipeline_id"`
	PipelineLabel string  `json:"pipeline_label"`
	StageID       string  `json:"stage_id"`
	StageLabel    string  `json:"stage_label"`
	IsClosed      bool    `json:"is_closed"`
	Probability   float64 `json:"probability"`
	DisplayOrder  int     `json:"display_order"`
}

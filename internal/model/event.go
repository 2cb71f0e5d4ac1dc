package model

// SnapshotEvent is the payload delivered by the ingest-completion trigger.
// The table count maps are informational; only SnapshotID drives scoring.
type SnapshotEvent struct {
	SnapshotID      string         `json:"snapshot_id"`
	DataTables      map[string]int `json:"data_tables,omitempty"`
	ReferenceTables map[string]int `json:"reference_tables,omitempty"`
}

// ResultStatus is the outcome of a single scoring run.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// ScoreResult is the structured result returned by the scoring entrypoint for
// one snapshot. On failure, Status is ResultError and Error carries the
// message; counts reflect whatever steps completed.
type ScoreResult struct {
	Status                ResultStatus `json:"status"`
	SnapshotID            string       `json:"snapshot_id"`
	ProcessedRecords      int64        `json:"processed_records"`
	PipelineUnits         int64        `json:"pipeline_units"`
	ScoreHistory          int64        `json:"score_history"`
	StageMapping          int          `json:"stage_mapping"`
	ProcessingTimeSeconds float64      `json:"processing_time_seconds"`
	Error                 string       `json:"error,omitempty"`
}

// SnapshotFailure pairs a failed snapshot with its error message so the
// operator can retry just the failed subset.
type SnapshotFailure struct {
	SnapshotID string `json:"snapshot_id"`
	Error      string `json:"error"`
}

// RescoreSummary aggregates a bulk rescore run across all discovered
// snapshots.
type RescoreSummary struct {
	Discovered            int               `json:"discovered"`
	Succeeded             int               `json:"succeeded"`
	Failed                int               `json:"failed"`
	Failures              []SnapshotFailure `json:"failures,omitempty"`
	TotalDurationSeconds  float64           `json:"total_duration_seconds"`
	AvgSecondsPerSnapshot float64           `json:"avg_seconds_per_snapshot"`
}

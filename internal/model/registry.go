package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// RegistryTrigger identifies which subsystem wrote a registry row.
type RegistryTrigger string

const (
	TriggerManual  RegistryTrigger = "manual"
	TriggerIngest  RegistryTrigger = "ingest"
	TriggerScoring RegistryTrigger = "scoring"
)

// RegistryStatus is the closed set of lifecycle events a registry row can
// record. The warehouse column stays TEXT; typing the value in code removes
// the typo class of bugs the old free-text field allowed.
type RegistryStatus string

const (
	StatusIngestStarted    RegistryStatus = "ingest_started"
	StatusIngestCompleted  RegistryStatus = "ingest_completed"
	StatusIngestFailed     RegistryStatus = "ingest_failed"
	StatusScoringStarted   RegistryStatus = "scoring_started"
	StatusScoringCompleted RegistryStatus = "scoring_completed"
	StatusScoringFailed    RegistryStatus = "scoring_failed"
)

// ParseRegistryStatus converts a stored status string into a RegistryStatus.
func ParseRegistryStatus(s string) (RegistryStatus, error) {
	switch RegistryStatus(s) {
	case StatusIngestStarted, StatusIngestCompleted, StatusIngestFailed,
		StatusScoringStarted, StatusScoringCompleted, StatusScoringFailed:
		return RegistryStatus(s), nil
	default:
		return "", eris.Errorf("unknown registry status: %q", s)
	}
}

// RegistryEntry is one append-only audit row in the snapshot registry.
// Multiple rows share a snapshot_id; current state is the most recent row.
type RegistryEntry struct {
	SnapshotID      string          `json:"snapshot_id"`
	RecordTimestamp time.Time       `json:"record_timestamp"`
	TriggeredBy     RegistryTrigger `json:"triggered_by"`
	Status          RegistryStatus  `json:"status"`
	Notes           string          `json:"notes,omitempty"`
}

package scoring

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pipescore/internal/model"
)

func strp(s string) *string { return &s }

// DefaultEntries returns the reference scoring rubric, one row per combined
// stage plus the lifecycle variants that collapse into it. recordTimestamp
// stamps every entry so a reload is traceable to its run.
func DefaultEntries(recordTimestamp time.Time) []model.StageMappingEntry {
	mk := func(lifecycle string, leadStatus, dealStage *string, combined string, level int, score float64) model.StageMappingEntry {
		return model.StageMappingEntry{
			LifecycleStage:  lifecycle,
			LeadStatus:      leadStatus,
			DealStage:       dealStage,
			CombinedStage:   combined,
			StageLevel:      level,
			AdjustedScore:   score,
			RecordTimestamp: recordTimestamp,
		}
	}

	return []model.StageMappingEntry{
		mk("lead", strp("new"), nil, "lead/new", 1, 1.0),
		mk("lead", strp("restart"), nil, "lead/restart", 1, 1.0),
		mk("lead", strp("attempted_to_contact"), nil, "lead/attempted_to_contact", 2, 1.5),
		mk("lead", strp("connected"), nil, "lead/connected", 3, 2.0),
		mk("lead", strp("nurturing"), nil, "lead/nurturing", 0, 2.0),
		mk("salesqualifiedlead", nil, nil, "salesqualifiedlead", 4, 6.0),
		mk("opportunity", nil, nil, "opportunity/missing", 5, 7.0),
		mk("opportunity", nil, strp("appointmentscheduled"), "opportunity/appointmentscheduled", 5, 8.0),
		mk("opportunity", nil, strp("qualifiedtobuy"), "opportunity/qualifiedtobuy", 6, 10.0),
		mk("opportunity", nil, strp("presentationscheduled"), "opportunity/presentationscheduled", 7, 12.0),
		mk("opportunity", nil, strp("decisionmakerboughtin"), "opportunity/decisionmakerboughtin", 8, 14.0),
		mk("closed-won", nil, strp("contractsent"), "closed-won", 9, 30.0),
		mk("disqualified", nil, nil, "disqualified", -1, 0.0),
		mk("customer", nil, nil, "customer", 10, 50.0),
		mk("evangelist", nil, nil, "evangelist", 10, 60.0),
	}
}

// Mapping is an immutable, validated snapshot of the scoring rubric keyed by
// combined stage. A scoring run builds one Mapping up front and every lookup
// during that run goes through it, so a concurrent rubric reload cannot make
// two units in the same snapshot score against different tables.
type Mapping struct {
	entries []model.StageMappingEntry
	byStage map[string]model.StageMappingEntry
}

// NewMapping validates entries and freezes them into a Mapping. The input
// slice is copied; callers may reuse it.
func NewMapping(entries []model.StageMappingEntry) (*Mapping, error) {
	if len(entries) == 0 {
		return nil, eris.New("scoring: mapping: no entries")
	}

	byStage := make(map[string]model.StageMappingEntry, len(entries))
	disqualified := 0
	for _, e := range entries {
		if e.CombinedStage == "" {
			return nil, eris.Errorf("scoring: mapping: entry for lifecycle %q has empty combined stage", e.LifecycleStage)
		}
		if prev, ok := byStage[e.CombinedStage]; ok {
			if prev.StageLevel != e.StageLevel || prev.AdjustedScore != e.AdjustedScore {
				return nil, eris.Errorf(
					"scoring: mapping: conflicting entries for combined stage %q (level %d score %.1f vs level %d score %.1f)",
					e.CombinedStage, prev.StageLevel, prev.AdjustedScore, e.StageLevel, e.AdjustedScore,
				)
			}
			continue
		}
		byStage[e.CombinedStage] = e
		if e.CombinedStage == "disqualified" {
			disqualified++
		}
	}

	if disqualified != 1 {
		return nil, eris.Errorf("scoring: mapping: expected exactly one disqualified entry, found %d", disqualified)
	}

	frozen := make([]model.StageMappingEntry, len(entries))
	copy(frozen, entries)

	return &Mapping{entries: frozen, byStage: byStage}, nil
}

// Lookup returns the stage level and adjusted score for a combined stage.
// ok is false for stages outside the rubric (including "unmapped").
func (m *Mapping) Lookup(combinedStage string) (level int, score float64, ok bool) {
	e, ok := m.byStage[combinedStage]
	if !ok {
		return 0, 0, false
	}
	return e.StageLevel, e.AdjustedScore, true
}

// Disqualified returns the rubric entry for the disqualified stage.
func (m *Mapping) Disqualified() model.StageMappingEntry {
	return m.byStage["disqualified"]
}

// Entries returns a copy of the rubric rows in their original order.
func (m *Mapping) Entries() []model.StageMappingEntry {
	out := make([]model.StageMappingEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of rubric rows.
func (m *Mapping) Len() int {
	return len(m.entries)
}

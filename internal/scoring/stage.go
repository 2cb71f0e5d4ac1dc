// Package scoring implements the pipeline scoring core: combined-stage
// derivation, the stage mapping rubric, per-snapshot unit scoring, and the
// owner/stage history rollup.
package scoring

import (
	"strings"

	"github.com/sells-group/pipescore/internal/model"
)

// CombinedStageUnmapped is the explicit fallback bucket for lifecycle stages
// outside the known set. Units landing here score as NULL rather than failing.
const CombinedStageUnmapped = "unmapped"

// combinedStageMissingDeal is the combined stage for an opportunity company
// with no open deal attached.
const combinedStageMissingDeal = "opportunity/missing"

// CombineStage derives the canonical combined stage for one business unit.
//
// leadStatus and dealStage are nil when absent. dealStage must already be
// filtered for closed deals: a company whose only deals are closed is scored
// as if it had none. The rules are ordered and the first match wins:
//
//  1. "lead"         -> "lead/" + lead status (empty suffix when nil)
//  2. "opportunity"  -> "opportunity/" + deal stage, or "opportunity/missing"
//  3. "salesqualifiedlead", "closed-won", "disqualified" -> verbatim
//  4. anything else  -> "unmapped"
//
// The function is pure and total: every input produces exactly one stage.
func CombineStage(lifecycleStage string, leadStatus, dealStage *string) (string, model.StageSource) {
	source := model.SourceCompany
	if dealStage != nil {
		source = model.SourceDeal
	}

	switch lifecycleStage {
	case "lead":
		suffix := ""
		if leadStatus != nil {
			suffix = *leadStatus
		}
		return "lead/" + suffix, source
	case "opportunity":
		if dealStage == nil || *dealStage == "" {
			return combinedStageMissingDeal, source
		}
		return "opportunity/" + *dealStage, source
	case "salesqualifiedlead", "sales qualified lead": // legacy label variant
		return "salesqualifiedlead", source
	case "closed-won", "disqualified":
		return lifecycleStage, source
	default:
		return CombinedStageUnmapped, source
	}
}

// NormalizeLifecycleStage lowercases and trims a raw CRM lifecycle stage.
func NormalizeLifecycleStage(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeLeadStatus lowercases a raw lead status and replaces spaces with
// underscores, matching the ingest pipeline's normalization. Returns nil for
// nil or blank input.
func NormalizeLeadStatus(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	v = strings.ReplaceAll(v, " ", "_")
	return &v
}

// NormalizeDealStage lowercases and trims a raw deal stage identifier.
func NormalizeDealStage(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

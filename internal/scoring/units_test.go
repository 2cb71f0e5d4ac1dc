package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipescore/internal/model"
)

func testMapping(t *testing.T) *Mapping {
	t.Helper()
	m, err := NewMapping(DefaultEntries(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return m
}

func company(id, owner, lifecycle string, leadStatus *string) model.Company {
	return model.Company{
		CompanyID:      id,
		OwnerID:        owner,
		LifecycleStage: lifecycle,
		LeadStatus:     leadStatus,
	}
}

func deal(id, companyID, stage string) model.Deal {
	return model.Deal{
		DealID:              id,
		AssociatedCompanyID: companyID,
		DealStage:           stage,
	}
}

func TestBuildUnitsGrain(t *testing.T) {
	// Unit grain: companies without open deals contribute one unit each,
	// companies with N open deals contribute N.
	companies := []model.Company{
		company("c1", "o1", "lead", sp("new")),
		company("c2", "o1", "opportunity", nil),
		company("c3", "o2", "opportunity", nil),
	}
	deals := []model.Deal{
		deal("d1", "c3", "qualifiedtobuy"),
		deal("d2", "c3", "presentationscheduled"),
	}

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	units, stats := BuildUnits("snap-1", companies, deals, nil, testMapping(t), now)

	require.Len(t, units, 4) // c1, c2 (no deals), c3 twice
	assert.Equal(t, 3, stats.Companies)
	assert.Equal(t, 2, stats.OpenDeals)
	assert.Equal(t, 4, stats.Units)
	assert.Equal(t, 0, stats.UnmappedUnits)

	byStage := map[string]int{}
	for _, u := range units {
		assert.Equal(t, "snap-1", u.SnapshotID)
		assert.Equal(t, now, u.RecordTimestamp)
		byStage[u.CombinedStage]++
	}
	assert.Equal(t, 1, byStage["lead/new"])
	assert.Equal(t, 1, byStage["opportunity/missing"])
	assert.Equal(t, 1, byStage["opportunity/qualifiedtobuy"])
	assert.Equal(t, 1, byStage["opportunity/presentationscheduled"])
}

func TestBuildUnitsClosedDealsExcluded(t *testing.T) {
	companies := []model.Company{
		company("c1", "o1", "opportunity", nil),
	}
	deals := []model.Deal{
		deal("d1", "c1", "contractsent"),
		deal("d2", "c1", "qualifiedtobuy"),
	}
	closed := map[string]bool{"contractsent": true}

	units, stats := BuildUnits("snap-1", companies, deals, closed, testMapping(t), time.Now())

	require.Len(t, units, 1)
	assert.Equal(t, "opportunity/qualifiedtobuy", units[0].CombinedStage)
	assert.Equal(t, 1, stats.ClosedDealsExcluded)
	assert.Equal(t, 1, stats.OpenDeals)
}

func TestBuildUnitsAllDealsClosedScoresAsCompanyOnly(t *testing.T) {
	companies := []model.Company{
		company("c1", "o1", "opportunity", nil),
	}
	deals := []model.Deal{
		deal("d1", "c1", "contractsent"),
	}
	closed := map[string]bool{"contractsent": true}

	units, _ := BuildUnits("snap-1", companies, deals, closed, testMapping(t), time.Now())

	require.Len(t, units, 1)
	assert.Nil(t, units[0].DealID)
	assert.Equal(t, "opportunity/missing", units[0].CombinedStage)
	assert.Equal(t, model.SourceCompany, units[0].StageSource)
}

func TestBuildUnitsOrphanDealsDropped(t *testing.T) {
	companies := []model.Company{
		company("c1", "o1", "lead", sp("new")),
	}
	deals := []model.Deal{
		deal("d1", "ghost", "qualifiedtobuy"),
	}

	units, stats := BuildUnits("snap-1", companies, deals, nil, testMapping(t), time.Now())

	require.Len(t, units, 1)
	assert.Equal(t, 1, stats.OrphanDeals)
	assert.Equal(t, 0, stats.OpenDeals)
}

func TestBuildUnitsUnmappedStageKeepsNilScore(t *testing.T) {
	companies := []model.Company{
		company("c1", "o1", "subscriber", nil),
		company("c2", "o1", "lead", sp("weird_status")),
	}

	units, stats := BuildUnits("snap-1", companies, nil, nil, testMapping(t), time.Now())

	require.Len(t, units, 2)
	assert.Equal(t, 2, stats.UnmappedUnits)
	for _, u := range units {
		assert.Nil(t, u.StageLevel)
		assert.Nil(t, u.AdjustedScore)
	}
	assert.Equal(t, "unmapped", units[0].CombinedStage)
	assert.Equal(t, "lead/weird_status", units[1].CombinedStage)
}

func TestBuildUnitsNormalizesInputs(t *testing.T) {
	companies := []model.Company{
		company("c1", "o1", "  Lead ", sp("Attempted To Contact")),
		company("c2", "o1", "OPPORTUNITY", nil),
	}
	deals := []model.Deal{
		deal("d1", "c2", " QualifiedToBuy "),
	}

	units, stats := BuildUnits("snap-1", companies, deals, nil, testMapping(t), time.Now())

	require.Len(t, units, 2)
	assert.Equal(t, 0, stats.UnmappedUnits)
	assert.Equal(t, "lead/attempted_to_contact", units[0].CombinedStage)
	assert.Equal(t, "opportunity/qualifiedtobuy", units[1].CombinedStage)
	require.NotNil(t, units[1].DealStage)
	assert.Equal(t, "qualifiedtobuy", *units[1].DealStage)
}

func TestBuildUnitsStageSource(t *testing.T) {
	companies := []model.Company{
		company("c1", "o1", "opportunity", nil),
		company("c2", "o1", "lead", sp("new")),
	}
	deals := []model.Deal{
		deal("d1", "c1", "qualifiedtobuy"),
	}

	units, _ := BuildUnits("snap-1", companies, deals, nil, testMapping(t), time.Now())

	require.Len(t, units, 2)
	assert.Equal(t, model.SourceDeal, units[0].StageSource)
	require.NotNil(t, units[0].DealID)
	assert.Equal(t, "d1", *units[0].DealID)
	assert.Equal(t, model.SourceCompany, units[1].StageSource)
	assert.Nil(t, units[1].DealID)
}

func TestBuildUnitsDeterministicOrder(t *testing.T) {
	companies := []model.Company{
		company("c2", "o1", "lead", sp("new")),
		company("c1", "o1", "opportunity", nil),
	}
	deals := []model.Deal{
		deal("d2", "c1", "qualifiedtobuy"),
		deal("d1", "c1", "appointmentscheduled"),
	}

	units, _ := BuildUnits("snap-1", companies, deals, nil, testMapping(t), time.Now())

	require.Len(t, units, 3)
	assert.Equal(t, "c1", units[0].CompanyID)
	assert.Equal(t, "d1", *units[0].DealID)
	assert.Equal(t, "c1", units[1].CompanyID)
	assert.Equal(t, "d2", *units[1].DealID)
	assert.Equal(t, "c2", units[2].CompanyID)
}

func TestBuildUnitsEmptyCompanies(t *testing.T) {
	units, stats := BuildUnits("snap-1", nil, nil, nil, testMapping(t), time.Now())
	assert.Empty(t, units)
	assert.Equal(t, 0, stats.Units)
}

package impute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldpanel/internal/panel"
)

const indicator = "GDP per capita"

func threeCountries(t *testing.T) *panel.Table {
	t.Helper()
	tbl := panel.New(indicator)
	tbl.AddRow("A", panel.Attributes{Name: "A", Region: "Europe", IncomeGroup: "High"})
	tbl.AddRow("B", panel.Attributes{Name: "B", Region: "Europe", IncomeGroup: "High"})
	tbl.AddRow("C", panel.Attributes{Name: "C", Region: "Asia", IncomeGroup: "Low"})
	require.NoError(t, tbl.Set("A", indicator, 10, panel.Observed("WB", 2016)))
	return tbl
}

func TestCascade_EndToEnd(t *testing.T) {
	out, report := Run(threeCountries(t), Cascade())

	assert.Equal(t, panel.Cell{Value: 10, Source: panel.Observed("WB", 2016), Valid: true}, out.Cell("A", indicator))
	assert.Equal(t, panel.Cell{Value: 10, Source: panel.SourceRegionIncome, Valid: true}, out.Cell("B", indicator))
	assert.Equal(t, panel.Cell{Value: 10, Source: panel.SourceGlobal, Valid: true}, out.Cell("C", indicator))
	assert.Empty(t, report.Exhausted)
	require.Len(t, report.Stages, 4)
	assert.Equal(t, 0, report.Stages[3].MissingAfter)
}

func TestGroupPartitionMean(t *testing.T) {
	tbl := panel.New(indicator)
	tbl.AddRow("A", panel.Attributes{Region: "Europe", IncomeGroup: "High"})
	tbl.AddRow("B", panel.Attributes{Region: "Europe", IncomeGroup: "High"})
	tbl.AddRow("C", panel.Attributes{Region: "Europe", IncomeGroup: "High"})
	tbl.AddRow("D", panel.Attributes{Region: "Europe", IncomeGroup: "Low"})
	require.NoError(t, tbl.Set("A", indicator, 10, panel.Observed("WB", 2016)))
	require.NoError(t, tbl.Set("B", indicator, 20, panel.Observed("WB", 2016)))
	require.NoError(t, tbl.Set("D", indicator, 1000, panel.Observed("WB", 2016)))

	out, report := ByRegionAndIncome().Apply(tbl)

	assert.InDelta(t, 15.0, out.Cell("C", indicator).Value, 1e-9)
	assert.Equal(t, panel.SourceRegionIncome, out.Cell("C", indicator).Source)
	assert.Equal(t, 1, report.Filled)
}

func TestMonotonicity(t *testing.T) {
	tbl := threeCountries(t)
	before := tbl.Cell("A", indicator)

	first, _ := ByIncome().Apply(tbl)
	second, _ := Global().Apply(first)

	assert.Equal(t, before, first.Cell("A", indicator))
	assert.Equal(t, before, second.Cell("A", indicator))
	// B was filled by the income stage and the global stage must not relabel it
	assert.Equal(t, panel.SourceIncome, second.Cell("B", indicator).Source)
}

func TestCoverageNonDecreasing(t *testing.T) {
	tbl := panel.New("X", "Y")
	tbl.AddRow("A", panel.Attributes{Region: "R1", IncomeGroup: "I1"})
	tbl.AddRow("B", panel.Attributes{Region: "R1", IncomeGroup: "I2"})
	tbl.AddRow("C", panel.Attributes{Region: "R2", IncomeGroup: "I1"})
	tbl.AddRow("D", panel.Attributes{})
	require.NoError(t, tbl.Set("A", "X", 1, panel.Observed("WB", 2016)))
	require.NoError(t, tbl.Set("C", "Y", 2, panel.Observed("WB", 2016)))

	_, report := Run(tbl, Cascade())
	for _, stage := range report.Stages {
		assert.LessOrEqual(t, stage.MissingAfter, stage.MissingBefore, stage.Stage)
	}
}

func TestEmptyPartitionFallsThrough(t *testing.T) {
	tbl := panel.New(indicator)
	tbl.AddRow("A", panel.Attributes{Region: "Europe", IncomeGroup: "High"})
	tbl.AddRow("B", panel.Attributes{Region: "Europe", IncomeGroup: "Low"})
	require.NoError(t, tbl.Set("B", indicator, 4, panel.Observed("WB", 2016)))

	out, report := ByRegionAndIncome().Apply(tbl)
	assert.False(t, out.Cell("A", indicator).Valid)
	assert.Equal(t, 0, report.Filled)

	out, _ = ByRegion().Apply(out)
	assert.Equal(t, panel.Cell{Value: 4, Source: panel.SourceRegion, Valid: true}, out.Cell("A", indicator))
}

func TestRowsWithoutGroupSkipPartitionedStages(t *testing.T) {
	tbl := panel.New(indicator)
	tbl.AddRow("A", panel.Attributes{Region: "Europe", IncomeGroup: "High"})
	tbl.AddRow("B", panel.Attributes{})
	require.NoError(t, tbl.Set("A", indicator, 7, panel.Observed("WB", 2016)))

	out, _ := ByRegion().Apply(tbl)
	assert.False(t, out.Cell("B", indicator).Valid)

	out, _ = Global().Apply(out)
	assert.Equal(t, panel.SourceGlobal, out.Cell("B", indicator).Source)
}

func TestExhaustedColumnReported(t *testing.T) {
	tbl := panel.New(indicator, "Empty")
	tbl.AddRow("A", panel.Attributes{Region: "Europe", IncomeGroup: "High"})
	require.NoError(t, tbl.Set("A", indicator, 1, panel.Observed("WB", 2016)))

	out, report := Run(tbl, Cascade())
	assert.Equal(t, []string{"Empty"}, report.Exhausted)
	assert.False(t, out.Cell("A", "Empty").Valid)
}

package export

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"worldpanel/internal/model"
	"worldpanel/internal/panel"
	"worldpanel/internal/trade"
)

func TestSheetName(t *testing.T) {
	long := "Access to electricity (% of population) in rural areas"
	assert.Equal(t, 31, len([]rune(SheetName(long))))
	assert.Equal(t, "Access to electricity (% of pop", SheetName(long))
	assert.Equal(t, "CO2 _ GDP", SheetName("CO2 / GDP"))
	assert.Equal(t, "Sheet", SheetName("  "))
}

func TestUniqueName_TruncationCollision(t *testing.T) {
	w := NewWorkbook()
	a := w.uniqueName("Population ages 15-19, male (% of male population)")
	b := w.uniqueName("Population ages 15-19, male (% of female population)")

	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len([]rune(b)), MaxSheetName)
	assert.True(t, strings.HasSuffix(b, " (2)"))
}

func samplePanel(t *testing.T) *panel.Table {
	t.Helper()
	tbl := panel.New("GDP per capita")
	tbl.AddColumn("Population0to14", true)
	tbl.AddRow("NLD", panel.Attributes{Name: "Netherlands", Region: "Europe & Central Asia", IncomeGroup: "High income"})
	tbl.AddRow("TCD", panel.Attributes{Name: "Chad", Region: "Sub-Saharan Africa", IncomeGroup: "Low income"})
	require.NoError(t, tbl.Set("NLD", "GDP per capita", 45000, panel.Observed("WB", 2016)))
	require.NoError(t, tbl.Set("NLD", "Population0to14", 2800000, ""))
	return tbl
}

func TestWritePanel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.xlsx")
	aggregates := panel.New("Coal production")
	aggregates.AddRow("World", panel.Attributes{Name: "World"})
	require.NoError(t, aggregates.Set("World", "Coal production", 1000, panel.Observed("IEA", 2014)))

	err := WritePanel(path, samplePanel(t), map[string]string{"GDP per capita": "GDP"}, aggregates)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Regional Data", "Region", "IncomeGroup", "GDP", "Population0to14", "IEA Regions"}, f.GetSheetList())

	rows, err := f.GetRows("Regional Data")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Region"}, {"Europe & Central Asia"}, {"Sub-Saharan Africa"}}, rows)

	rows, err = f.GetRows("GDP")
	require.NoError(t, err)
	assert.Equal(t, []string{"Code", "Country Data", "GDP per capita", "GDP per capita source"}, rows[0])
	assert.Equal(t, []string{"NLD", "Netherlands", "45000", "WB data 2016"}, rows[1])

	rows, err = f.GetRows("Population0to14")
	require.NoError(t, err)
	assert.Equal(t, []string{"Code", "Country Data", "Population0to14"}, rows[0])

	rows, err = f.GetRows("IEA Regions")
	require.NoError(t, err)
	assert.Equal(t, []string{"World", "1000", "IEA data 2014"}, rows[1])
}

func TestWriteShares(t *testing.T) {
	p := trade.NewPanel([]int{1995}, []string{"Belgium", "Netherlands"})
	p.Fill([]model.TradeRecord{{Reporter: "Netherlands", Partner: "Belgium", Year: 1995, ValueUSD: 3}})
	path := filepath.Join(t.TempDir(), "shares.xlsx")

	require.NoError(t, WriteShares(path, p.Shares()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"1995", "DataPoints"}, f.GetSheetList())
	rows, err := f.GetRows("1995")
	require.NoError(t, err)
	assert.Equal(t, []string{"Netherlands", "1", "0"}, rows[2])

	rows, err = f.GetRows("DataPoints")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Exporter", "1995"}, {"Belgium", "0"}, {"Netherlands", "1"}}, rows)
}

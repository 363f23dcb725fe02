package sheets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"worldpanel/internal/energy"
	"worldpanel/internal/model"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Blad1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Blad1")
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestLoadRegions(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {
		{"country", "Country Data", "Region", "IncomeGroup"},
		{"nld", "Netherlands", "Europe & Central Asia", "High income"},
		{"WLD", "World", "", ""},
		{"", "", "", ""},
	}})

	countries, err := LoadRegions(path)
	require.NoError(t, err)
	require.Len(t, countries, 2)
	assert.Equal(t, model.Country{Code: "NLD", Name: "Netherlands", Region: "Europe & Central Asia", IncomeGroup: "High income"}, countries[0])
	assert.Equal(t, "", countries[1].Region)
}

func TestLoadIndicators(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Blad1": {
		{"Indicator", "Description", "Tabname"},
		{"SP.POP.TOTL", "Population, total", "Population"},
		{"NY.GDP.PCAP.CD", "GDP per capita (current US$)", "GDP per capita"},
	}})

	indicators, err := LoadIndicators(path, "Blad1")
	require.NoError(t, err)
	require.Len(t, indicators, 2)
	assert.Equal(t, model.Indicator{Code: "SP.POP.TOTL", Description: "Population, total", Tabname: "Population"}, indicators[0])
}

func TestLoadIndicators_MissingColumn(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Blad1": {
		{"Indicator", "Description"},
		{"SP.POP.TOTL", "Population, total"},
	}})

	_, err := LoadIndicators(path, "Blad1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tabname")
}

func TestLoadEnergy(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"TimeSeries_1971-2015": {
		{"World energy balances"},
		{"Product", "Flow", "Country", "2013", "2014"},
		{"Coal", "Production (ktoe)", "Netherlands", "..", "12.5"},
	}})

	rows, err := LoadEnergy(path, "TimeSeries_1971-2015")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, energy.Row{
		Product: "Coal", Flow: "Production (ktoe)", Country: "Netherlands",
		Years: map[int]float64{2014: 12.5},
	}, rows[0])
}

func TestLoadEnergySeries(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {
		{"Coal", "Production (ktoe)", "Coal production"},
		{"Oil", "Imports (ktoe)", "Oil imports"},
	}})

	series, err := LoadEnergySeries(path)
	require.NoError(t, err)
	assert.Equal(t, []energy.Series{
		{Product: "Coal", Flow: "Production (ktoe)", Column: "Coal production"},
		{Product: "Oil", Flow: "Imports (ktoe)", Column: "Oil imports"},
	}, series)
}

func TestLoadTrade(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {
		{"ReporterName", "PartnerName", "1995 in 1000 USD ", "1996 in 1000 USD ", "Note"},
		{"Netherlands", "Belgium", "30", "", "x"},
		{"Netherlands", "France", "10", "12", ""},
	}})

	records, years, err := LoadTrade(path, 1000)
	require.NoError(t, err)
	assert.Equal(t, []int{1995, 1996}, years)
	require.Len(t, records, 3)
	assert.Equal(t, "Belgium", records[0].Partner)
	assert.Equal(t, 30000.0, records[0].ValueUSD)
	assert.Equal(t, 1996, records[2].Year)
}

func TestLoadTrade_FormattedNumbers(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	head := sheet.AddRow()
	for _, name := range []string{"ReporterName", "PartnerName", "1995 in 1000 USD", "1996 in 1000 USD", "1997 in 1000 USD"} {
		head.AddCell().SetString(name)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("Netherlands")
	row.AddCell().SetString("Belgium")
	row.AddCell().SetFloatWithFormat(1234.5, "#,##0.00")
	row.AddCell().SetFloat(2)
	row.AddCell().SetFloatWithFormat(0.25, "0%")
	path := filepath.Join(t.TempDir(), "formatted.xlsx")
	require.NoError(t, f.Save(path))

	records, _, err := LoadTrade(path, 1000)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.InDelta(t, 1_234_500, records[0].ValueUSD, 1e-6)
	assert.InDelta(t, 2000, records[1].ValueUSD, 1e-6)
	assert.Equal(t, 1997, records[2].Year)
	assert.InDelta(t, 250, records[2].ValueUSD, 1e-6)
}

func TestLoadTrade_MissingColumns(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {
		{"Reporter", "Partner", "1995 in 1000 USD"},
	}})

	_, _, err := LoadTrade(path, 1)
	assert.Error(t, err)
}

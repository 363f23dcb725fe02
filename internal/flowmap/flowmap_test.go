package flowmap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldpanel/internal/model"
	"worldpanel/internal/trade"
)

var coords = map[string]model.Coordinates{
	"Netherlands": {Latitude: 52, Longitude: 5},
	"Belgium":     {Latitude: 50.5, Longitude: 4.5},
	"France":      {Latitude: 46, Longitude: 2},
}

func sampleFlows() trade.Flows {
	return trade.Flows{
		Year:      2014,
		Exporters: []string{"Belgium", "France", "Netherlands"},
		Importers: []string{"Belgium", "France", "Germany", "Netherlands"},
		Values: [][]float64{
			{0, 0, 0, 8},
			{0, 0, 0, 0.05},
			{40, 20, 10, 0},
		},
	}
}

func TestExtract_From(t *testing.T) {
	flows, err := Extract(sampleFlows(), "Netherlands", model.DirectionFrom, coords, DefaultThreshold)
	require.NoError(t, err)

	// Germany has no coordinates and is dropped
	require.Len(t, flows, 2)
	assert.Equal(t, "Belgium", flows[0].Importer)
	assert.Equal(t, coords["Netherlands"], flows[0].From)
	assert.Equal(t, coords["Belgium"], flows[0].To)
}

func TestExtract_To(t *testing.T) {
	flows, err := Extract(sampleFlows(), "Netherlands", model.DirectionTo, coords, DefaultThreshold)
	require.NoError(t, err)

	// France's 0.05 is below the threshold
	require.Len(t, flows, 1)
	assert.Equal(t, Flow{Exporter: "Belgium", Importer: "Netherlands", From: coords["Belgium"], To: coords["Netherlands"], Value: 8}, flows[0])
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract(sampleFlows(), "Atlantis", model.DirectionFrom, coords, DefaultThreshold)
	assert.Error(t, err)
	_, err = Extract(sampleFlows(), "Netherlands", model.Direction("sideways"), coords, DefaultThreshold)
	assert.Error(t, err)
}

func TestTraces_ScaleWithMaximum(t *testing.T) {
	traces := Traces([]Flow{{Value: 40}, {Value: 10}})
	require.Len(t, traces, 2)
	assert.InDelta(t, 5, traces[0].Line.Width, 1e-9)
	assert.InDelta(t, 1, traces[0].Opacity, 1e-9)
	assert.InDelta(t, 1.25, traces[1].Line.Width, 1e-9)
	assert.InDelta(t, 0.25, traces[1].Opacity, 1e-9)
	assert.Empty(t, Traces(nil))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	flows, err := Extract(sampleFlows(), "Netherlands", model.DirectionFrom, coords, DefaultThreshold)
	require.NoError(t, err)

	path, err := Write(dir, "Netherlands", Title("Emission", "Netherlands", model.DirectionFrom), flows)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "EmissionFlowsNetherlands.html"), path)

	html, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Emission Flows from Netherlands to other countries")
	assert.Contains(t, string(html), "scattergeo")

	data, err := os.ReadFile(strings.TrimSuffix(path, ".html") + ".geojson")
	require.NoError(t, err)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string      `json:"type"`
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
	assert.Equal(t, [][]float64{{5, 52}, {4.5, 50.5}}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "Belgium", fc.Features[0].Properties["importer"])
}

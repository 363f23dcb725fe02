// Package flowmap draws the flows of one country as lines on an interactive
// globe page, with a GeoJSON copy of the same lines.
package flowmap

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"worldpanel/internal/model"
	"worldpanel/internal/trade"
)

// DefaultThreshold is the smallest flow drawn.
const DefaultThreshold = 0.1

type Flow struct {
	Exporter string
	Importer string
	From     model.Coordinates
	To       model.Coordinates
	Value    float64
}

// Line returns the flow as a WGS84 line from exporter to importer.
func (f Flow) Line() *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, []float64{
		f.From.Longitude, f.From.Latitude,
		f.To.Longitude, f.To.Latitude,
	}).SetSRID(4326)
}

// Extract collects the flows of country above threshold. With DirectionFrom
// the country is the exporter, with DirectionTo the importer. Partners
// without coordinates are dropped and logged.
func Extract(flows trade.Flows, country string, dir model.Direction, coords map[string]model.Coordinates, threshold float64) ([]Flow, error) {
	home, ok := coords[country]
	if !ok {
		return nil, eris.Errorf("flowmap: no coordinates for %q", country)
	}

	var partners []string
	switch dir {
	case model.DirectionFrom:
		partners = flows.Importers
	case model.DirectionTo:
		partners = flows.Exporters
	default:
		return nil, eris.Errorf("flowmap: unknown direction %q", dir)
	}

	var out []Flow
	var removed []string
	for _, partner := range partners {
		exporter, importer := country, partner
		if dir == model.DirectionTo {
			exporter, importer = partner, country
		}
		v := flows.Value(exporter, importer)
		if !(v > threshold) {
			continue
		}
		at, ok := coords[partner]
		if !ok {
			removed = append(removed, partner)
			continue
		}
		f := Flow{Exporter: exporter, Importer: importer, Value: v, From: home, To: at}
		if dir == model.DirectionTo {
			f.From, f.To = at, home
		}
		out = append(out, f)
	}
	if len(removed) > 0 {
		sort.Strings(removed)
		zap.L().Info("removing partners without coordinates",
			zap.String("country", country),
			zap.Strings("partners", removed),
		)
	}
	return out, nil
}

// Title names a page after the country and direction.
func Title(label, country string, dir model.Direction) string {
	if dir == model.DirectionTo {
		return fmt.Sprintf("%s Flows to %s from other countries", label, country)
	}
	return fmt.Sprintf("%s Flows from %s to other countries", label, country)
}

// FileName is the page name for a country; the GeoJSON sidecar shares its stem.
func FileName(country string) string {
	stem := strings.NewReplacer("/", "_", "\\", "_").Replace(country)
	return "EmissionFlows" + stem + ".html"
}

type Trace struct {
	Type         string    `json:"type"`
	LocationMode string    `json:"locationmode"`
	Lon          []float64 `json:"lon"`
	Lat          []float64 `json:"lat"`
	Mode         string    `json:"mode"`
	Line         TraceLine `json:"line"`
	Opacity      float64   `json:"opacity"`
	Text         string    `json:"text"`
	HoverInfo    string    `json:"hoverinfo"`
}

type TraceLine struct {
	Width float64 `json:"width"`
	Color string  `json:"color"`
}

// Traces scales width and opacity linearly with each flow's share of the
// largest flow: width 5 and opacity 1 at the maximum.
func Traces(flows []Flow) []Trace {
	largest := 0.0
	for _, f := range flows {
		if f.Value > largest {
			largest = f.Value
		}
	}
	out := make([]Trace, 0, len(flows))
	if largest == 0 {
		return out
	}
	for _, f := range flows {
		ratio := f.Value / largest
		out = append(out, Trace{
			Type:         "scattergeo",
			LocationMode: "country names",
			Lon:          []float64{f.From.Longitude, f.To.Longitude},
			Lat:          []float64{f.From.Latitude, f.To.Latitude},
			Mode:         "lines",
			Line:         TraceLine{Width: 5 * ratio, Color: "red"},
			Opacity:      ratio,
			Text:         fmt.Sprintf("%s → %s: %.4g", f.Exporter, f.Importer, f.Value),
			HoverInfo:    "text",
		})
	}
	return out
}

var layout = map[string]any{
	"showlegend": false,
	"geo": map[string]any{
		"showlakes":     true,
		"showcountries": true,
		"showocean":     true,
		"showland":      true,
		"countrywidth":  0.5,
		"landcolor":     "rgb(230, 145, 56)",
		"lakecolor":     "rgb(0, 255, 255)",
		"oceancolor":    "rgb(0, 255, 255)",
		"countrycolor":  "rgb(204, 204, 204)",
		"projection":    map[string]any{"type": "orthographic"},
	},
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
</head>
<body>
<div id="flows" style="width:100%;height:95vh;"></div>
<script>
var layout = {{.Layout}};
layout.title = {{.Title}};
Plotly.newPlot("flows", {{.Traces}}, layout);
</script>
</body>
</html>
`))

// Write renders the page and its GeoJSON sidecar into dir and returns the
// page path.
func Write(dir, country, title string, flows []Flow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "flowmap: create %s", dir)
	}
	path := filepath.Join(dir, FileName(country))

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "flowmap: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	err = page.Execute(f, struct {
		Title  string
		Layout map[string]any
		Traces []Trace
	}{Title: title, Layout: layout, Traces: Traces(flows)})
	if err != nil {
		return "", eris.Wrapf(err, "flowmap: render %s", path)
	}

	data, err := GeoJSON(flows)
	if err != nil {
		return "", err
	}
	sidecar := strings.TrimSuffix(path, ".html") + ".geojson"
	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "flowmap: write %s", sidecar)
	}
	return path, nil
}

// GeoJSON encodes the flows as a feature collection of lines.
func GeoJSON(flows []Flow) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(flows))}
	for _, f := range flows {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: f.Line(),
			Properties: map[string]interface{}{
				"exporter": f.Exporter,
				"importer": f.Importer,
				"value":    f.Value,
			},
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "flowmap: encode geojson")
	}
	return data, nil
}

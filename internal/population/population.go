// Package population turns age and sex population indicators into four
// absolute age bands.
package population

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"worldpanel/internal/model"
	"worldpanel/internal/panel"
)

// Tolerance is the absolute difference, in people, above which totals are
// considered inconsistent.
const Tolerance = 10000

const (
	Band0to14  = "Population0to14"
	Band15to34 = "Population15to34"
	Band35to64 = "Population35to64"
	BandOver65 = "PopulationOver65"
)

// Bands lists the derived columns in export order.
func Bands() []string {
	return []string{Band0to14, Band15to34, Band35to64, BandOver65}
}

var ErrMissingColumn = eris.New("population: missing input column")

// Columns names the input indicators. The percentage lists are shares of the
// male or female population.
type Columns struct {
	Total         string
	Male          string
	Female        string
	Ages0to14     string
	Over65Percent string
	Male15to34    []string
	Female15to34  []string
	Male35to64    []string
	Female35to64  []string
}

// DefaultColumns returns the catalogue descriptions of the World Bank
// population indicators. The SP.POP.6064 series is described as ages 50-64.
func DefaultColumns() Columns {
	return Columns{
		Total:         "Population, total",
		Male:          "Population, male",
		Female:        "Population, female",
		Ages0to14:     "Population, ages 0-14, total",
		Over65Percent: "Population ages 65 and above (% of total)",
		Male15to34:    ageColumns("male", "15-19", "20-24", "25-29", "30-34"),
		Female15to34:  ageColumns("female", "15-19", "20-24", "25-29", "30-34"),
		Male35to64:    ageColumns("male", "35-39", "40-44", "45-49", "50-54", "55-59", "50-64"),
		Female35to64:  ageColumns("female", "35-39", "40-44", "45-49", "50-54", "55-59", "50-64"),
	}
}

func ageColumns(sex string, ranges ...string) []string {
	out := make([]string, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, "Population ages "+r+", "+sex+" (% of "+sex+" population)")
	}
	return out
}

var (
	ranges15to34 = []string{"1519", "2024", "2529", "3034"}
	ranges35to64 = []string{"3539", "4044", "4549", "5054", "5559", "6064"}
)

// ColumnsFor binds the inputs to the panel columns of the catalogue entries
// carrying the World Bank population codes. Inputs without a catalogue entry
// keep their DefaultColumns name.
func ColumnsFor(indicators []model.Indicator) Columns {
	byCode := make(map[string]string, len(indicators))
	for _, indicator := range indicators {
		byCode[indicator.Code] = indicator.Column()
	}
	pick := func(code, fallback string) string {
		if column, ok := byCode[code]; ok {
			return column
		}
		return fallback
	}
	pickAges := func(sex string, ranges, fallback []string) []string {
		out := make([]string, len(ranges))
		for i, r := range ranges {
			out[i] = pick("SP.POP."+r+"."+sex+".5Y", fallback[i])
		}
		return out
	}

	def := DefaultColumns()
	return Columns{
		Total:         pick("SP.POP.TOTL", def.Total),
		Male:          pick("SP.POP.TOTL.MA.IN", def.Male),
		Female:        pick("SP.POP.TOTL.FE.IN", def.Female),
		Ages0to14:     pick("SP.POP.0014.TO", def.Ages0to14),
		Over65Percent: pick("SP.POP.65UP.TO.ZS", def.Over65Percent),
		Male15to34:    pickAges("MA", ranges15to34, def.Male15to34),
		Female15to34:  pickAges("FE", ranges15to34, def.Female15to34),
		Male35to64:    pickAges("MA", ranges35to64, def.Male35to64),
		Female35to64:  pickAges("FE", ranges35to64, def.Female35to64),
	}
}

func (c Columns) required() []string {
	out := []string{c.Total, c.Male, c.Female, c.Ages0to14, c.Over65Percent}
	out = append(out, c.Male15to34...)
	out = append(out, c.Female15to34...)
	out = append(out, c.Male35to64...)
	out = append(out, c.Female35to64...)
	return out
}

// intermediate are the inputs dropped once the bands exist.
func (c Columns) intermediate() []string {
	out := []string{c.Ages0to14, c.Over65Percent}
	out = append(out, c.Male15to34...)
	out = append(out, c.Female15to34...)
	out = append(out, c.Male35to64...)
	out = append(out, c.Female35to64...)
	return out
}

type Report struct {
	// RescaledSexes lists countries whose male and female counts were scaled
	// to the reported total.
	RescaledSexes []string
	// RescaledBands lists countries whose 0-14 and 65+ bands were shrunk.
	RescaledBands []string
	// Deviating counts countries whose bands still miss the total by more
	// than Tolerance after correction.
	Deviating int
}

// Normalize derives the four bands and returns a table without the
// intermediate columns. Only the 0-14 and 65+ bands are shrunk when the band
// sum overshoots the total; 15-34 and 35-64 are never rescaled.
func Normalize(t *panel.Table, cols Columns) (*panel.Table, Report, error) {
	for _, column := range cols.required() {
		if !t.HasColumn(column) {
			return nil, Report{}, eris.Wrapf(ErrMissingColumn, "population: %q", column)
		}
	}
	log := zap.L().With(zap.String("component", "population"))

	out := t.Clone()
	for _, band := range Bands() {
		out.AddColumn(band, true)
	}

	var report Report
	for _, key := range out.Keys() {
		total, hasTotal := out.Value(key, cols.Total)
		male, hasMale := out.Value(key, cols.Male)
		female, hasFemale := out.Value(key, cols.Female)

		if hasTotal && hasMale && hasFemale && male+female > 0 && math.Abs(male+female-total) > Tolerance {
			factor := total / (male + female)
			out.Rescale(key, cols.Male, factor)
			out.Rescale(key, cols.Female, factor)
			male, female = male*factor, female*factor
			report.RescaledSexes = append(report.RescaledSexes, key)
			log.Info("rescaling male and female populations", zap.String("country", key))
		}

		bands := make(map[string]float64, 4)
		if v, ok := out.Value(key, cols.Ages0to14); ok {
			bands[Band0to14] = v
		}
		if hasMale && hasFemale {
			bands[Band15to34] = percentSum(out, key, cols.Male15to34)*male + percentSum(out, key, cols.Female15to34)*female
			bands[Band35to64] = percentSum(out, key, cols.Male35to64)*male + percentSum(out, key, cols.Female35to64)*female
		}
		if pct, ok := out.Value(key, cols.Over65Percent); ok && hasTotal {
			bands[BandOver65] = pct / 100 * total
		}

		if hasTotal && total > 0 && len(bands) == 4 {
			sum := bandSum(bands)
			if math.Abs(sum-total) > Tolerance {
				ratio := sum / total
				bands[Band0to14] /= ratio
				bands[BandOver65] /= ratio
				report.RescaledBands = append(report.RescaledBands, key)
				log.Info("rescaling population ranges", zap.String("country", key))
			}
			if math.Abs(bandSum(bands)-total) > Tolerance {
				report.Deviating++
			}
		}

		for band, value := range bands {
			if err := out.Set(key, band, value, ""); err != nil {
				return nil, Report{}, eris.Wrap(err, "population: set band")
			}
		}
	}

	log.Info("population bands derived",
		zap.Int("countries", out.Len()),
		zap.Int("deviating", report.Deviating),
	)
	return out.Drop(cols.intermediate()...), report, nil
}

// percentSum adds the available percentages of a band and returns a fraction.
func percentSum(t *panel.Table, key string, columns []string) float64 {
	sum := 0.0
	for _, column := range columns {
		if v, ok := t.Value(key, column); ok {
			sum += v
		}
	}
	return sum / 100
}

func bandSum(bands map[string]float64) float64 {
	sum := 0.0
	for _, band := range Bands() {
		sum += bands[band]
	}
	return sum
}

// Tabnames returns the sheet names of the band columns.
func Tabnames() map[string]string {
	out := make(map[string]string, 4)
	for _, band := range Bands() {
		out[band] = band
	}
	return out
}

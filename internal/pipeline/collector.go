// Package pipeline wires the loaders, providers and transforms into the
// collector and publisher runs.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"worldpanel/internal/backfill"
	"worldpanel/internal/config"
	"worldpanel/internal/energy"
	"worldpanel/internal/export"
	"worldpanel/internal/impute"
	"worldpanel/internal/model"
	"worldpanel/internal/panel"
	"worldpanel/internal/population"
	"worldpanel/internal/providers"
	"worldpanel/internal/providers/worldbank"
	"worldpanel/internal/reconcile"
	"worldpanel/internal/sheets"
	"worldpanel/internal/store"
)

// Collector builds the per-country panel.
type Collector struct {
	Config *config.Config
	Store  store.Store
	// Provider replaces the statistical API client built from the indicator
	// catalogue when set.
	Provider providers.Provider
}

type CollectResult struct {
	Run        model.Run
	Panel      *panel.Table
	Aggregates *panel.Table
	Imputation impute.Report
	Population population.Report
}

func (c *Collector) Run(ctx context.Context) (*CollectResult, error) {
	cfg := c.Config
	log := zap.L().With(zap.String("component", "collector"))

	countries, err := sheets.LoadRegions(cfg.Inputs.Regions)
	if err != nil {
		return nil, err
	}
	indicators, err := sheets.LoadIndicators(cfg.Inputs.Indicators, cfg.Inputs.IndicatorsSheet)
	if err != nil {
		return nil, err
	}
	overrides, err := reconcile.LoadOverrides(cfg.Inputs.Overrides)
	if err != nil {
		return nil, err
	}
	log.Info("inputs loaded",
		zap.Int("countries", len(countries)),
		zap.Int("indicators", len(indicators)),
		zap.Int("overrides", len(overrides)),
	)

	codes := make([]string, 0, len(countries))
	names := make(map[string]string, len(countries))
	base := panel.New()
	for _, country := range countries {
		codes = append(codes, country.Code)
		names[country.Code] = country.Name
		base.AddRow(country.Code, panel.Attributes{
			Name:        country.Name,
			Region:      country.Region,
			IncomeGroup: country.IncomeGroup,
		})
	}
	mapping := reconcile.NewMapping(overrides).WithLookup(reconcile.SchemeCode, names)

	provider := c.Provider
	if provider == nil {
		provider, err = worldbank.NewWithConfig(worldbank.Config{
			BaseURL:         cfg.WorldBank.BaseURL,
			SourceLabel:     cfg.WorldBank.SourceLabel,
			PerPage:         cfg.WorldBank.PerPage,
			RateLimitPerSec: cfg.WorldBank.RateLimitPerSec,
			Timeout:         cfg.WorldBank.Timeout(),
		}, indicators)
		if err != nil {
			return nil, err
		}
	}

	fetched, err := backfill.Run(ctx, provider, backfill.Range{From: cfg.Years.From, To: cfg.Years.To})
	if err != nil {
		return nil, err
	}
	res := mapping.Resolve(reconcile.Refs(reconcile.SchemeCode, codes), reconcile.Refs(reconcile.SchemeCode, fetched.Keys()))
	res.Report("regions", provider.Name())
	fetched, err = reconcile.Reindex(fetched, res.Index())
	if err != nil {
		return nil, err
	}
	table := panel.Combine(base, fetched)

	tabnames := make(map[string]string)
	for _, indicator := range indicators {
		if indicator.Tabname != "" {
			tabnames[indicator.Column()] = indicator.Tabname
		}
	}

	var aggregates *panel.Table
	if cfg.Inputs.Energy != "" {
		var energyTable *panel.Table
		energyTable, aggregates, err = c.collectEnergy(ctx, mapping, codes)
		if err != nil {
			return nil, err
		}
		table = panel.Combine(table, energyTable)
	}

	logCompleteness("before imputation", table)
	table, imputation := impute.Run(table, impute.Cascade())
	logCompleteness("after imputation", table)

	var popReport population.Report
	cols := population.ColumnsFor(indicators)
	if table.HasColumn(cols.Total) {
		table, popReport, err = population.Normalize(table, cols)
		if err != nil {
			return nil, err
		}
		for band, tab := range population.Tabnames() {
			tabnames[band] = tab
		}
		log.Info("population normalized",
			zap.Int("rescaled_sexes", len(popReport.RescaledSexes)),
			zap.Int("rescaled_bands", len(popReport.RescaledBands)),
			zap.Int("deviating", popReport.Deviating),
		)
		logCompleteness("after population", table)
	} else {
		log.Info("population columns absent, skipping bands")
	}

	table = table.Sorted()
	if err := export.WritePanel(cfg.Output.Workbook, table, tabnames, aggregates); err != nil {
		return nil, err
	}

	run, err := c.Store.CreateRun(ctx, model.RunPanel)
	if err != nil {
		return nil, err
	}
	cells := CellRecords(table)
	if err := c.Store.UpsertCells(ctx, run.ID, cells); err != nil {
		return nil, err
	}
	log.Info("panel stored", zap.String("run_id", run.ID), zap.Int("cells", len(cells)))

	return &CollectResult{
		Run:        run,
		Panel:      table,
		Aggregates: aggregates,
		Imputation: imputation,
		Population: popReport,
	}, nil
}

// collectEnergy backfills the energy series for the panel countries and,
// separately, for the sheet's regional aggregates.
func (c *Collector) collectEnergy(ctx context.Context, mapping *reconcile.Mapping, codes []string) (*panel.Table, *panel.Table, error) {
	cfg := c.Config
	rows, err := sheets.LoadEnergy(cfg.Inputs.Energy, cfg.Inputs.EnergySheet)
	if err != nil {
		return nil, nil, err
	}
	series, err := sheets.LoadEnergySeries(cfg.Inputs.EnergySeries)
	if err != nil {
		return nil, nil, err
	}
	dataset := energy.NewDataset(rows)

	res := mapping.Resolve(reconcile.Refs(reconcile.SchemeCode, codes), reconcile.Refs(reconcile.SchemeName, dataset.Entities()))
	res.Report("regions", energy.SourceLabel)
	keys := res.Reverse()

	window := backfill.Range{From: cfg.Energy.From, To: cfg.Energy.To}
	countries, err := backfill.Run(ctx, energy.NewSource(dataset, series, keys), window)
	if err != nil {
		return nil, nil, eris.Wrap(err, "collector: energy countries")
	}

	isCountry := func(entity string) bool {
		_, ok := keys[entity]
		return ok || mapping.IsOverride(entity)
	}
	aggregates, err := backfill.Run(ctx, dataset.Aggregates(series, isCountry), window)
	if err != nil {
		return nil, nil, eris.Wrap(err, "collector: energy aggregates")
	}
	return countries, aggregates, nil
}

func logCompleteness(stage string, t *panel.Table) {
	log := zap.L().With(zap.String("component", "completeness"), zap.String("stage", stage))
	for _, c := range panel.Completeness(t) {
		log.Info("column completeness",
			zap.String("column", c.Column),
			zap.Int("filled", c.Filled),
			zap.Float64("percent", c.Percent),
		)
	}
}

// CellRecords flattens the filled cells of a table for storage.
func CellRecords(t *panel.Table) []model.CellRecord {
	var out []model.CellRecord
	for _, key := range t.Keys() {
		for _, column := range t.Columns() {
			cell := t.Cell(key, column)
			if !cell.Valid {
				continue
			}
			out = append(out, model.CellRecord{
				Country:   key,
				Indicator: column,
				Value:     cell.Value,
				Source:    string(cell.Source),
			})
		}
	}
	return out
}

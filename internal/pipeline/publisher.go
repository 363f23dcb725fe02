package pipeline

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"worldpanel/internal/config"
	"worldpanel/internal/export"
	"worldpanel/internal/flowmap"
	"worldpanel/internal/geocode"
	"worldpanel/internal/model"
	"worldpanel/internal/reconcile"
	"worldpanel/internal/sheets"
	"worldpanel/internal/store"
	"worldpanel/internal/trade"
)

const (
	labelTrade    = "Trade"
	labelEmission = "Emission"
)

// TradeSource supplies bilateral export values for the requested years.
type TradeSource interface {
	Name() string
	FetchTrade(ctx context.Context, years []int) ([]model.TradeRecord, error)
}

// Publisher builds the trade share panel and renders the flow pages.
type Publisher struct {
	Config   *config.Config
	Store    store.Store
	Geocoder geocode.Client
	// Source replaces the trade workbook when set.
	Source TradeSource
}

type PublishResult struct {
	Run    model.Run
	Panel  *trade.Panel
	Shares *trade.Panel
	Fill   trade.FillReport
	// Pages lists the written flow pages in country order.
	Pages []string
}

func (p *Publisher) Run(ctx context.Context) (*PublishResult, error) {
	cfg := p.Config
	log := zap.L().With(zap.String("component", "publisher"))

	records, years, provider, err := p.loadTrade(ctx)
	if err != nil {
		return nil, err
	}

	countries := tradeCountries(records)
	tp := trade.NewPanel(years, countries)
	fill := tp.Fill(records)
	log.Info("trade panel filled",
		zap.Int("countries", len(countries)),
		zap.Int("years", len(years)),
		zap.Int("placed", fill.Placed),
		zap.Int("skipped", fill.Skipped),
		zap.Strings("unknown", fill.Unknown),
	)

	shares := tp.Shares()
	if err := export.WriteShares(cfg.Output.SharesWorkbook, shares); err != nil {
		return nil, err
	}

	run, err := p.Store.CreateRun(ctx, model.RunTrade)
	if err != nil {
		return nil, err
	}
	stored := tp.Records(provider)
	if err := p.Store.UpsertTradeValues(ctx, run.ID, stored); err != nil {
		return nil, err
	}
	log.Info("trade values stored", zap.String("run_id", run.ID), zap.Int("values", len(stored)))

	result := &PublishResult{Run: run, Panel: tp, Shares: shares, Fill: fill}
	if len(cfg.Trade.Countries) == 0 {
		return result, nil
	}

	flows, label, err := p.flows(ctx, tp)
	if err != nil {
		return nil, err
	}

	dir := model.Direction(cfg.Trade.Direction)
	locator := geocode.NewLocator(p.Geocoder)
	coords := locator.LocateAll(ctx, p.placesToLocate(flows, dir))

	for _, country := range cfg.Trade.Countries {
		selected, err := flowmap.Extract(flows, country, dir, coords, cfg.Trade.Threshold)
		if err != nil {
			return nil, err
		}
		if len(selected) == 0 {
			log.Warn("no flows above threshold", zap.String("country", country))
		}
		path, err := flowmap.Write(cfg.Output.FlowsDir, country, flowmap.Title(label, country, dir), selected)
		if err != nil {
			return nil, err
		}
		log.Info("flow page written", zap.String("country", country), zap.String("path", path), zap.Int("flows", len(selected)))
		result.Pages = append(result.Pages, path)
	}
	return result, nil
}

// loadTrade reads the records from the configured source. The workbook's own
// year columns are used when no trade years are configured.
func (p *Publisher) loadTrade(ctx context.Context) ([]model.TradeRecord, []int, string, error) {
	cfg := p.Config
	years := cfg.Trade.Years()
	if p.Source != nil {
		if len(years) == 0 {
			return nil, nil, "", eris.New("publisher: trade years are required for an API source")
		}
		records, err := p.Source.FetchTrade(ctx, years)
		if err != nil {
			return nil, nil, "", err
		}
		return records, years, p.Source.Name(), nil
	}

	records, sheetYears, err := sheets.LoadTrade(cfg.Inputs.Trade, cfg.Trade.ValueMultiplier)
	if err != nil {
		return nil, nil, "", err
	}
	if len(years) == 0 {
		years = sheetYears
	}
	return records, years, filepath.Base(cfg.Inputs.Trade), nil
}

// flows picks the matrix the pages are drawn from: trade values, or the
// latest stored emissions allocated over the trade shares.
func (p *Publisher) flows(ctx context.Context, tp *trade.Panel) (trade.Flows, string, error) {
	cfg := p.Config
	if cfg.Trade.EmissionsIndicator == "" {
		flows, ok := tp.Matrix(cfg.Trade.FlowYear)
		if !ok {
			return trade.Flows{}, "", eris.Errorf("publisher: flow year %d outside trade panel", cfg.Trade.FlowYear)
		}
		return flows, labelTrade, nil
	}

	totals, err := p.emissionTotals(ctx, tp.Countries())
	if err != nil {
		return trade.Flows{}, "", err
	}
	flows, ok := tp.Allocate(cfg.Trade.FlowYear, totals)
	if !ok {
		return trade.Flows{}, "", eris.Errorf("publisher: flow year %d outside trade panel", cfg.Trade.FlowYear)
	}
	return flows, labelEmission, nil
}

// emissionTotals reads the emissions column of the latest panel run and keys
// it by trade country name.
func (p *Publisher) emissionTotals(ctx context.Context, countries []string) (map[string]float64, error) {
	cfg := p.Config
	cells, err := p.Store.LatestCells(ctx, model.RunPanel, cfg.Trade.EmissionsIndicator)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, eris.Errorf("publisher: no stored values for %q", cfg.Trade.EmissionsIndicator)
	}

	regions, err := sheets.LoadRegions(cfg.Inputs.Regions)
	if err != nil {
		return nil, err
	}
	overrides, err := reconcile.LoadOverrides(cfg.Inputs.Overrides)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(regions))
	for _, country := range regions {
		names[country.Code] = country.Name
	}
	mapping := reconcile.NewMapping(overrides).WithLookup(reconcile.SchemeCode, names)

	byCode := make(map[string]float64, len(cells))
	codes := make([]string, 0, len(cells))
	for _, cell := range cells {
		byCode[cell.Country] = cell.Value
		codes = append(codes, cell.Country)
	}

	res := mapping.Resolve(reconcile.Refs(reconcile.SchemeTrade, countries), reconcile.Refs(reconcile.SchemeCode, codes))
	res.Report("trade", cfg.Trade.EmissionsIndicator)

	totals := make(map[string]float64, len(res.Pairs))
	for name, code := range res.Index() {
		totals[name] = byCode[code]
	}
	return totals, nil
}

// placesToLocate lists the page countries and every partner that could clear
// the threshold, so only drawn endpoints are geocoded.
func (p *Publisher) placesToLocate(flows trade.Flows, dir model.Direction) []string {
	cfg := p.Config
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, country := range cfg.Trade.Countries {
		add(country)
		partners := flows.Importers
		if dir == model.DirectionTo {
			partners = flows.Exporters
		}
		for _, partner := range partners {
			exporter, importer := country, partner
			if dir == model.DirectionTo {
				exporter, importer = partner, country
			}
			if flows.Value(exporter, importer) > cfg.Trade.Threshold {
				add(partner)
			}
		}
	}
	return out
}

// tradeCountries is the sorted union of reporters and partners.
func tradeCountries(records []model.TradeRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.Reporter] = struct{}{}
		seen[r.Partner] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

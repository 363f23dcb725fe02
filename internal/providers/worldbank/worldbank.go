package worldbank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"worldpanel/internal/model"
	"worldpanel/internal/providers"
)

const (
	defaultBaseURL         = "https://api.worldbank.org/v2/"
	defaultIndicatorPath   = "country/{country}/indicator/{indicator}"
	defaultCountry         = "all"
	defaultFormatParam     = "format"
	defaultFormatValue     = "json"
	defaultSourceLabel     = "WB"
	defaultPerPage         = 20000
	defaultRateLimitPerSec = 5
	defaultRateLimitBurst  = 5
	defaultTimeoutSeconds  = 20
	defaultUserAgent       = "worldpanel/0.1"
)

var ErrNoRecords = eris.New("worldbank: no records found")

type Config struct {
	BaseURL         string
	IndicatorPath   string
	Country         string
	FormatParam     string
	FormatValue     string
	SourceLabel     string
	PerPage         int
	RateLimitPerSec int
	RateLimitBurst  int
	Timeout         time.Duration
	UserAgent       string
}

type Provider struct {
	config     Config
	client     *http.Client
	limiter    *rate.Limiter
	indicators []model.Indicator
}

func NewWithConfig(cfg Config, indicators []model.Indicator) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.IndicatorPath) == "" {
		cfg.IndicatorPath = defaultIndicatorPath
	}
	if cfg.Country == "" {
		cfg.Country = defaultCountry
	}
	if cfg.FormatParam == "" {
		cfg.FormatParam = defaultFormatParam
	}
	if cfg.FormatValue == "" {
		cfg.FormatValue = defaultFormatValue
	}
	if cfg.SourceLabel == "" {
		cfg.SourceLabel = defaultSourceLabel
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if len(indicators) == 0 {
		return nil, eris.New("worldbank: at least one indicator is required")
	}
	return &Provider{
		config:     cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		indicators: indicators,
	}, nil
}

func (p *Provider) Name() string {
	return p.config.SourceLabel
}

func (p *Provider) Columns() []string {
	columns := make([]string, 0, len(p.indicators))
	for _, indicator := range p.indicators {
		columns = append(columns, indicator.Column())
	}
	return columns
}

// FetchYear queries every indicator for a single-year date range. Indicators
// without any record that year contribute nothing; any other failure aborts.
func (p *Provider) FetchYear(ctx context.Context, year int) (providers.Snapshot, error) {
	snapshot := providers.NewSnapshot(year)
	for _, indicator := range p.indicators {
		rows, err := p.FetchIndicator(ctx, indicator.Code, year)
		if err != nil {
			if eris.Is(err, ErrNoRecords) {
				zap.L().Debug("worldbank: no records",
					zap.String("indicator", indicator.Code),
					zap.Int("year", year),
				)
				continue
			}
			return providers.Snapshot{}, err
		}
		for _, row := range rows {
			key := row.countryKey()
			if key == "" {
				continue
			}
			if row.Value == nil {
				snapshot.Names[key] = strings.TrimSpace(row.Country.Value)
				continue
			}
			snapshot.Put(key, strings.TrimSpace(row.Country.Value), indicator.Column(), *row.Value)
		}
	}
	return snapshot, nil
}

type pageMeta struct {
	Page    json.Number  `json:"page"`
	Pages   json.Number  `json:"pages"`
	PerPage json.Number  `json:"per_page"`
	Total   json.Number  `json:"total"`
	Message []apiMessage `json:"message"`
}

type apiMessage struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Record struct {
	Indicator   reference `json:"indicator"`
	Country     reference `json:"country"`
	CountryISO3 string    `json:"countryiso3code"`
	Date        string    `json:"date"`
	Value       *float64  `json:"value"`
}

type reference struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (r Record) countryKey() string {
	if code := strings.ToUpper(strings.TrimSpace(r.CountryISO3)); code != "" {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(r.Country.ID))
}

// FetchIndicator pages through all records of one indicator for one year.
func (p *Provider) FetchIndicator(ctx context.Context, code string, year int) ([]Record, error) {
	records := make([]Record, 0)
	for page := 1; ; page++ {
		meta, batch, err := p.fetchPage(ctx, code, year, page)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)

		pages, _ := strconv.Atoi(meta.Pages.String())
		if page >= pages {
			break
		}
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

func (p *Provider) fetchPage(ctx context.Context, code string, year, page int) (pageMeta, []Record, error) {
	path := p.indicatorPath(code)
	params := url.Values{}
	params.Set("date", strconv.Itoa(year))
	params.Set("per_page", strconv.Itoa(p.config.PerPage))
	params.Set("page", strconv.Itoa(page))

	body, err := p.doRequest(ctx, path, params)
	if err != nil {
		return pageMeta{}, nil, err
	}
	return parsePage(body)
}

// parsePage decodes the two-element [meta, records] envelope. An error
// envelope carries only a message element.
func parsePage(body []byte) (pageMeta, []Record, error) {
	var envelope []json.RawMessage
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&envelope); err != nil {
		return pageMeta{}, nil, eris.Wrap(err, "worldbank: decode envelope")
	}
	if len(envelope) == 0 {
		return pageMeta{}, nil, eris.New("worldbank: empty response")
	}

	var meta pageMeta
	if err := json.Unmarshal(envelope[0], &meta); err != nil {
		return pageMeta{}, nil, eris.Wrap(err, "worldbank: decode page metadata")
	}
	if len(meta.Message) > 0 {
		msg := meta.Message[0]
		return pageMeta{}, nil, eris.Errorf("worldbank: api error %s (%s): %s", msg.ID, msg.Key, strings.TrimSpace(msg.Value))
	}
	if len(envelope) < 2 || string(bytes.TrimSpace(envelope[1])) == "null" {
		return meta, nil, nil
	}

	var records []Record
	if err := json.Unmarshal(envelope[1], &records); err != nil {
		return pageMeta{}, nil, eris.Wrap(err, "worldbank: decode records")
	}
	return meta, records, nil
}

func (p *Provider) indicatorPath(code string) string {
	path := p.config.IndicatorPath
	path = strings.ReplaceAll(path, "{country}", url.PathEscape(p.config.Country))
	path = strings.ReplaceAll(path, "{indicator}", url.PathEscape(code))
	return path
}

func (p *Provider) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := p.buildURL(path, params)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "worldbank: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "worldbank: build request")
	}
	req.Header.Set("Accept", "application/json")
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "worldbank: request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "worldbank: read body")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, eris.Errorf("worldbank: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (p *Provider) buildURL(path string, params url.Values) string {
	base := strings.TrimRight(p.config.BaseURL, "/")
	path = strings.TrimLeft(path, "/")
	endpoint := base + "/" + path

	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	if p.config.FormatParam != "" && p.config.FormatValue != "" {
		query.Set(p.config.FormatParam, p.config.FormatValue)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (p *Provider) String() string {
	return fmt.Sprintf("worldbank(%s, %d indicators)", p.config.BaseURL, len(p.indicators))
}

var _ providers.Provider = (*Provider)(nil)

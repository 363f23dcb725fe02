package comtrade

import (
	"context"
	"encoding/json"
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
)

const (
	defaultBaseURL         = "https://comtradeapi.un.org/"
	defaultDataPath        = "data/v1/get/{type}/{freq}/{cl}"
	defaultAPIKeyParam     = "subscription-key"
	defaultType            = "C"
	defaultFrequency       = "A"
	defaultClassification  = "HS"
	defaultCommodity       = "TOTAL"
	defaultFlowExport      = "X"
	defaultMaxRecords      = 100000
	defaultRateLimitPerSec = 1
	defaultRateLimitBurst  = 1
	defaultTimeoutSeconds  = 60
	defaultUserAgent       = "worldpanel/0.1"
	worldPartnerCode       = "0"
	providerName           = "comtrade"
)

var (
	ErrNoRecords     = eris.New("comtrade: no records found")
	ErrQuotaExceeded = eris.New("comtrade: quota exceeded")
)

// Config configures the client. Reporters restricts requests to these
// reporter codes; empty asks for all reporters.
type Config struct {
	BaseURL         string
	DataPath        string
	APIKey          string
	APIKeyParam     string
	Type            string
	Frequency       string
	Classification  string
	Commodity       string
	FlowExport      string
	Reporters       []string
	MaxRecords      int
	RateLimitPerSec int
	RateLimitBurst  int
	Timeout         time.Duration
	UserAgent       string
	MaxRetries      int
}

// Provider reads annual bilateral export values, one request per year.
type Provider struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("comtrade: api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.DataPath) == "" {
		cfg.DataPath = defaultDataPath
	}
	if strings.TrimSpace(cfg.APIKeyParam) == "" {
		cfg.APIKeyParam = defaultAPIKeyParam
	}
	if strings.TrimSpace(cfg.Type) == "" {
		cfg.Type = defaultType
	}
	if strings.TrimSpace(cfg.Frequency) == "" {
		cfg.Frequency = defaultFrequency
	}
	if strings.TrimSpace(cfg.Classification) == "" {
		cfg.Classification = defaultClassification
	}
	if strings.TrimSpace(cfg.Commodity) == "" {
		cfg.Commodity = defaultCommodity
	}
	if strings.TrimSpace(cfg.FlowExport) == "" {
		cfg.FlowExport = defaultFlowExport
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
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
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Provider{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
	}, nil
}

func (p *Provider) Name() string {
	return providerName
}

// FetchTrade returns the reported export values of every year. Years without
// records are skipped; any other failure aborts.
func (p *Provider) FetchTrade(ctx context.Context, years []int) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	for _, year := range years {
		rows, err := p.fetchYear(ctx, year)
		if err != nil {
			if eris.Is(err, ErrNoRecords) {
				zap.L().Warn("comtrade: no records", zap.Int("year", year))
				continue
			}
			return nil, err
		}
		zap.L().Debug("comtrade: year fetched", zap.Int("year", year), zap.Int("records", len(rows)))
		records = append(records, rows...)
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

func (p *Provider) fetchYear(ctx context.Context, year int) ([]model.TradeRecord, error) {
	params := url.Values{}
	if len(p.config.Reporters) > 0 {
		params.Set("reporterCode", strings.Join(p.config.Reporters, ","))
	}
	params.Set("flowCode", p.config.FlowExport)
	params.Set("period", strconv.Itoa(year))
	params.Set("cmdCode", p.config.Commodity)
	params.Set("maxRecords", strconv.Itoa(p.config.MaxRecords))

	body, err := p.doRequest(ctx, p.dataURL(), params)
	if err != nil {
		return nil, err
	}
	records, err := parseRecords(body, year)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

func (p *Provider) dataURL() string {
	path := strings.TrimLeft(p.config.DataPath, "/")
	path = strings.ReplaceAll(path, "{type}", url.PathEscape(p.config.Type))
	path = strings.ReplaceAll(path, "{freq}", url.PathEscape(p.config.Frequency))
	path = strings.ReplaceAll(path, "{cl}", url.PathEscape(p.config.Classification))
	return strings.TrimRight(p.config.BaseURL, "/") + "/" + path
}

// doRequest retries a 429 up to MaxRetries times after the advertised delay.
// Any other failure, or a 429 with retries disabled, is returned at once.
func (p *Provider) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	attempts := p.config.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		body, status, retryAfter, err := p.doOnce(ctx, endpoint, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if status != http.StatusTooManyRequests || attempt == attempts-1 {
			break
		}
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		zap.L().Info("comtrade: throttled, retrying", zap.Duration("after", retryAfter), zap.Int("attempt", attempt+1))
		if err := sleepWithContext(ctx, retryAfter); err != nil {
			return nil, eris.Wrap(err, "comtrade: retry wait")
		}
	}
	return nil, lastErr
}

func (p *Provider) doOnce(ctx context.Context, endpoint string, params url.Values) ([]byte, int, time.Duration, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, 0, eris.Wrap(err, "comtrade: rate limit")
	}

	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set(p.config.APIKeyParam, p.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, 0, eris.Wrap(err, "comtrade: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.config.APIKey)
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, 0, eris.Wrap(err, "comtrade: request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, eris.Wrap(err, "comtrade: read body")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter := parseRetryAfter(resp, body)
		if resp.StatusCode == http.StatusForbidden && isQuotaExceeded(body) {
			return nil, resp.StatusCode, retryAfter, eris.Wrap(ErrQuotaExceeded, strings.TrimSpace(string(body)))
		}
		return nil, resp.StatusCode, retryAfter, eris.Errorf("comtrade: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, 0, nil
}

type response struct {
	Count int    `json:"count"`
	Data  []row  `json:"data"`
	Error string `json:"error"`
}

type row struct {
	RefYear      json.Number `json:"refYear"`
	Period       string      `json:"period"`
	ReporterDesc string      `json:"reporterDesc"`
	PartnerCode  json.Number `json:"partnerCode"`
	PartnerDesc  string      `json:"partnerDesc"`
	PrimaryValue *float64    `json:"primaryValue"`
}

// parseRecords keeps bilateral rows with a value. The "World" partner row
// duplicates the reporter total and is dropped.
func parseRecords(body []byte, year int) ([]model.TradeRecord, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "comtrade: decode response")
	}
	if strings.TrimSpace(resp.Error) != "" {
		return nil, eris.Errorf("comtrade: api error: %s", strings.TrimSpace(resp.Error))
	}

	records := make([]model.TradeRecord, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.PrimaryValue == nil || r.PartnerCode.String() == worldPartnerCode {
			continue
		}
		reporter := strings.TrimSpace(r.ReporterDesc)
		partner := strings.TrimSpace(r.PartnerDesc)
		if reporter == "" || partner == "" {
			continue
		}
		rowYear := year
		if y, err := strconv.Atoi(r.RefYear.String()); err == nil && y > 0 {
			rowYear = y
		}
		records = append(records, model.TradeRecord{
			Provider: providerName,
			Reporter: reporter,
			Partner:  partner,
			Year:     rowYear,
			ValueUSD: *r.PrimaryValue,
		})
	}
	return records, nil
}

func parseRetryAfter(resp *http.Response, body []byte) time.Duration {
	if value := strings.TrimSpace(resp.Header.Get("Retry-After")); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		if when, err := time.Parse(http.TimeFormat, value); err == nil {
			if wait := time.Until(when); wait > 0 {
				return wait
			}
		}
	}

	var payload struct {
		Message string `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return 0
	}
	return time.Duration(parseRetrySeconds(payload.Message)) * time.Second
}

func isQuotaExceeded(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "quota")
}

// parseRetrySeconds reads the delay out of messages like
// "Rate limit is exceeded. Try again in 12 seconds."
func parseRetrySeconds(message string) int {
	msg := strings.ToLower(message)
	idx := strings.Index(msg, "try again in")
	if idx == -1 {
		return 0
	}
	for _, part := range strings.Fields(msg[idx+len("try again in"):]) {
		if value, err := strconv.Atoi(part); err == nil && value > 0 {
			return value
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

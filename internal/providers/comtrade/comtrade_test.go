package comtrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldpanel/internal/model"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewWithConfig(Config{
		BaseURL:         srv.URL,
		APIKey:          "secret",
		Reporters:       []string{"528", "56"},
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		MaxRetries:      1,
	})
	require.NoError(t, err)
	return p
}

func TestNewWithConfig_RequiresKey(t *testing.T) {
	_, err := NewWithConfig(Config{})
	assert.Error(t, err)
}

func TestFetchTrade(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/v1/get/C/A/HS", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "528,56", q.Get("reporterCode"))
		assert.Equal(t, "X", q.Get("flowCode"))
		assert.Equal(t, "TOTAL", q.Get("cmdCode"))
		assert.Equal(t, "secret", q.Get("subscription-key"))
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))

		if q.Get("period") == "2013" {
			_, _ = w.Write([]byte(`{"count":0,"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"count":3,"data":[
			{"refYear":2014,"period":"2014","reporterDesc":"Netherlands","partnerCode":0,"partnerDesc":"World","primaryValue":500},
			{"refYear":2014,"period":"2014","reporterDesc":"Netherlands","partnerCode":56,"partnerDesc":"Belgium","primaryValue":300},
			{"refYear":2014,"period":"2014","reporterDesc":"Netherlands","partnerCode":710,"partnerDesc":"South Africa","primaryValue":null}
		]}`))
	})

	records, err := p.FetchTrade(context.Background(), []int{2014, 2013})
	require.NoError(t, err)
	assert.Equal(t, []model.TradeRecord{
		{Provider: "comtrade", Reporter: "Netherlands", Partner: "Belgium", Year: 2014, ValueUSD: 300},
	}, records)
}

func TestFetchTrade_NoRecords(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":0,"data":[]}`))
	})

	_, err := p.FetchTrade(context.Background(), []int{2014})
	assert.True(t, eris.Is(err, ErrNoRecords))
}

func TestFetchTrade_RetriesThrottled(t *testing.T) {
	calls := 0
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"refYear":2014,"reporterDesc":"Belgium","partnerCode":528,"partnerDesc":"Netherlands","primaryValue":7}]}`))
	})

	records, err := p.FetchTrade(context.Background(), []int{2014})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, records, 1)
	assert.InDelta(t, 7.0, records[0].ValueUSD, 1e-9)
}

func TestFetchTrade_ThrottledWithoutRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	p, err := NewWithConfig(Config{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	_, err = p.FetchTrade(context.Background(), []int{2014})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFetchTrade_QuotaExceeded(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"statusCode":403,"message":"Out of call volume quota."}`))
	})

	_, err := p.FetchTrade(context.Background(), []int{2014})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrQuotaExceeded))
}

func TestFetchTrade_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"error":"invalid period"}`))
	})

	_, err := p.FetchTrade(context.Background(), []int{2014})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid period")
}

func TestParseRetrySeconds(t *testing.T) {
	assert.Equal(t, 12, parseRetrySeconds("Rate limit is exceeded. Try again in 12 seconds."))
	assert.Equal(t, 0, parseRetrySeconds("slow down"))
}

package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"SignalScanner/internal/model"
)

// DefaultYahooBaseURL is the public chart API host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource implements Source using the Yahoo Finance v8 chart API.
type YahooSource struct {
	BaseURL   string
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
	http      *httpClient
}

// NewYahooSource creates a Yahoo source. baseURL and proxyURL may be empty.
func NewYahooSource(baseURL, proxyURL string, timeout time.Duration) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
			"DJI":    "^DJI",
			"NDX":    "^NDX",
		},
		http: newHTTPClient(proxyURL, timeout),
	}
}

func (y *YahooSource) Name() string { return "yahoo" }

func (y *YahooSource) yahooSymbol(symbol string) string {
	if mapped, ok := y.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// Fetch downloads daily bars for the window. Window values double as Yahoo ranges.
func (y *YahooSource) Fetch(ctx context.Context, symbol string, window model.Window) (*model.Series, error) {
	if err := validate(symbol, window); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		y.BaseURL, url.PathEscape(y.yahooSymbol(symbol)), window)

	res, err := y.http.get(ctx, u, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, unavailable(symbol, err)
	}
	if res.Status != 200 {
		// Yahoo answers unknown tickers with 404 and a chart error body
		return nil, statusError(symbol, res.Status, res.RetryAfter, res.Body)
	}

	bars, err := parseYahooChart(symbol, res.Body)
	if err != nil {
		return nil, err
	}
	return &model.Series{
		Symbol:    symbol,
		Window:    window,
		Bars:      bars,
		Source:    y.Name(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func parseYahooChart(symbol string, body []byte) ([]model.OHLCV, error) {
	if !gjson.ValidBytes(body) {
		return nil, unavailable(symbol, errors.New("yahoo: malformed response"))
	}
	doc := gjson.ParseBytes(body)

	if chartErr := doc.Get("chart.error"); chartErr.Exists() && chartErr.Type != gjson.Null {
		desc := chartErr.Get("description").String()
		if strings.EqualFold(chartErr.Get("code").String(), "Not Found") {
			return nil, notFound(symbol, fmt.Errorf("yahoo: %s", desc))
		}
		return nil, unavailable(symbol, fmt.Errorf("yahoo api error: %s", desc))
	}

	result := doc.Get("chart.result.0")
	timestamps := result.Get("timestamp").Array()
	if len(timestamps) == 0 {
		return nil, notFound(symbol, errors.New("yahoo: no data returned"))
	}

	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	bars := make([]model.OHLCV, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) || closes[i].Type == gjson.Null {
			continue // null bars (holidays, halted sessions)
		}
		c := closes[i].Float()
		bar := model.OHLCV{
			Time:   time.Unix(ts.Int(), 0).UTC(),
			Open:   valueOr(opens, i, c),
			High:   valueOr(highs, i, c),
			Low:    valueOr(lows, i, c),
			Close:  c,
			Volume: valueOr(volumes, i, 0),
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, notFound(symbol, errors.New("yahoo: only empty bars returned"))
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func valueOr(vals []gjson.Result, i int, def float64) float64 {
	if i >= len(vals) || vals[i].Type == gjson.Null {
		return def
	}
	return vals[i].Float()
}

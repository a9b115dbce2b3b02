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

// RESTSource implements Source against a generic bars API:
//
//	GET {base}/api/v1/bars/daily?symbol=AAPL&limit=66
//
// returning a JSON array of {timestamp, open, high, low, close, volume}.
type RESTSource struct {
	BaseURL string
	APIKey  string
	http    *httpClient
}

// NewRESTSource creates a REST bars source with optional proxy support.
func NewRESTSource(baseURL, apiKey, proxyURL string, timeout time.Duration) *RESTSource {
	return &RESTSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		http:    newHTTPClient(proxyURL, timeout),
	}
}

func (r *RESTSource) Name() string { return "rest" }

func (r *RESTSource) Fetch(ctx context.Context, symbol string, window model.Window) (*model.Series, error) {
	if err := validate(symbol, window); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?symbol=%s&limit=%d",
		r.BaseURL, url.QueryEscape(symbol), window.TradingDays())

	var headers map[string]string
	if r.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + r.APIKey}
	}
	res, err := r.http.get(ctx, endpoint, headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, unavailable(symbol, err)
	}
	if res.Status != 200 {
		return nil, statusError(symbol, res.Status, res.RetryAfter, res.Body)
	}

	bars, err := parseRESTBars(symbol, res.Body)
	if err != nil {
		return nil, err
	}
	return &model.Series{
		Symbol:    symbol,
		Window:    window,
		Bars:      bars,
		Source:    r.Name(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func parseRESTBars(symbol string, body []byte) ([]model.OHLCV, error) {
	doc := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !doc.IsArray() {
		return nil, unavailable(symbol, errors.New("rest: expected a JSON array of bars"))
	}
	rows := doc.Array()
	if len(rows) == 0 {
		return nil, notFound(symbol, errors.New("rest: no bars returned"))
	}
	bars := make([]model.OHLCV, len(rows))
	for i, row := range rows {
		bars[i] = model.OHLCV{
			Time:   time.Unix(row.Get("timestamp").Int(), 0).UTC(),
			Open:   row.Get("open").Float(),
			High:   row.Get("high").Float(),
			Low:    row.Get("low").Float(),
			Close:  row.Get("close").Float(),
			Volume: row.Get("volume").Float(),
		}
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/model"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"AAPL"},
"timestamp":[1735828200,1735914600,1736001000,1736173800],
"indicators":{"quote":[{
 "open":[100.0,101.0,null,103.0],
 "high":[101.5,102.5,null,104.5],
 "low":[99.5,100.5,null,102.5],
 "close":[101.0,102.0,null,104.0],
 "volume":[1000,1100,null,1300]}]}}],"error":null}}`

const notFoundBody = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func newYahooServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			assert.Equal(t, "1d", r.URL.Query().Get("interval"))
			assert.Equal(t, "3mo", r.URL.Query().Get("range"))
			_, _ = w.Write([]byte(chartBody))
		case "/v8/finance/chart/^GSPC":
			_, _ = w.Write([]byte(chartBody))
		case "/v8/finance/chart/NOPE":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(notFoundBody))
		case "/v8/finance/chart/GONE":
			_, _ = w.Write([]byte(notFoundBody))
		case "/v8/finance/chart/BUSY":
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/v8/finance/chart/JUNK":
			_, _ = w.Write([]byte("<html>"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestYahooSource_Fetch(t *testing.T) {
	srv := newYahooServer(t)
	src := NewYahooSource(srv.URL, "", 5*time.Second)

	series, err := src.Fetch(context.Background(), "AAPL", model.Window3Mo)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", series.Symbol)
	assert.Equal(t, "yahoo", series.Source)
	require.Len(t, series.Bars, 3, "null bar must be skipped")
	assert.Equal(t, 104.0, series.Last().Close)
	assert.Equal(t, 1300.0, series.Last().Volume)
	for i := 1; i < len(series.Bars); i++ {
		assert.True(t, series.Bars[i-1].Time.Before(series.Bars[i].Time))
	}
}

func TestYahooSource_SymbolAlias(t *testing.T) {
	srv := newYahooServer(t)
	series, err := NewYahooSource(srv.URL, "", 5*time.Second).Fetch(context.Background(), "SPX", model.Window1Mo)
	require.NoError(t, err)
	assert.Equal(t, "SPX", series.Symbol)
}

func TestYahooSource_Errors(t *testing.T) {
	srv := newYahooServer(t)
	src := NewYahooSource(srv.URL, "", 5*time.Second)
	ctx := context.Background()

	tests := []struct {
		symbol string
		want   error
	}{
		{"NOPE", ErrNotFound},
		{"GONE", ErrNotFound},
		{"BUSY", ErrRateLimited},
		{"DOWN", ErrUnavailable},
		{"JUNK", ErrUnavailable},
	}
	for _, tt := range tests {
		_, err := src.Fetch(ctx, tt.symbol, model.Window3Mo)
		assert.True(t, errors.Is(err, tt.want), "%s: got %v", tt.symbol, err)
	}

	_, err := src.Fetch(ctx, "BUSY", model.Window3Mo)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3*time.Second, fe.RetryAfter)
	assert.Equal(t, "BUSY", fe.Symbol)
}

func TestYahooSource_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewYahooSource(url, "", time.Second).Fetch(context.Background(), "AAPL", model.Window1Mo)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestYahooSource_InvalidRequest(t *testing.T) {
	src := NewYahooSource("http://127.0.0.1:1", "", time.Second)
	_, err := src.Fetch(context.Background(), "", model.Window1Mo)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = src.Fetch(context.Background(), "AAPL", model.Window("5y"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestBarParsesNewestBar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"bars":[
			{"symbol":"AAPL","ts_event":"2026-01-05T14:50:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":10},
			{"symbol":"AAPL","ts_event":"2026-01-05T14:55:00Z","open":230.0,"high":232.0,"low":229.0,"close":231.0,"volume":120000}
		]}`)
	}))
	defer srv.Close()

	f := NewBarFetcher(srv.URL, "test-key")
	bar, err := f.LatestBar("AAPL")
	require.NoError(t, err)
	require.NotNil(t, bar)

	assert.Equal(t, "AAPL", bar.Symbol)
	assert.Equal(t, 231.0, bar.Close)
	assert.Equal(t, int64(120000), bar.Volume)
	assert.Equal(t, "2026-01-05T14:55:00Z", bar.Timestamp.Format("2006-01-02T15:04:05Z"))
	assert.InDelta(t, (232.0-229.0)/231.0, bar.RangePct, 1e-12)
}

func TestLatestBarNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bars":[]}`)
	}))
	defer srv.Close()

	bar, err := NewBarFetcher(srv.URL, "").LatestBar("XYZ")
	require.NoError(t, err)
	assert.Nil(t, bar)
}

func TestLatestBarNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	bar, err := NewBarFetcher(srv.URL, "").LatestBar("GONE")
	require.NoError(t, err)
	assert.Nil(t, bar)
}

func TestLatestBarServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewBarFetcher(srv.URL, "").LatestBar("AAPL")
	assert.Error(t, err)
}

func TestRangePct(t *testing.T) {
	assert.InDelta(t, 0.02, RangePct(102, 100, 100), 1e-12)
	assert.Zero(t, RangePct(10, 5, 0))
}

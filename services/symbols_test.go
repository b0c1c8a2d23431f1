package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constituentsCSV(n int) string {
	var b strings.Builder
	b.WriteString("Symbol,Name,Sector\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "SYM%03d,Company %d,Industrials\n", i, i)
	}
	return b.String()
}

func newTestSymbolService(t *testing.T, url string) *SymbolService {
	t.Helper()
	s := NewSymbolService(filepath.Join(t.TempDir(), "constituents.csv"))
	s.URL = url
	s.Retries = 1
	s.Backoff = time.Millisecond
	return s
}

func TestSymbolsFetchesAndCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, constituentsCSV(500))
	}))
	defer srv.Close()

	s := newTestSymbolService(t, srv.URL)
	symbols, err := s.Symbols()
	require.NoError(t, err)
	assert.Len(t, symbols, 500)
	assert.FileExists(t, s.CachePath)
}

func TestSymbolsFallsBackToCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestSymbolService(t, srv.URL)
	require.NoError(t, os.WriteFile(s.CachePath, []byte("Symbol,Name\nAAPL,Apple\nBRK.B,Berkshire\n"), 0644))

	symbols, err := s.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "BRK-B"}, symbols)
}

func TestSymbolsFallsBackWithoutFinalBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestSymbolService(t, srv.URL)
	s.Backoff = 300 * time.Millisecond
	require.NoError(t, os.WriteFile(s.CachePath, []byte("Symbol,Name\nAAPL,Apple\n"), 0644))

	start := time.Now()
	symbols, err := s.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)
	assert.Less(t, time.Since(start), s.Backoff,
		"the last failed attempt must fall through to the cache without sleeping")
}

func TestSymbolsErrorsWithoutRemoteOrCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestSymbolService(t, srv.URL)
	_, err := s.Symbols()
	assert.Error(t, err)
}

func TestSymbolsRejectsTruncatedUniverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, constituentsCSV(10))
	}))
	defer srv.Close()

	s := newTestSymbolService(t, srv.URL)
	_, err := s.Symbols()
	assert.Error(t, err, "a universe far below 400 symbols must not be trusted")
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BRK-B", NormalizeSymbol("BRK.B"))
	assert.Equal(t, "BF-B", NormalizeSymbol(" bf.b "))
	assert.Equal(t, "AAPL", NormalizeSymbol("AAPL"))
}

func TestShardSliceCoversUniverseWithoutOverlap(t *testing.T) {
	symbols := make([]string, 503)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%03d", i)
	}

	const shards = 8
	seen := map[string]int{}
	for shard := 0; shard < shards; shard++ {
		for _, sym := range ShardSlice(symbols, shard, shards) {
			seen[sym]++
		}
	}

	assert.Len(t, seen, len(symbols), "every symbol assigned")
	for sym, count := range seen {
		assert.Equal(t, 1, count, "symbol %s assigned once", sym)
	}
}

func TestShardSliceStride(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}
	assert.Equal(t, []string{"A", "D"}, ShardSlice(symbols, 0, 3))
	assert.Equal(t, []string{"B", "E"}, ShardSlice(symbols, 1, 3))
	assert.Equal(t, []string{"C"}, ShardSlice(symbols, 2, 3))
}

func TestShardSliceInvalidInputs(t *testing.T) {
	symbols := []string{"A", "B"}
	assert.Nil(t, ShardSlice(symbols, 0, 0))
	assert.Nil(t, ShardSlice(symbols, -1, 4))
	assert.Nil(t, ShardSlice(symbols, 4, 4))
}

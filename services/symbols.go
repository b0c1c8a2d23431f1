package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SP500URL is the public constituents list used as the symbol universe.
const SP500URL = "https://raw.githubusercontent.com/datasets/s-and-p-500-companies/main/data/constituents.csv"

// minUniverseSize guards against caching a truncated or garbage response.
const minUniverseSize = 400

// SymbolService loads the S&P 500 symbol universe with a local CSV cache
type SymbolService struct {
	URL        string
	CachePath  string
	Retries    int
	Backoff    time.Duration
	httpClient *http.Client
}

// NewSymbolService creates a symbol service caching at cachePath
func NewSymbolService(cachePath string) *SymbolService {
	return &SymbolService{
		URL:       SP500URL,
		CachePath: cachePath,
		Retries:   3,
		Backoff:   2 * time.Second,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Symbols returns the sorted symbol universe. It tries the remote list with
// retries and exponential backoff, refreshing the cache on success, and falls
// back to the cache when the remote is unreachable.
func (s *SymbolService) Symbols() ([]string, error) {
	var lastErr error
	for i := 0; i < s.Retries; i++ {
		symbols, raw, err := s.fetchRemote()
		if err == nil {
			if cacheErr := atomicWriteFile(s.CachePath, raw); cacheErr != nil {
				log.Printf("Warning: could not refresh symbol cache: %v", cacheErr)
			}
			sort.Strings(symbols)
			return symbols, nil
		}
		lastErr = err
		if i < s.Retries-1 {
			time.Sleep(s.Backoff * (1 << i))
		}
	}

	// Fallback cache
	if _, err := os.Stat(s.CachePath); err == nil {
		f, err := os.Open(s.CachePath)
		if err != nil {
			return nil, fmt.Errorf("symbol cache unreadable: %w", err)
		}
		defer f.Close()
		symbols, err := parseConstituents(f)
		if err != nil {
			return nil, fmt.Errorf("symbol cache invalid at %s: %w", s.CachePath, err)
		}
		log.Printf("Using cached symbol universe (%d symbols)", len(symbols))
		sort.Strings(symbols)
		return symbols, nil
	}

	return nil, fmt.Errorf("failed to fetch symbols and no cache at %s: %w", s.CachePath, lastErr)
}

func (s *SymbolService) fetchRemote() ([]string, []byte, error) {
	resp, err := s.httpClient.Get(s.URL)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("constituents fetch returned %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	symbols, err := parseConstituents(strings.NewReader(string(raw)))
	if err != nil {
		return nil, nil, err
	}
	if len(symbols) < minUniverseSize {
		return nil, nil, fmt.Errorf("too few symbols (%d), possible bad response", len(symbols))
	}
	return symbols, raw, nil
}

// parseConstituents extracts the Symbol column from the constituents CSV
func parseConstituents(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty constituents CSV")
	}

	symbolCol := -1
	for i, name := range records[0] {
		if name == "Symbol" {
			symbolCol = i
			break
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("expected 'Symbol' column, got columns=%v", records[0])
	}

	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if symbolCol >= len(row) {
			continue
		}
		sym := NormalizeSymbol(row[symbolCol])
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// NormalizeSymbol maps index-style tickers to data-provider style:
// BRK.B -> BRK-B, BF.B -> BF-B.
func NormalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(sym, ".", "-")))
}

// ShardSlice returns the stride partition of symbols owned by one shard:
// element i belongs to shard i % shards. Partitions are disjoint and cover
// the whole universe; ordering within a shard follows the input ordering, so
// callers should sort first for stable assignment across runs.
func ShardSlice(symbols []string, shard, shards int) []string {
	if shards <= 0 || shard < 0 || shard >= shards {
		return nil
	}
	var out []string
	for i := shard; i < len(symbols); i += shards {
		out = append(out, symbols[i])
	}
	return out
}

// atomicWriteFile writes data to path via a temp file + rename
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".constituents-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

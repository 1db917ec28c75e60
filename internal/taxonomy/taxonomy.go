// Package taxonomy resolves organism scientific names to candidate NCBI
// taxon IDs via the ENA suggestion endpoint. Lookups are cached on disk so
// repeated submissions of the same organisms do not re-hit the service.
package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// DefaultBaseURL is the ENA scientific-name suggestion endpoint.
const DefaultBaseURL = "https://www.ebi.ac.uk/ena/data/taxonomy/v1/taxon/scientific-name/"

// httpClient performs requests; tests may replace it with a mock transport.
var httpClient = &http.Client{Timeout: 20 * time.Second}

// Cache structures
type cachedEntry struct {
	TaxIDs      []int `json:"tax_ids"`
	RetrievedAt int64 `json:"retrieved_at"`
}

var (
	cacheMu       sync.RWMutex
	cache         map[string]cachedEntry
	cacheLoaded   bool
	cacheFilePath string
	cacheTTLSecs  int64 = 7 * 24 * 3600
)

// SetCacheFilePath overrides the on-disk cache location.
func SetCacheFilePath(path string) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cacheFilePath = path
	cacheLoaded = false
	cache = nil
}

// SetCacheTTLSeconds overrides the cache entry lifetime. Zero or negative
// disables expiry.
func SetCacheTTLSeconds(secs int64) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cacheTTLSecs = secs
}

// FlushCache writes the in-memory cache to disk.
func FlushCache() {
	saveCache()
}

func defaultCachePath() string {
	if cacheFilePath != "" {
		return cacheFilePath
	}
	if dir, err := os.UserCacheDir(); err == nil {
		p := filepath.Join(dir, "txmb")
		_ = os.MkdirAll(p, 0o755)
		return filepath.Join(p, "taxonomy_cache.json")
	}
	return filepath.Join(os.TempDir(), "txmb_taxonomy_cache.json")
}

func loadCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cacheLoaded {
		return
	}
	path := defaultCachePath()
	cache = make(map[string]cachedEntry)
	data, err := os.ReadFile(path)
	if err != nil {
		cacheLoaded = true
		return
	}
	_ = json.Unmarshal(data, &cache)
	cacheLoaded = true
}

func saveCache() {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if cache == nil {
		return
	}
	path := defaultCachePath()
	b, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, b, 0o644)
}

func getCached(name string) ([]int, bool) {
	loadCache()
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	e, ok := cache[name]
	if !ok {
		return nil, false
	}
	if cacheTTLSecs > 0 && time.Now().Unix()-e.RetrievedAt > cacheTTLSecs {
		return nil, false
	}
	return e.TaxIDs, true
}

func setCached(name string, ids []int) {
	if name == "" || len(ids) == 0 {
		return
	}
	loadCache()
	cacheMu.Lock()
	cache[name] = cachedEntry{TaxIDs: ids, RetrievedAt: time.Now().Unix()}
	cacheMu.Unlock()
	saveCache()
}

// suggestion is one entry of the ENA response array. The service reports
// taxId as a JSON string.
type suggestion struct {
	TaxID string `json:"taxId"`
}

// Client queries the suggestion endpoint. The zero value uses
// DefaultBaseURL.
type Client struct {
	BaseURL string
}

// SuggestTaxIDs returns every taxon ID the service associates with the
// given scientific name. A non-nil error means the service could not be
// reached; a response that does not parse as a suggestion list yields an
// empty result and no error, as does a genuinely empty suggestion list.
func (c *Client) SuggestTaxIDs(ctx context.Context, name string) ([]int, error) {
	if ids, ok := getCached(name); ok {
		return ids, nil
	}

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	reqURL := base + url.PathEscape(name)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "txmb-validator/1.0")
		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt*300) * time.Millisecond)
			continue
		}

		if resp.StatusCode == 429 {
			resp.Body.Close()
			lastErr = fmt.Errorf("taxonomy suggest returned 429")
			wait := time.Duration(attempt*500) * time.Millisecond
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			time.Sleep(wait)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != 200 {
			return nil, fmt.Errorf("taxonomy suggest returned status %d: %s", resp.StatusCode, string(data))
		}
		if err != nil {
			return nil, err
		}

		var suggestions []suggestion
		if err := json.Unmarshal(data, &suggestions); err != nil {
			// not a suggestion list; callers treat the empty result as no match
			return nil, nil
		}
		ids := make([]int, 0, len(suggestions))
		for _, s := range suggestions {
			id, err := strconv.Atoi(s.TaxID)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		setCached(name, ids)
		return ids, nil
	}
	return nil, lastErr
}

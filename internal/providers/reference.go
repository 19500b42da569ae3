package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	referenceCacheKey = "reference_photo"
	referenceCacheTTL = 12 * time.Hour
	maxReferenceBytes = 10 << 20
)

// ReferenceFetcher downloads the fixed character photo used to condition
// image-edit generation. The photo changes essentially never, so bytes are
// cached between runs to spare one outbound call per generation.
type ReferenceFetcher struct {
	url    string
	client *http.Client
	cache  *gocache.Cache
}

// NewReferenceFetcher builds a fetcher for the given URL. An empty URL is
// allowed and yields a fetcher that always returns nil bytes (pure
// text-to-image mode).
func NewReferenceFetcher(url string, timeout time.Duration) *ReferenceFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ReferenceFetcher{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		cache:  gocache.New(referenceCacheTTL, referenceCacheTTL),
	}
}

// Fetch returns the reference photo bytes, or nil when no URL is configured.
func (f *ReferenceFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f == nil || f.url == "" {
		return nil, nil
	}

	if cached, ok := f.cache.Get(referenceCacheKey); ok {
		if data, ok := cached.([]byte); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("reference: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reference: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
	if err != nil {
		return nil, fmt.Errorf("reference: read body: %w", err)
	}

	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, errors.New("reference: downloaded payload is not an image")
	}

	f.cache.Set(referenceCacheKey, data, gocache.DefaultExpiration)
	return data, nil
}

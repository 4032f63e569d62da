package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultAffinityPageLimit caps the pages walked per platform and build.
	DefaultAffinityPageLimit = 15

	// DefaultAffinityTTL is how long a cached index stays fresh.
	DefaultAffinityTTL = time.Hour
)

// AffinityIndex holds, per platform, the authors the user has engaged with.
// Authors are identified by Author.Key.
type AffinityIndex struct {
	ByPlatform map[Platform]map[string]struct{}

	// Warnings lists the platforms whose walk stopped early. The index is
	// usable regardless.
	Warnings []*PartialDataWarning
}

// NewAffinityIndex returns an empty index.
func NewAffinityIndex() *AffinityIndex {
	return &AffinityIndex{ByPlatform: make(map[Platform]map[string]struct{})}
}

// Has reports whether author is in the platform's set. A nil index has no
// authors.
func (a *AffinityIndex) Has(platform Platform, author string) bool {
	if a == nil {
		return false
	}
	_, ok := a.ByPlatform[platform][author]
	return ok
}

// Len returns the size of the platform's set.
func (a *AffinityIndex) Len(platform Platform) int {
	if a == nil {
		return 0
	}
	return len(a.ByPlatform[platform])
}

// Authors returns the platform's set, sorted.
func (a *AffinityIndex) Authors(platform Platform) []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.ByPlatform[platform]))
	for k := range a.ByPlatform[platform] {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (a *AffinityIndex) set(platform Platform, authors []string) {
	set := make(map[string]struct{}, len(authors))
	for _, k := range authors {
		set[k] = struct{}{}
	}
	a.ByPlatform[platform] = set
}

// AffinityCache persists indexes per (platform, identifier) with an explicit
// expiry. Concurrent writers overwrite each other.
type AffinityCache struct {
	store CacheStore
	ttl   time.Duration
	now   func() time.Time
}

type affinityEntry struct {
	Authors   []string  `json:"authors"`
	Partial   bool      `json:"partial,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewAffinityCache wraps store. A non-positive ttl means DefaultAffinityTTL.
func NewAffinityCache(store CacheStore, ttl time.Duration) *AffinityCache {
	if ttl <= 0 {
		ttl = DefaultAffinityTTL
	}
	return &AffinityCache{store: store, ttl: ttl, now: time.Now}
}

const affinityCacheName = "affinity"

func affinityCacheKey(platform Platform, identifier string) string {
	return fmt.Sprintf("affinity-%s-%s", platform, identifier)
}

// Get returns the cached authors. Expired and missing entries report false.
func (c *AffinityCache) Get(ctx context.Context, platform Platform, identifier string) ([]string, bool, error) {
	val, err := c.store.Get(ctx, affinityCacheName, affinityCacheKey(platform, identifier))
	if err != nil {
		return nil, false, fmt.Errorf("read affinity cache: %w", err)
	}
	if val == "" {
		return nil, false, nil
	}
	var entry affinityEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, false, fmt.Errorf("decode affinity cache entry: %w", err)
	}
	if !c.now().Before(entry.ExpiresAt) {
		return nil, false, nil
	}
	return entry.Authors, true, nil
}

// Put stores authors until now+ttl.
func (c *AffinityCache) Put(ctx context.Context, platform Platform, identifier string, authors []string, partial bool) error {
	data, err := json.Marshal(affinityEntry{
		Authors:   authors,
		Partial:   partial,
		ExpiresAt: c.now().Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("encode affinity cache entry: %w", err)
	}
	if err := c.store.Set(ctx, affinityCacheName, affinityCacheKey(platform, identifier), string(data)); err != nil {
		return fmt.Errorf("write affinity cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry.
func (c *AffinityCache) Invalidate(ctx context.Context, platform Platform, identifier string) error {
	return c.store.Purge(ctx, affinityCacheName, affinityCacheKey(platform, identifier))
}

// AffinityRequest selects whose history is walked.
type AffinityRequest struct {
	Identifiers map[Platform]string

	// Kind is the history walked; likes when empty.
	Kind FeedKind

	// Refresh bypasses the cache read. The result is still written back.
	Refresh bool
}

// AffinityBuilder walks liked or bookmarked history into an AffinityIndex.
type AffinityBuilder struct {
	fetchers  map[Platform]PageFetcher
	cache     *AffinityCache
	pageLimit int
	logger    *slog.Logger
}

// NewAffinityBuilder returns a builder. cache may be nil.
func NewAffinityBuilder(fetchers map[Platform]PageFetcher, cache *AffinityCache, pageLimit int, logger *slog.Logger) *AffinityBuilder {
	if pageLimit <= 0 {
		pageLimit = DefaultAffinityPageLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AffinityBuilder{fetchers: fetchers, cache: cache, pageLimit: pageLimit, logger: logger}
}

// Build walks each requested platform concurrently. Walk failures never fail
// the build; they produce a partial set and a warning. Only malformed
// identifiers are returned as errors.
func (b *AffinityBuilder) Build(ctx context.Context, req AffinityRequest) (*AffinityIndex, error) {
	if req.Kind == "" {
		req.Kind = FeedLikes
	}

	idents := make(map[Platform]string)
	for _, p := range Platforms {
		raw := req.Identifiers[p]
		if raw == "" || b.fetchers[p] == nil {
			continue
		}
		ident, err := ValidateIdentifier(p, raw)
		if err != nil {
			return nil, err
		}
		idents[p] = ident
	}

	idx := NewAffinityIndex()
	var mu sync.Mutex
	var g errgroup.Group
	for p, ident := range idents {
		g.Go(func() error {
			authors, warning := b.platformAuthors(ctx, p, ident, req)
			mu.Lock()
			defer mu.Unlock()
			idx.set(p, authors)
			if warning != nil {
				idx.Warnings = append(idx.Warnings, warning)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(idx.Warnings, func(a, b *PartialDataWarning) int {
		if a.Platform < b.Platform {
			return -1
		}
		if a.Platform > b.Platform {
			return 1
		}
		return 0
	})
	return idx, nil
}

func (b *AffinityBuilder) platformAuthors(ctx context.Context, platform Platform, ident string, req AffinityRequest) ([]string, *PartialDataWarning) {
	if b.cache != nil && !req.Refresh {
		authors, ok, err := b.cache.Get(ctx, platform, ident)
		switch {
		case err != nil:
			b.logger.Warn("affinity cache read failed", "platform", platform, "error", err)
		case ok:
			affinityBuilds.WithLabelValues(string(platform), "cached").Inc()
			return authors, nil
		}
	}

	authors, warning := b.walk(ctx, platform, PageRequest{Identifier: ident, Kind: req.Kind})
	outcome := "complete"
	if warning != nil {
		outcome = "partial"
		b.logger.Info("affinity index is partial", "platform", platform, "pages", warning.PagesFetched, "reason", warning.Reason)
	}
	affinityBuilds.WithLabelValues(string(platform), outcome).Inc()

	if b.cache != nil {
		if err := b.cache.Put(ctx, platform, ident, authors, warning != nil); err != nil {
			b.logger.Warn("affinity cache write failed", "platform", platform, "error", err)
		}
	}
	return authors, warning
}

func (b *AffinityBuilder) walk(ctx context.Context, platform Platform, req PageRequest) ([]string, *PartialDataWarning) {
	seen := make(map[string]struct{})
	var authors []string

	for pages := 0; ; {
		if pages >= b.pageLimit {
			return authors, &PartialDataWarning{Platform: platform, PagesFetched: pages, Reason: "page limit reached"}
		}
		page, err := fetchPage(ctx, b.fetchers[platform], req)
		if err != nil {
			return authors, &PartialDataWarning{Platform: platform, PagesFetched: pages, Reason: "page fetch failed", Err: asTransportError(platform, "fetch affinity page", err)}
		}
		pages++

		for _, item := range page.Items {
			key := Normalize(item).Author.Key()
			if key == "" {
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				authors = append(authors, key)
			}
		}

		if page.NextCursor == "" || page.NextCursor == req.Cursor {
			return authors, nil
		}
		req.Cursor = page.NextCursor
	}
}

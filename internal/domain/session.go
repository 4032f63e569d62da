package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

// SessionConfig describes one unified feed.
type SessionConfig struct {
	// Identifiers maps each platform to load to its account identifier.
	// Platforms without an identifier are skipped.
	Identifiers map[Platform]string

	// Kind is the history to page through; timeline when empty.
	Kind FeedKind

	// HideReplies and HideReposts are forwarded upstream. They are
	// independent of the view Filters.
	HideReplies bool
	HideReposts bool

	Filters Filters
	Dedupe  DedupeOptions

	// OnPage, when set, is called with the recomputed view after every page
	// merge, on the goroutine that called LoadMore or LoadAll.
	OnPage func(View)
}

// Session is the feed assembler: it owns one cursor per platform, the
// aggregated post set and the derived view. A Session is not safe for
// concurrent use; LoadAll fans pages in to the calling goroutine.
type Session struct {
	clients map[Platform]PlatformClient
	cfg     SessionConfig
	logger  *slog.Logger

	order  []Platform
	states map[Platform]*platformState

	posts []Post
	seen  map[PostKey]struct{}
	view  View
}

type platformState struct {
	identifier string
	profile    *Profile
	cursor     string
	started    bool
	done       bool
	err        error
}

type pageResult struct {
	platform Platform
	cursor   string
	page     *Page
	err      error
}

// NewSession validates the configured identifiers. No network call is made.
func NewSession(clients map[Platform]PlatformClient, cfg SessionConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Kind == "" {
		cfg.Kind = FeedTimeline
	}

	s := &Session{
		clients: clients,
		cfg:     cfg,
		logger:  logger,
		states:  make(map[Platform]*platformState),
		seen:    make(map[PostKey]struct{}),
	}

	for _, p := range Platforms {
		raw, ok := cfg.Identifiers[p]
		if !ok || raw == "" {
			continue
		}
		ident, err := ValidateIdentifier(p, raw)
		if err != nil {
			return nil, err
		}
		if clients[p] == nil {
			return nil, &ConfigurationError{Platform: p, Input: raw, Reason: "platform client not configured"}
		}
		s.order = append(s.order, p)
		s.states[p] = &platformState{identifier: ident}
	}
	if len(s.order) == 0 {
		return nil, &ConfigurationError{Reason: "no account identifiers given"}
	}

	s.view = BuildView(nil, cfg.Filters, cfg.Dedupe)
	return s, nil
}

// Open fetches, concurrently per platform, the profile and the first page. A
// failing platform is marked done with its error; Open only fails when every
// platform failed.
func (s *Session) Open(ctx context.Context) error {
	type opened struct {
		profile *Profile
		result  pageResult
	}
	out := make([]opened, len(s.order))

	var g errgroup.Group
	for i, p := range s.order {
		ident := s.states[p].identifier
		g.Go(func() error {
			profile, err := s.clients[p].FetchProfile(ctx, ident)
			if err != nil {
				out[i].result = pageResult{platform: p, err: asTransportError(p, "fetch profile", err)}
				return nil
			}
			out[i].profile = profile
			page, err := s.fetch(ctx, p, s.request(p, ""))
			out[i].result = pageResult{platform: p, page: page, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range out {
		s.states[o.result.platform].profile = o.profile
		if err := s.apply(o.result); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(s.order) {
		return errors.Join(errs...)
	}
	return nil
}

// LoadMore fetches the next page of one platform. It is a no-op once the
// platform's cursor is exhausted. A failure ends that platform's pagination.
func (s *Session) LoadMore(ctx context.Context, platform Platform) error {
	st, ok := s.states[platform]
	if !ok {
		return &ConfigurationError{Platform: platform, Reason: "platform not part of this session"}
	}
	if st.done {
		return nil
	}
	page, err := s.fetch(ctx, platform, s.request(platform, st.cursor))
	return s.apply(pageResult{platform: platform, cursor: st.cursor, page: page, err: err})
}

// LoadAll pages every platform until its cursor is exhausted. Platforms are
// walked concurrently and independently; each page is merged, and the view
// recomputed, as it arrives. The returned error joins the per-platform
// failures of this call. Posts fetched before a failure are kept.
func (s *Session) LoadAll(ctx context.Context) error {
	results := make(chan pageResult)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.order {
		st := s.states[p]
		if st.done {
			continue
		}
		req := s.request(p, st.cursor)
		g.Go(func() error {
			s.walk(gctx, p, req, results)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var errs []error
	for r := range results {
		if err := s.apply(r); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// walk owns one platform's cursor for the duration of a LoadAll.
func (s *Session) walk(ctx context.Context, platform Platform, req PageRequest, results chan<- pageResult) {
	for {
		page, err := s.fetch(ctx, platform, req)
		select {
		case results <- pageResult{platform: platform, cursor: req.Cursor, page: page, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil || page.NextCursor == "" || page.NextCursor == req.Cursor {
			return
		}
		req.Cursor = page.NextCursor
	}
}

func (s *Session) request(platform Platform, cursor string) PageRequest {
	return PageRequest{
		Identifier:  s.states[platform].identifier,
		Cursor:      cursor,
		Kind:        s.cfg.Kind,
		HideReplies: s.cfg.HideReplies,
		HideReposts: s.cfg.HideReposts,
	}
}

func (s *Session) fetch(ctx context.Context, platform Platform, req PageRequest) (*Page, error) {
	page, err := fetchPage(ctx, s.clients[platform], req)
	if err != nil {
		pagesFailed.WithLabelValues(string(platform)).Inc()
		return nil, asTransportError(platform, "fetch page", err)
	}
	pagesMerged.WithLabelValues(string(platform)).Inc()
	return page, nil
}

// apply merges one fetch outcome into the session state.
func (s *Session) apply(r pageResult) error {
	st := s.states[r.platform]
	if r.err != nil {
		st.done = true
		st.cursor = ""
		st.err = r.err
		s.logger.Warn("platform pagination stopped", "platform", r.platform, "error", r.err)
		return fmt.Errorf("%s: %w", r.platform, r.err)
	}

	added := s.merge(NormalizeAll(r.page.Items))
	st.started = true
	st.cursor = r.page.NextCursor
	st.done = r.page.NextCursor == "" || (r.cursor != "" && r.page.NextCursor == r.cursor)

	s.logger.Debug("page merged", "platform", r.platform, "items", len(r.page.Items), "added", added, "cursor", st.cursor)
	s.recompute()
	if s.cfg.OnPage != nil {
		s.cfg.OnPage(s.view)
	}
	return nil
}

// merge appends posts not seen before and restores newest-first order.
func (s *Session) merge(posts []Post) int {
	added := 0
	for _, p := range posts {
		if _, ok := s.seen[p.Key()]; ok {
			continue
		}
		s.seen[p.Key()] = struct{}{}
		s.posts = append(s.posts, p)
		added++
	}
	if added > 0 {
		SortPosts(s.posts, SortNewest)
	}
	return added
}

func (s *Session) recompute() {
	s.view = BuildView(s.posts, s.cfg.Filters, s.cfg.Dedupe)
	crosspostGroups.Set(float64(s.view.Groups()))
}

// SetFilters replaces the view configuration and recomputes the view.
func (s *Session) SetFilters(f Filters) {
	s.cfg.Filters = f
	s.recompute()
}

// Filters returns the current view configuration.
func (s *Session) Filters() Filters {
	return s.cfg.Filters
}

// View returns the current derived view.
func (s *Session) View() View {
	return s.view
}

// Feed returns the current top-level feed items.
func (s *Session) Feed() []FeedItem {
	return s.view.Items
}

// Posts returns a copy of every loaded post, newest first, unfiltered.
func (s *Session) Posts() []Post {
	return slices.Clone(s.posts)
}

// Platforms lists the platforms of this session in tag order.
func (s *Session) Platforms() []Platform {
	return slices.Clone(s.order)
}

// Cursor returns the platform's next-page token; empty when none is known.
func (s *Session) Cursor(platform Platform) string {
	if st, ok := s.states[platform]; ok {
		return st.cursor
	}
	return ""
}

// HasMore reports whether another page can be requested for the platform.
func (s *Session) HasMore(platform Platform) bool {
	st, ok := s.states[platform]
	return ok && !st.done
}

// Err returns the error that stopped the platform's pagination, if any.
func (s *Session) Err(platform Platform) error {
	if st, ok := s.states[platform]; ok {
		return st.err
	}
	return nil
}

// Errors returns every platform's terminal error.
func (s *Session) Errors() map[Platform]error {
	errs := make(map[Platform]error)
	for p, st := range s.states {
		if st.err != nil {
			errs[p] = st.err
		}
	}
	return errs
}

// Profile returns the profile fetched by Open, or nil.
func (s *Session) Profile(platform Platform) *Profile {
	if st, ok := s.states[platform]; ok {
		return st.profile
	}
	return nil
}

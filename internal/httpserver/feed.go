package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/export"
)

type feedPageRequest struct {
	Handle      string `json:"handle"`
	Platform    string `json:"platform"`
	Cursor      string `json:"cursor"`
	FeedType    string `json:"feedType"`
	Query       string `json:"query"`
	HideReplies bool   `json:"hideReplies"`
	HideReposts bool   `json:"hideReposts"`
}

// handleFeedPage exposes the raw paginated fetch of one platform.
func (s *Server) handleFeedPage(w http.ResponseWriter, r *http.Request) {
	var req feedPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body")
		return
	}

	platform, err := domain.ParsePlatform(req.Platform)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	client := s.clients[platform]
	if client == nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("%s is not configured", platform))
		return
	}
	kind, err := domain.ParseFeedKind(req.FeedType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	ident := req.Handle
	if kind == domain.FeedTimeline {
		if ident, err = domain.ValidateIdentifier(platform, req.Handle); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	page, err := client.FetchPage(r.Context(), domain.PageRequest{
		Identifier:  ident,
		Cursor:      req.Cursor,
		Kind:        kind,
		Query:       req.Query,
		HideReplies: req.HideReplies,
		HideReposts: req.HideReposts,
	})
	if err != nil {
		s.logger.Warn("feed page fetch failed", "platform", platform, "handle", ident, "cursor", req.Cursor, "error", err)
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]any{"feed": page.Items}
	if page.NextCursor != "" {
		resp["cursor"] = page.NextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

type feedItemResponse struct {
	Type    string                 `json:"type"`
	Post    *domain.Post           `json:"post,omitempty"`
	Replies []*domain.Thread       `json:"replies,omitempty"`
	Group   *domain.CrosspostGroup `json:"group,omitempty"`
}

type postsResponse struct {
	Profiles  map[domain.Platform]*domain.Profile `json:"profiles"`
	Errors    map[domain.Platform]string          `json:"errors,omitempty"`
	Cursors   map[domain.Platform]string          `json:"cursors,omitempty"`
	Filters   domain.Filters                      `json:"filters"`
	Total     int                                 `json:"total"`
	Feed      []feedItemResponse                  `json:"feed,omitempty"`
	Analytics *domain.Analytics                   `json:"analytics,omitempty"`
}

// handlePosts loads the unified feed of the given accounts and returns the
// filtered view with reply threads nested under their roots.
func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	session, err := s.loadSession(r, q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	view := session.View()
	resp := postsResponse{
		Profiles: make(map[domain.Platform]*domain.Profile),
		Errors:   make(map[domain.Platform]string),
		Cursors:  make(map[domain.Platform]string),
		Filters:  session.Filters(),
		Total:    len(view.Posts),
	}
	for _, p := range session.Platforms() {
		if profile := session.Profile(p); profile != nil {
			resp.Profiles[p] = profile
		}
		if err := session.Err(p); err != nil {
			resp.Errors[p] = err.Error()
		}
		if c := session.Cursor(p); c != "" {
			resp.Cursors[p] = c
		}
	}

	if q.Get("view") == "analytics" {
		loc := time.UTC
		if tz := q.Get("tz"); tz != "" {
			if loc, err = time.LoadLocation(tz); err != nil {
				writeError(w, http.StatusBadRequest, "InvalidRequest", "unknown time zone")
				return
			}
		}
		resp.Analytics = domain.Analyze(view.Posts, loc)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Feed = make([]feedItemResponse, 0, len(view.Items))
	for _, item := range view.Items {
		switch v := item.(type) {
		case domain.Post:
			resp.Feed = append(resp.Feed, feedItemResponse{
				Type:    "post",
				Post:    &v,
				Replies: view.Thread(v).Replies,
			})
		case domain.CrosspostGroup:
			resp.Feed = append(resp.Feed, feedItemResponse{Type: "crosspost", Group: &v})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport serializes exactly the filtered view that /api/posts returns
// for the same parameters.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	session, err := s.loadSession(r, q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	handle := q.Get("bsky")
	if handle == "" {
		handle = q.Get("mastodon")
	}
	now := time.Now()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(handle, format, now)))
	if err := export.Write(w, format, handle, session.View().Posts, now); err != nil {
		s.logger.Error("export failed", "format", format, "error", err)
	}
}

// loadSession opens a session for the accounts named in q and, with all=true,
// pages through their whole history.
func (s *Server) loadSession(r *http.Request, q url.Values) (*domain.Session, error) {
	includeReplies, err := boolParam(q, "replies")
	if err != nil {
		return nil, err
	}
	hideReposts, err := boolParam(q, "hideReposts")
	if err != nil {
		return nil, err
	}
	all, err := boolParam(q, "all")
	if err != nil {
		return nil, err
	}
	filters, err := filtersFromQuery(q)
	if err != nil {
		return nil, err
	}

	session, err := domain.NewSession(s.clients, domain.SessionConfig{
		Identifiers: map[domain.Platform]string{
			domain.PlatformBluesky:  q.Get("bsky"),
			domain.PlatformMastodon: q.Get("mastodon"),
		},
		HideReplies: !includeReplies,
		HideReposts: hideReposts,
		Filters:     filters,
		Dedupe:      s.cfg.Dedupe(),
	}, s.logger)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	if err := session.Open(ctx); err != nil {
		return nil, err
	}
	if all {
		// Per-platform failures stay on the session; only cancellation aborts.
		if err := session.LoadAll(ctx); err != nil && ctx.Err() != nil {
			return nil, err
		}
	}
	return session, nil
}

func filtersFromQuery(q url.Values) (domain.Filters, error) {
	var f domain.Filters
	var err error

	f.SearchTerm = q.Get("q")
	if f.SortBy, err = domain.ParseSortBy(q.Get("sort")); err != nil {
		return f, err
	}
	if f.HasMedia, err = boolParam(q, "media"); err != nil {
		return f, err
	}
	if f.HideReplies, err = boolParam(q, "hideReplies"); err != nil {
		return f, err
	}
	if f.HideReposts, err = boolParam(q, "hideReposts"); err != nil {
		return f, err
	}
	if v := q.Get("minLikes"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, &domain.ConfigurationError{Input: v, Reason: "minLikes must be a non-negative integer"}
		}
		f.MinLikes = n
	}
	return f, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &domain.ConfigurationError{Input: v, Reason: key + " must be a boolean"}
	}
	return b, nil
}

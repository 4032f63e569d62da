package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/stream"
)

type searchRequest struct {
	BlueskyHandle   string `json:"bskyHandle"`
	MastodonHandle  string `json:"mastodonHandle"`
	SearchQuery     string `json:"searchQuery"`
	SortBy          string `json:"sortBy"`
	RefreshAffinity bool   `json:"refreshAffinity"`
}

func (r searchRequest) identifiers() map[domain.Platform]string {
	ids := make(map[domain.Platform]string)
	if r.BlueskyHandle != "" {
		ids[domain.PlatformBluesky] = r.BlueskyHandle
	}
	if r.MastodonHandle != "" {
		ids[domain.PlatformMastodon] = r.MastodonHandle
	}
	return ids
}

type searchStats struct {
	Total    int                        `json:"total"`
	Counts   map[domain.Platform]int    `json:"counts"`
	Errors   map[domain.Platform]string `json:"errors,omitempty"`
	Affinity map[domain.Platform]int    `json:"affinity,omitempty"`
	Warnings []string                   `json:"warnings,omitempty"`
	Partial  bool                       `json:"partial"`
}

// handleSearch runs a search to completion and returns the ranked results.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SearchQuery) == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "searchQuery is required")
		return
	}
	sortBy, err := domain.ParseSearchSort(req.SortBy)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	ctx := r.Context()
	stats := searchStats{}

	var idx *domain.AffinityIndex
	if sortBy == domain.SearchBestMatch {
		idx, err = s.affinity.Build(ctx, domain.AffinityRequest{
			Identifiers: req.identifiers(),
			Refresh:     req.RefreshAffinity,
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		stats.Affinity = affinityCounts(idx)
		stats.Warnings = warningMessages(idx)
	}

	events := s.searcher.Stream(ctx, domain.SearchRequest{
		Query:       req.SearchQuery,
		Identifiers: req.identifiers(),
	})
	res := domain.CollectSearch(events, sortBy, s.cfg.Ranker(idx))
	if !res.Closed {
		err := context.Cause(ctx)
		if err == nil {
			err = errors.New("search ended before completion")
		}
		s.writeDomainError(w, err)
		return
	}

	stats.Total = len(res.Posts)
	stats.Counts = res.Counts
	stats.Errors = res.Errors
	stats.Partial = len(res.Errors) > 0 || len(stats.Warnings) > 0

	posts := res.Posts
	if posts == nil {
		posts = []domain.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts, "stats": stats})
}

// handleSearchStream relays search events over a websocket as they arrive.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	req, err := stream.DecodeRequest(r.URL.Query())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	err = s.relay.Serve(w, r, func(ctx context.Context) <-chan domain.SearchEvent {
		return s.searcher.Stream(ctx, req)
	})
	if err != nil {
		s.logger.Warn("search stream ended with error", "query", req.Query, "error", err)
	}
}

type affinityRequest struct {
	BlueskyHandle  string `json:"bskyHandle"`
	MastodonHandle string `json:"mastodonHandle"`
	Kind           string `json:"kind"`
	Refresh        bool   `json:"refresh"`
}

// handleAffinity builds (or reads from cache) the affinity index of the given
// accounts.
func (s *Server) handleAffinity(w http.ResponseWriter, r *http.Request) {
	var req affinityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body")
		return
	}
	kind := domain.FeedLikes
	if req.Kind != "" {
		var err error
		if kind, err = domain.ParseFeedKind(req.Kind); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	idx, err := s.affinity.Build(r.Context(), domain.AffinityRequest{
		Identifiers: searchRequest{BlueskyHandle: req.BlueskyHandle, MastodonHandle: req.MastodonHandle}.identifiers(),
		Kind:        kind,
		Refresh:     req.Refresh,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	warnings := warningMessages(idx)
	writeJSON(w, http.StatusOK, map[string]any{
		"authors":  affinityCounts(idx),
		"warnings": warnings,
		"partial":  len(warnings) > 0,
	})
}

func affinityCounts(idx *domain.AffinityIndex) map[domain.Platform]int {
	counts := make(map[domain.Platform]int)
	for p := range idx.ByPlatform {
		counts[p] = idx.Len(p)
	}
	return counts
}

func warningMessages(idx *domain.AffinityIndex) []string {
	out := make([]string, 0, len(idx.Warnings))
	for _, w := range idx.Warnings {
		out = append(out, w.Error())
	}
	return out
}

package stream

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

// Query parameters understood by the search stream endpoint.
const (
	paramQuery    = "searchQuery"
	paramBluesky  = "bskyHandle"
	paramMastodon = "mastodonHandle"
	paramPlatform = "platform"
)

// EncodeRequest renders a search request as stream endpoint query parameters.
func EncodeRequest(req domain.SearchRequest) url.Values {
	q := url.Values{}
	q.Set(paramQuery, req.Query)
	if h := req.Identifiers[domain.PlatformBluesky]; h != "" {
		q.Set(paramBluesky, h)
	}
	if h := req.Identifiers[domain.PlatformMastodon]; h != "" {
		q.Set(paramMastodon, h)
	}
	for _, p := range req.Platforms {
		q.Add(paramPlatform, string(p))
	}
	return q
}

// DecodeRequest parses stream endpoint query parameters. An empty query is
// accepted here; the searcher reports it as an error event.
func DecodeRequest(q url.Values) (domain.SearchRequest, error) {
	req := domain.SearchRequest{
		Query:       strings.TrimSpace(q.Get(paramQuery)),
		Identifiers: make(map[domain.Platform]string),
	}
	if h := q.Get(paramBluesky); h != "" {
		req.Identifiers[domain.PlatformBluesky] = h
	}
	if h := q.Get(paramMastodon); h != "" {
		req.Identifiers[domain.PlatformMastodon] = h
	}
	for _, raw := range q[paramPlatform] {
		p, err := domain.ParsePlatform(raw)
		if err != nil {
			return domain.SearchRequest{}, err
		}
		req.Platforms = append(req.Platforms, p)
	}
	return req, nil
}

func parseEvent(data []byte) (*domain.SearchEvent, error) {
	var ev domain.SearchEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	switch ev.Type {
	case domain.SearchEventPost:
		if ev.Post == nil {
			return nil, fmt.Errorf("post event without post")
		}
	case domain.SearchEventError, domain.SearchEventClose:
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return &ev, nil
}

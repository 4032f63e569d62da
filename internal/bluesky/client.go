package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/robusthttp"
)

const (
	defaultAppView = "https://public.api.bsky.app"
	defaultPDS     = "https://bsky.social"

	authorFeedLimit = 50
	searchLimit     = 100
	likesLimit      = 100
	followsLimit    = 100
)

// Client is a minimal AT Protocol client for reading feeds. Public reads go to
// the AppView; likes, bookmarks and (when logged in) search go through the
// PDS with the session token.
type Client struct {
	appview    string
	pds        string
	httpClient *http.Client
	logger     *slog.Logger

	mu sync.RWMutex
	// populated after Login
	accessJwt string
	did       string
	handle    string
}

// NewClient creates a new client. Empty hosts take the public defaults; a nil
// httpClient gets a retrying client.
func NewClient(appview, pds string, httpClient *http.Client, logger *slog.Logger) *Client {
	if appview == "" {
		appview = defaultAppView
	}
	if pds == "" {
		pds = defaultPDS
	}
	if httpClient == nil {
		httpClient = robusthttp.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		appview:    strings.TrimSuffix(appview, "/"),
		pds:        strings.TrimSuffix(pds, "/"),
		httpClient: httpClient,
		logger:     logger.With("platform", domain.PlatformBluesky),
	}
}

// Login authenticates with the PDS and stores the session token. Use an App
// Password, not your account password.
//
// TODO: renew the access token with com.atproto.server.refreshSession once it
// expires instead of requiring a new Login.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.mu.Lock()
	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	c.handle = resp.Handle
	c.mu.Unlock()
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.did
}

// Authenticated reports whether Login succeeded.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessJwt != ""
}

// FetchPage returns one page of the requested history.
func (c *Client) FetchPage(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	switch req.Kind {
	case domain.FeedTimeline, "":
		return c.authorFeed(ctx, req)
	case domain.FeedLikes:
		return c.actorLikes(ctx, req)
	case domain.FeedBookmarks:
		return c.bookmarks(ctx, req)
	case domain.FeedSearch:
		return c.searchPosts(ctx, req)
	}
	return nil, &domain.ConfigurationError{Platform: domain.PlatformBluesky, Input: string(req.Kind), Reason: "unsupported feed kind"}
}

func (c *Client) authorFeed(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	filter := "posts_with_replies"
	if req.HideReplies {
		filter = "posts_no_replies"
	}
	params := url.Values{
		"actor":  {req.Identifier},
		"limit":  {strconv.Itoa(authorFeedLimit)},
		"filter": {filter},
	}
	setCursor(params, req.Cursor)

	var resp feedResponse
	if err := c.get(ctx, c.appview, "app.bsky.feed.getAuthorFeed", params, &resp, req.Identifier); err != nil {
		return nil, err
	}

	// getAuthorFeed has no server-side repost filter.
	return &domain.Page{Items: feedItems(resp.Feed, req.HideReposts), NextCursor: resp.Cursor}, nil
}

func (c *Client) actorLikes(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := c.requireSession("likes"); err != nil {
		return nil, err
	}
	actor := req.Identifier
	if actor == "" {
		actor = c.DID()
	}
	params := url.Values{
		"actor": {actor},
		"limit": {strconv.Itoa(likesLimit)},
	}
	setCursor(params, req.Cursor)

	var resp feedResponse
	if err := c.get(ctx, c.pds, "app.bsky.feed.getActorLikes", params, &resp, actor); err != nil {
		return nil, err
	}
	return &domain.Page{Items: feedItems(resp.Feed, false), NextCursor: resp.Cursor}, nil
}

func (c *Client) bookmarks(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := c.requireSession("bookmarks"); err != nil {
		return nil, err
	}
	params := url.Values{"limit": {strconv.Itoa(likesLimit)}}
	setCursor(params, req.Cursor)

	var resp bookmarksResponse
	if err := c.get(ctx, c.pds, "app.bsky.bookmark.getBookmarks", params, &resp, ""); err != nil {
		return nil, err
	}

	views := make([]json.RawMessage, 0, len(resp.Bookmarks))
	for _, b := range resp.Bookmarks {
		views = append(views, b.Item)
	}
	items, err := wrapPostViews(views)
	if err != nil {
		return nil, err
	}
	return &domain.Page{Items: items, NextCursor: resp.Cursor}, nil
}

func (c *Client) searchPosts(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	params := url.Values{
		"q":     {req.Query},
		"limit": {strconv.Itoa(searchLimit)},
	}
	setCursor(params, req.Cursor)

	host := c.appview
	if c.Authenticated() {
		host = c.pds
	}

	var resp searchPostsResponse
	if err := c.get(ctx, host, "app.bsky.feed.searchPosts", params, &resp, ""); err != nil {
		return nil, err
	}
	items, err := wrapPostViews(resp.Posts)
	if err != nil {
		return nil, err
	}
	return &domain.Page{Items: items, NextCursor: resp.Cursor}, nil
}

// ListFollows walks app.bsky.graph.getFollows to the end and returns the DIDs.
func (c *Client) ListFollows(ctx context.Context, actor string) ([]string, error) {
	var dids []string
	cursor := ""
	for {
		params := url.Values{
			"actor": {actor},
			"limit": {strconv.Itoa(followsLimit)},
		}
		setCursor(params, cursor)

		var resp followsResponse
		if err := c.get(ctx, c.appview, "app.bsky.graph.getFollows", params, &resp, actor); err != nil {
			return dids, err
		}
		for _, f := range resp.Follows {
			dids = append(dids, f.DID)
		}
		if resp.Cursor == "" || resp.Cursor == cursor {
			return dids, nil
		}
		cursor = resp.Cursor
	}
}

// FetchProfile resolves app.bsky.actor.getProfile.
func (c *Client) FetchProfile(ctx context.Context, actor string) (*domain.Profile, error) {
	var p domain.BlueskyProfile
	if err := c.get(ctx, c.appview, "app.bsky.actor.getProfile", url.Values{"actor": {actor}}, &p, actor); err != nil {
		return nil, err
	}
	return &domain.Profile{
		Platform:       domain.PlatformBluesky,
		Handle:         p.Handle,
		DID:            p.DID,
		DisplayName:    p.DisplayName,
		Avatar:         p.Avatar,
		Description:    p.Description,
		URL:            "https://bsky.app/profile/" + p.Handle,
		FollowersCount: p.FollowersCount,
		FollowsCount:   p.FollowsCount,
		PostsCount:     p.PostsCount,
	}, nil
}

func (c *Client) requireSession(what string) error {
	if !c.Authenticated() {
		return &domain.ConfigurationError{Platform: domain.PlatformBluesky, Input: what, Reason: "requires a logged-in session"}
	}
	return nil
}

func wrapPostViews(views []json.RawMessage) ([]domain.RawPost, error) {
	items := make([]domain.RawPost, 0, len(views))
	for _, v := range views {
		item, err := domain.WrapBlueskyPostView(v)
		if err != nil {
			return nil, err
		}
		// Blocked and deleted subjects come back as stubs without an author.
		if item.Post.URI == "" || item.Post.Author.DID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func setCursor(params url.Values, cursor string) {
	if cursor != "" {
		params.Set("cursor", cursor)
	}
}

// get runs an XRPC query. subject names the account being read, for
// not-found errors.
func (c *Client) get(ctx context.Context, host, nsid string, params url.Values, result any, subject string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/xrpc/"+nsid+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, nsid, host == c.pds, result, subject)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, strings.TrimPrefix(path, "/xrpc/"), true, result, "")
}

func (c *Client) do(req *http.Request, nsid string, authed bool, result any, subject string) error {
	c.mu.RLock()
	token := c.accessJwt
	c.mu.RUnlock()
	if authed && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requests.WithLabelValues(nsid, "error").Inc()
		return c.transportError(nsid, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()
	requests.WithLabelValues(nsid, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(nsid, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		if subject != "" && apiErr.notFound() {
			return &domain.NotFoundError{Platform: domain.PlatformBluesky, Identifier: subject}
		}
		c.logger.Debug("xrpc request failed", "nsid", nsid, "status", resp.StatusCode, "error", apiErr.Name)
		return c.transportError(nsid, apiErr)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return c.transportError(nsid, fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return nil
}

func (c *Client) transportError(nsid string, err error) error {
	return &domain.TransportError{Platform: domain.PlatformBluesky, Op: nsid, Err: err}
}

// APIError is an XRPC error response.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) notFound() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	if e.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "not found") || e.Name == "AccountTakedown" || e.Name == "ActorNotFound"
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// feedItems drops null entries and, when hideReposts is set, reposts.
func feedItems(feed []*domain.BlueskyFeedItem, hideReposts bool) []domain.RawPost {
	items := make([]domain.RawPost, 0, len(feed))
	for _, item := range feed {
		if item == nil || (hideReposts && item.Reason.IsRepost()) {
			continue
		}
		items = append(items, item)
	}
	return items
}

type createSessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

type feedResponse struct {
	Feed   []*domain.BlueskyFeedItem `json:"feed"`
	Cursor string                    `json:"cursor,omitempty"`
}

type searchPostsResponse struct {
	Posts  []json.RawMessage `json:"posts"`
	Cursor string            `json:"cursor,omitempty"`
}

type bookmarksResponse struct {
	Bookmarks []struct {
		CreatedAt string          `json:"createdAt"`
		Item      json.RawMessage `json:"item"`
	} `json:"bookmarks"`
	Cursor string `json:"cursor,omitempty"`
}

type followsResponse struct {
	Follows []domain.BlueskyProfile `json:"follows"`
	Cursor  string                  `json:"cursor,omitempty"`
}

// Package mastodon reads statuses from Mastodon-compatible instances over the
// REST API.
package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/robusthttp"
)

const (
	pageLimit       = 40
	accountCacheCap = 4096
)

// Options configures a Client.
type Options struct {
	// Instance is the home instance (https://host or host) used for
	// authenticated calls: favourites, bookmarks and search.
	Instance string

	// AccessToken is a user token with read scopes on Instance.
	AccessToken string

	// RateLimit bounds requests per second across all instances. Zero means
	// unlimited.
	RateLimit float64

	HTTPClient *http.Client
	Logger     *slog.Logger

	// BaseURL maps an instance host to its API base URL. Defaults to
	// https://host.
	BaseURL func(host string) string
}

// Client talks to the instance of whichever account it is asked about.
type Client struct {
	home       string
	token      string
	baseURL    func(string) string
	httpClient *http.Client
	limiter    *rate.Limiter
	accounts   *lru.Cache[string, Account]
	logger     *slog.Logger
}

// Account is the subset of the Account entity used for lookups.
type Account = domain.MastodonAccount

// NewClient returns a client. Without an Instance, only public timeline and
// profile reads are available.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = robusthttp.NewClient()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseURL == nil {
		opts.BaseURL = func(host string) string { return "https://" + host }
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	accounts, _ := lru.New[string, Account](accountCacheCap)

	home := strings.TrimSuffix(opts.Instance, "/")
	home = strings.TrimPrefix(strings.TrimPrefix(home, "https://"), "http://")

	return &Client{
		home:       home,
		token:      opts.AccessToken,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, 1),
		accounts:   accounts,
		logger:     opts.Logger.With("platform", domain.PlatformMastodon),
	}
}

// FetchPage returns one page of the requested history. Timelines are read
// from the account's own instance; favourites, bookmarks and search from the
// home instance with the access token.
func (c *Client) FetchPage(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	switch req.Kind {
	case domain.FeedTimeline, "":
		return c.accountStatuses(ctx, req)
	case domain.FeedLikes:
		return c.authedList(ctx, "/api/v1/favourites", req.Cursor)
	case domain.FeedBookmarks:
		return c.authedList(ctx, "/api/v1/bookmarks", req.Cursor)
	case domain.FeedSearch:
		return c.search(ctx, req)
	}
	return nil, &domain.ConfigurationError{Platform: domain.PlatformMastodon, Input: string(req.Kind), Reason: "unsupported feed kind"}
}

func (c *Client) accountStatuses(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	acc, host, err := c.lookup(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	params := url.Values{"limit": {strconv.Itoa(pageLimit)}}
	if req.Cursor != "" {
		params.Set("max_id", req.Cursor)
	}
	if req.HideReplies {
		params.Set("exclude_replies", "true")
	}
	if req.HideReposts {
		params.Set("exclude_reblogs", "true")
	}

	var statuses []*domain.MastodonStatus
	if _, err := c.get(ctx, host, "/api/v1/accounts/"+url.PathEscape(acc.ID)+"/statuses", params, false, &statuses, ""); err != nil {
		return nil, err
	}

	page := &domain.Page{Items: toRaw(statuses)}
	if n := len(statuses); n > 0 {
		page.NextCursor = statuses[n-1].ID
	}
	return page, nil
}

func (c *Client) authedList(ctx context.Context, path, cursor string) (*domain.Page, error) {
	if err := c.requireToken(path); err != nil {
		return nil, err
	}

	params := url.Values{"limit": {strconv.Itoa(pageLimit)}}
	if cursor != "" {
		params.Set("max_id", cursor)
	}

	var statuses []*domain.MastodonStatus
	header, err := c.get(ctx, c.home, path, params, true, &statuses, "")
	if err != nil {
		return nil, err
	}

	// Favourites and bookmarks paginate by internal ids only exposed in the
	// Link header.
	page := &domain.Page{Items: toRaw(statuses)}
	if len(statuses) > 0 {
		if link := header.Get("Link"); link != "" {
			page.NextCursor = nextMaxID(link)
		} else {
			page.NextCursor = statuses[len(statuses)-1].ID
		}
	}
	return page, nil
}

func (c *Client) search(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	if err := c.requireToken("search"); err != nil {
		return nil, err
	}

	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 0 {
			return nil, &domain.ConfigurationError{Platform: domain.PlatformMastodon, Input: req.Cursor, Reason: "invalid search cursor"}
		}
		offset = n
	}
	params := url.Values{
		"q":         {req.Query},
		"type":      {"statuses"},
		"following": {"true"},
		"resolve":   {"false"},
		"limit":     {strconv.Itoa(pageLimit)},
		"offset":    {strconv.Itoa(offset)},
	}

	var resp struct {
		Statuses []*domain.MastodonStatus `json:"statuses"`
	}
	if _, err := c.get(ctx, c.home, "/api/v2/search", params, true, &resp, ""); err != nil {
		return nil, err
	}

	page := &domain.Page{Items: toRaw(resp.Statuses)}
	if len(resp.Statuses) == pageLimit {
		page.NextCursor = strconv.Itoa(offset + len(resp.Statuses))
	}
	return page, nil
}

// FetchProfile looks the account up on its own instance.
func (c *Client) FetchProfile(ctx context.Context, handle string) (*domain.Profile, error) {
	acc, _, err := c.lookup(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &domain.Profile{
		Platform:       domain.PlatformMastodon,
		Handle:         domain.FederatedHandle(acc),
		ID:             acc.ID,
		DisplayName:    acc.DisplayName,
		Avatar:         acc.Avatar,
		Description:    domain.StripMarkup(acc.Note),
		URL:            acc.URL,
		FollowersCount: acc.FollowersCount,
		FollowsCount:   acc.FollowingCount,
		PostsCount:     acc.StatusesCount,
	}, nil
}

// lookup resolves @user@host on host. Results are cached by handle.
func (c *Client) lookup(ctx context.Context, handle string) (Account, string, error) {
	user, host, err := domain.ParseMastodonHandle(handle)
	if err != nil {
		return Account{}, "", err
	}
	key := user + "@" + host
	if acc, ok := c.accounts.Get(key); ok {
		return acc, host, nil
	}

	var acc Account
	if _, err := c.get(ctx, host, "/api/v1/accounts/lookup", url.Values{"acct": {user}}, false, &acc, "@"+key); err != nil {
		return Account{}, "", err
	}
	if acc.ID == "" {
		return Account{}, "", &domain.NotFoundError{Platform: domain.PlatformMastodon, Identifier: "@" + key}
	}
	c.accounts.Add(key, acc)
	return acc, host, nil
}

func (c *Client) requireToken(what string) error {
	if c.home == "" || c.token == "" {
		return &domain.ConfigurationError{Platform: domain.PlatformMastodon, Input: what, Reason: "requires a home instance and access token"}
	}
	return nil
}

// get issues a GET against host and decodes the JSON body into result. A 404
// is reported as not found when subject is set.
func (c *Client) get(ctx context.Context, host, path string, params url.Values, authed bool, result any, subject string) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.transportError(path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(host)+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requests.WithLabelValues(host, "error").Inc()
		return nil, c.transportError(path, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()
	requests.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(path, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusNotFound && subject != "" {
		return nil, &domain.NotFoundError{Platform: domain.PlatformMastodon, Identifier: subject}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		c.logger.Debug("request failed", "host", host, "path", path, "status", resp.StatusCode)
		return nil, c.transportError(path, apiErr)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return nil, c.transportError(path, fmt.Errorf("unmarshal response: %w", err))
	}
	return resp.Header, nil
}

func (c *Client) transportError(op string, err error) error {
	return &domain.TransportError{Platform: domain.PlatformMastodon, Op: op, Err: err}
}

// APIError is a non-2xx REST response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

var linkNext = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextMaxID extracts max_id from the rel="next" entry of a Link header.
func nextMaxID(link string) string {
	m := linkNext.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	u, err := url.Parse(m[1])
	if err != nil {
		return ""
	}
	return u.Query().Get("max_id")
}

func toRaw(statuses []*domain.MastodonStatus) []domain.RawPost {
	items := make([]domain.RawPost, 0, len(statuses))
	for _, s := range statuses {
		if s != nil {
			items = append(items, s)
		}
	}
	return items
}

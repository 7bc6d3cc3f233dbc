// Package coros is a small client for the COROS Team API.
//
// Every call carries the access token as a header and as a cookie, plus the
// browser-style origin headers the API expects. Responses arrive wrapped in
// an envelope {result, message, data}; a result other than "0000" is
// returned as an *APIError.
package coros

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nametoa/ai-sport-training/internal/types"
)

// DefaultBaseURL is the regional API host used when none is configured.
const DefaultBaseURL = "https://teamcnapi.coros.com"

// ResultOK is the envelope result code of a successful call.
const ResultOK = "0000"

const (
	pathActivities = "/activity/query"
	pathAnalyse    = "/analyse/query"
	pathDashboard  = "/dashboard/detail/query"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/145.0.0.0 Safari/537.36"
	origin = "https://t.coros.com"
)

// Config holds the credentials and transport settings of a Client.
type Config struct {
	BaseURL      string
	AccessToken  string
	CookieWBKFRo string
	Region       string
	UserID       string
	Timeout      time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client issues authenticated requests to the COROS Team API.
type Client struct {
	cfg    Config
	base   string
	http   *http.Client
	logger *log.Logger
}

// NewClient builds a client. It returns ErrMissingToken when cfg has no token.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Region == "" {
		cfg.Region = "2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[coros] ", log.LstdFlags)
	}

	return &Client{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   httpClient,
		logger: logger,
	}, nil
}

// ActivityPage is one page of the activity list.
type ActivityPage struct {
	DataList   []types.Activity `json:"dataList"`
	TotalPage  int              `json:"totalPage"`
	PageNumber int              `json:"pageNumber"`
	Count      int              `json:"count"`
}

// envelope is the vendor response wrapper.
type envelope struct {
	Result  string          `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// QueryActivities fetches one page of activities, most recent first.
// Pages are numbered from 1.
func (c *Client) QueryActivities(ctx context.Context, size, page int) (*ActivityPage, error) {
	q := url.Values{}
	q.Set("size", strconv.Itoa(size))
	q.Set("pageNumber", strconv.Itoa(page))
	q.Set("modeList", "")

	data, err := c.get(ctx, pathActivities, q, true)
	if err != nil {
		return nil, err
	}

	out := &ActivityPage{PageNumber: page}
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode activity page %d: %w: %v", page, ErrDecode, err)
	}
	if out.PageNumber == 0 {
		out.PageNumber = page
	}
	return out, nil
}

// QueryAnalyse fetches the full daily-metrics bundle.
func (c *Client) QueryAnalyse(ctx context.Context) (*types.MetricsBundle, error) {
	data, err := c.get(ctx, pathAnalyse, nil, true)
	if err != nil {
		return nil, err
	}
	var bundle types.MetricsBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode analyse bundle: %w: %v", ErrDecode, err)
	}
	return &bundle, nil
}

// QueryDashboard fetches the dashboard snapshot.
func (c *Client) QueryDashboard(ctx context.Context) (types.Snapshot, error) {
	data, err := c.get(ctx, pathDashboard, nil, false)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("failed to decode dashboard: %w: empty data", ErrDecode)
	}
	return types.Snapshot(data), nil
}

// get performs one request and unwraps the envelope.
func (c *Client) get(ctx context.Context, path string, query url.Values, withUser bool) (json.RawMessage, error) {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	c.authorize(req, withUser)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{Endpoint: path, StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s envelope: %w: %v", path, ErrDecode, err)
	}
	if env.Result != ResultOK {
		c.logger.Printf("%s rejected: result=%s message=%q", path, env.Result, env.Message)
		return nil, &APIError{Endpoint: path, Code: env.Result, Message: env.Message}
	}
	return env.Data, nil
}

// authorize attaches the credential headers and cookies.
func (c *Client) authorize(req *http.Request, withUser bool) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("accesstoken", c.cfg.AccessToken)
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")
	req.Header.Set("User-Agent", userAgent)
	if withUser {
		yf, _ := json.Marshal(map[string]string{"userId": c.cfg.UserID})
		req.Header.Set("yfheader", string(yf))
	}

	req.AddCookie(&http.Cookie{Name: "_c_WBKFRo", Value: c.cfg.CookieWBKFRo})
	req.AddCookie(&http.Cookie{Name: "CPL-coros-token", Value: c.cfg.AccessToken})
	req.AddCookie(&http.Cookie{Name: "CPL-coros-region", Value: c.cfg.Region})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultRawBaseURL serves raw file contents of GitHub repositories.
const DefaultRawBaseURL = "https://raw.githubusercontent.com"

// userAgent identifies coach requests to the repository host.
const userAgent = "trainsync-coach"

// Source reads one knowledge file by its repository-relative path.
type Source interface {
	Read(ctx context.Context, name string) (string, error)
}

// LocalSource reads knowledge files from a directory on disk. Names are
// resolved relative to Root.
type LocalSource struct {
	Root string
}

// Read implements Source.
func (s LocalSource) Read(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(name)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GitHubSource reads knowledge files from a repository branch over HTTPS.
type GitHubSource struct {
	Owner  string
	Repo   string
	Branch string
	// Token is sent as "Authorization: token ..." for private repositories.
	Token string
	// BaseURL defaults to DefaultRawBaseURL.
	BaseURL string
	Client  *http.Client
}

// NewGitHubSource builds a source from an "owner/repo" slug.
func NewGitHubSource(slug, branch, token string) (*GitHubSource, error) {
	owner, repo, ok := strings.Cut(strings.Trim(slug, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid repository %q: want owner/repo", slug)
	}
	if branch == "" {
		branch = "main"
	}
	return &GitHubSource{
		Owner:  owner,
		Repo:   repo,
		Branch: branch,
		Token:  token,
		Client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// URL returns the raw URL of name.
func (s *GitHubSource) URL(name string) string {
	base := s.BaseURL
	if base == "" {
		base = DefaultRawBaseURL
	}
	parts := strings.Split(strings.TrimPrefix(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(s.Owner) + "/" + url.PathEscape(s.Repo) + "/" +
		url.PathEscape(s.Branch) + "/" + strings.Join(parts, "/")
}

// Read implements Source.
func (s *GitHubSource) Read(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(name), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	if s.Token != "" {
		req.Header.Set("Authorization", "token "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type cacheEntry struct {
	content   string
	fetchedAt time.Time
}

// CachedSource keeps successful reads for TTL. Failed reads are not cached.
type CachedSource struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachedSource wraps src. A ttl of zero disables caching.
func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Read implements Source.
func (c *CachedSource) Read(ctx context.Context, name string) (string, error) {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[name]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.content, nil
	}

	content, err := c.src.Read(ctx, name)
	if err != nil {
		return "", err
	}
	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[name] = cacheEntry{content: content, fetchedAt: now}
		c.mu.Unlock()
	}
	return content, nil
}

// BuildContext reads every file and joins the contents with a horizontal
// rule. A file that cannot be read contributes an inline marker instead.
func BuildContext(ctx context.Context, src Source, files []string) string {
	parts := make([]string, 0, len(files))
	for _, name := range files {
		content, err := src.Read(ctx, name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = errors.New("file not found")
			}
			content = fmt.Sprintf("[failed to read %s: %v]", name, err)
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

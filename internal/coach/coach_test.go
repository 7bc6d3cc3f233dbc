package coach

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// mapSource serves fixed contents and counts reads.
type mapSource struct {
	mu    sync.Mutex
	files map[string]string
	reads int
}

func (s *mapSource) Read(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	content, ok := s.files[name]
	if !ok {
		return "", errors.New("HTTP 404")
	}
	return content, nil
}

func TestBuildContext(t *testing.T) {
	src := &mapSource{files: map[string]string{"a.md": "alpha", "c.md": "gamma"}}
	got := BuildContext(context.Background(), src, []string{"a.md", "b.md", "c.md"})
	want := "alpha\n\n---\n\n[failed to read b.md: HTTP 404]\n\n---\n\ngamma"
	if got != want {
		t.Errorf("BuildContext() = %q, want %q", got, want)
	}
}

func TestLocalSource(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "knowledge"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "knowledge", "02_daily_metrics.md"), []byte("# metrics"), 0644); err != nil {
		t.Fatal(err)
	}

	src := LocalSource{Root: root}
	got, err := src.Read(context.Background(), "knowledge/02_daily_metrics.md")
	if err != nil || got != "# metrics" {
		t.Errorf("Read() = %q, %v", got, err)
	}

	ctxText := BuildContext(context.Background(), src, []string{"knowledge/missing.md"})
	if ctxText != "[failed to read knowledge/missing.md: file not found]" {
		t.Errorf("missing file marker = %q", ctxText)
	}
}

func TestGitHubSource(t *testing.T) {
	var gotPath, gotAuth, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		if strings.HasSuffix(r.URL.Path, "missing.md") {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "weekly data")
	}))
	defer srv.Close()

	src, err := NewGitHubSource("athlete/training", "", "secret")
	if err != nil {
		t.Fatalf("NewGitHubSource() failed: %v", err)
	}
	src.BaseURL = srv.URL

	got, err := src.Read(context.Background(), "knowledge/03_weekly summary.md")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if got != "weekly data" {
		t.Errorf("Read() = %q", got)
	}
	if gotPath != "/athlete/training/main/knowledge/03_weekly%20summary.md" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "token secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAgent != userAgent {
		t.Errorf("User-Agent = %q", gotAgent)
	}

	if _, err := src.Read(context.Background(), "missing.md"); err == nil || err.Error() != "HTTP 404" {
		t.Errorf("Read(missing) error = %v, want HTTP 404", err)
	}
}

func TestNewGitHubSource_InvalidSlug(t *testing.T) {
	for _, slug := range []string{"", "athlete", "/training", "a/b/c"} {
		if _, err := NewGitHubSource(slug, "main", ""); err == nil {
			t.Errorf("NewGitHubSource(%q) succeeded", slug)
		}
	}
}

func TestCachedSource(t *testing.T) {
	src := &mapSource{files: map[string]string{"a.md": "v1"}}
	cached := NewCachedSource(src, time.Hour)
	now := time.Date(2025, 7, 3, 8, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if got, _ := cached.Read(ctx, "a.md"); got != "v1" {
			t.Fatalf("Read() = %q, want v1", got)
		}
	}
	if src.reads != 1 {
		t.Errorf("reads = %d, want 1 within TTL", src.reads)
	}

	src.files["a.md"] = "v2"
	now = now.Add(time.Hour)
	if got, _ := cached.Read(ctx, "a.md"); got != "v2" {
		t.Errorf("Read() after TTL = %q, want v2", got)
	}

	// Failures are retried on the next read.
	cached.Read(ctx, "b.md")
	cached.Read(ctx, "b.md")
	if src.reads != 4 {
		t.Errorf("reads = %d, want 4", src.reads)
	}
}

func TestInlet_FirstTurn(t *testing.T) {
	src := &mapSource{files: map[string]string{"a.md": "alpha", "b.md": "beta"}}
	f := &Filter{SystemPrompt: "coach", Files: []string{"a.md", "b.md"}, Source: src}

	got := f.Inlet(context.Background(), []Message{{Role: RoleUser, Content: "How was my week?"}})
	if len(got) != 3 {
		t.Fatalf("Inlet() returned %d messages: %+v", len(got), got)
	}
	if got[0] != (Message{Role: RoleSystem, Content: "coach"}) {
		t.Errorf("first message = %+v", got[0])
	}
	if got[1].Role != RoleSystem || got[1].Content != contextPreamble+"alpha\n\n---\n\nbeta" {
		t.Errorf("context message = %+v", got[1])
	}
	if got[2].Role != RoleUser {
		t.Errorf("last message = %+v", got[2])
	}
}

func TestInlet_ExistingSystemPrompt(t *testing.T) {
	src := &mapSource{files: map[string]string{"a.md": "alpha"}}
	f := &Filter{SystemPrompt: "coach", Files: []string{"a.md"}, Source: src}

	in := []Message{
		{Role: RoleSystem, Content: "custom"},
		{Role: RoleUser, Content: "hi"},
	}
	got := f.Inlet(context.Background(), in)
	if len(got) != 3 || got[0].Content != "custom" || got[1].Role != RoleSystem || got[2].Content != "hi" {
		t.Errorf("Inlet() = %+v", got)
	}
	if len(in) != 2 {
		t.Error("Inlet() modified its input")
	}
}

func TestInlet_LaterTurnsSkipContext(t *testing.T) {
	src := &mapSource{files: map[string]string{"a.md": "alpha"}}
	f := &Filter{SystemPrompt: "coach", Files: []string{"a.md"}, Source: src}

	got := f.Inlet(context.Background(), []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})
	if len(got) != 4 || got[0].Content != "coach" {
		t.Errorf("Inlet() = %+v", got)
	}
	if src.reads != 0 {
		t.Errorf("reads = %d, want no context fetch", src.reads)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("New() error = %v, want ErrNoAPIKey", err)
	}
}

func TestAsk(t *testing.T) {
	var body struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5",
  "content": [{"type": "text", "text": "Keep Tuesday easy."}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`)
	}))
	defer srv.Close()

	src := &mapSource{files: map[string]string{"a.md": "alpha"}}
	c, err := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Options: []option.RequestOption{option.WithMaxRetries(0)},
		Logger:  log.New(io.Discard, "", 0),
	}, &Filter{SystemPrompt: "coach", Files: []string{"a.md"}, Source: src})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	answer, err := c.Ask(context.Background(), nil, "Should I run today?")
	if err != nil {
		t.Fatalf("Ask() failed: %v", err)
	}
	if answer != "Keep Tuesday easy." {
		t.Errorf("answer = %q", answer)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if body.Model != "claude-sonnet-4-5" || body.MaxTokens != DefaultMaxTokens {
		t.Errorf("model = %q, max_tokens = %d", body.Model, body.MaxTokens)
	}
	if len(body.System) != 2 || body.System[0].Text != "coach" || !strings.HasSuffix(body.System[1].Text, "alpha") {
		t.Errorf("system = %+v", body.System)
	}
	if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", body.Messages)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	c, err := New(Config{APIKey: "k", Logger: log.New(io.Discard, "", 0)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ask(context.Background(), nil, "  "); err == nil {
		t.Error("Ask() accepted an empty question")
	}
}

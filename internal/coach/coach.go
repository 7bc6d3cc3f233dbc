package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrNoAPIKey is returned by New when no Anthropic API key is configured.
var ErrNoAPIKey = errors.New("anthropic API key not set; export ANTHROPIC_API_KEY or set anthropic_api_key")

// DefaultMaxTokens bounds the length of a coach answer.
const DefaultMaxTokens = 2048

// Config configures the model client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// BaseURL overrides the API endpoint.
	BaseURL    string
	HTTPClient *http.Client
	// Options are appended to the client's request options.
	Options []option.RequestOption
	Logger  *log.Logger
}

// Coach answers questions through the Anthropic Messages API.
type Coach struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	filter    *Filter
	logger    *log.Logger
}

// New returns a coach that runs every conversation through filter.
func New(cfg Config, filter *Filter) (*Coach, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[coach] ", log.LstdFlags)
	}
	if filter == nil {
		filter = NewFilter(nil)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	opts = append(opts, cfg.Options...)

	return &Coach{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		filter:    filter,
		logger:    cfg.Logger,
	}, nil
}

// Ask appends question to history and returns the coach's answer.
func (c *Coach) Ask(ctx context.Context, history []Message, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is empty")
	}
	conversation := append(append([]Message(nil), history...), Message{Role: RoleUser, Content: question})
	params := c.buildParams(c.filter.Inlet(ctx, conversation))

	c.logger.Printf("asking %s (%d messages)", c.model, len(params.Messages))
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to ask coach: %w", err)
	}

	var answer strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			answer.WriteString(block.Text)
		}
	}
	return answer.String(), nil
}

// buildParams moves system messages into the request's system blocks and
// keeps user and assistant turns in order.
func (c *Coach) buildParams(messages []Message) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

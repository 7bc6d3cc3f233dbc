// Package coach injects the exported training knowledge into a chat with a
// language model acting as a concurrent-training coach.
package coach

import (
	"context"
	"strings"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultFiles are the knowledge files injected as context, relative to the
// repository root.
var DefaultFiles = []string{
	"knowledge/02_daily_metrics.md",
	"knowledge/03_weekly_summary.md",
	"knowledge/04_current_plan.md",
}

// DefaultSystemPrompt describes the coach persona.
const DefaultSystemPrompt = `You are a concurrent training specialist: a running coach, a strength coach and a sports nutrition advisor at once.

Your responsibilities:
1. Give data-driven analysis and advice based on the athlete's COROS watch data provided below.
2. Order and dose strength and running sessions to limit interference between them.
3. Help the athlete reach race goals while staying healthy and injury free.
4. Cite concrete numbers (heart rate, pace, training load, HRV) in your answers.

Answer style:
- Be concise and direct, like a real coach.
- Explain the physiological reason behind each recommendation.
- Give training prescriptions down to pace, heart rate, sets and reps.
- Point out anomalies such as a sudden HRV drop or an excessive training load.`

// contextPreamble introduces the injected knowledge.
const contextPreamble = "Below is the athlete's latest COROS training data. Base your answers on it:\n\n"

// Filter adds the system prompt and, on the first user turn, the knowledge
// context to a conversation before it is sent to the model.
type Filter struct {
	SystemPrompt string
	Files        []string
	Source       Source
}

// NewFilter returns a filter with the default prompt and files.
func NewFilter(src Source) *Filter {
	return &Filter{
		SystemPrompt: DefaultSystemPrompt,
		Files:        append([]string(nil), DefaultFiles...),
		Source:       src,
	}
}

// Inlet returns a copy of messages with the system prompt prepended when the
// conversation has none. When the conversation holds exactly one user
// message, a context message is inserted right before it; later turns are
// left alone so the context is sent once.
func (f *Filter) Inlet(ctx context.Context, messages []Message) []Message {
	out := make([]Message, 0, len(messages)+2)

	hasSystem := false
	users := 0
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			hasSystem = true
		case RoleUser:
			users++
		}
	}
	if !hasSystem && strings.TrimSpace(f.SystemPrompt) != "" {
		out = append(out, Message{Role: RoleSystem, Content: f.SystemPrompt})
	}

	injected := users != 1 || f.Source == nil
	for _, m := range messages {
		if !injected && m.Role == RoleUser {
			out = append(out, Message{
				Role:    RoleSystem,
				Content: contextPreamble + BuildContext(ctx, f.Source, f.Files),
			})
			injected = true
		}
		out = append(out, m)
	}
	return out
}

package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Encode writes v to w as JSON or YAML. Markdown is only available for
// plans, through WriteMarkdown.
func Encode(w io.Writer, v any, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (use json or yaml)", format)
	}
}

// Decode reads a plan written by Encode in either format.
func Decode(data []byte) (*Plan, error) {
	var p Plan
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("invalid plan JSON: %w", err)
		}
		return &p, nil
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid plan YAML: %w", err)
	}
	return &p, nil
}

// WriteMarkdown renders the plan as a Markdown table, one row per week.
// The knowledge export copies this file for the coach.
func WriteMarkdown(w io.Writer, p *Plan, prog Progress) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", p.Name)
	fmt.Fprintf(&b, "- Type: %s\n", p.Type)
	fmt.Fprintf(&b, "- Start: %s, %d weeks\n", p.Start, p.Weeks)
	fmt.Fprintf(&b, "- Zone 2 target: %d min/week, HIIT %d/week, deload every %d weeks\n", p.Z2Target, p.HIITPerWeek, p.DeloadEvery)
	fmt.Fprintf(&b, "- Progress: %d/%d min Zone 2, %d/%d weeks done, %d HIIT weeks\n\n",
		prog.TotalZ2Actual, prog.TotalZ2Target, prog.WeeksDone, p.Weeks, prog.HIITWeeksDone)

	b.WriteString("| Week | Dates | Label | Zone 2 target | Zone 2 actual | HIIT |\n")
	b.WriteString("|------|-------|-------|---------------|---------------|------|\n")
	for _, wk := range p.PlanData {
		label := wk.Label
		if label == "" {
			label = "--"
		}
		marker := ""
		if wk.Number == prog.CurrentWeek {
			marker = " (current)"
		}
		fmt.Fprintf(&b, "| %d%s | %s to %s | %s | %d-%d min | %d min | %d/%d |\n",
			wk.Number, marker, wk.Start, wk.End, label,
			wk.TargetMin, wk.TargetMax, wk.ActualZ2Total, wk.ActualHIITCount, wk.HIITTarget)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

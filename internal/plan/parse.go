package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseStart parses a plan start date relative to now. It accepts
// YYYY-MM-DD as well as phrases like "next monday" or "in 2 weeks". An
// empty string means the next Monday.
func ParseStart(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NextMonday(now), nil
	}
	if t, err := time.ParseInLocation(isoDate, s, now.Location()); err == nil {
		return t, nil
	}

	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse start date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized start date %q", s)
	}
	return truncateDay(r.Time), nil
}

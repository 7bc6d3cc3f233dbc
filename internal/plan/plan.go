// Package plan generates a Zone 2 + HIIT training calendar and scores the
// synced activities against it.
package plan

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nametoa/ai-sport-training/internal/types"
)

// Week labels.
const (
	LabelDeload = "DELOAD"
	LabelTaper  = "TAPER"
)

// Volume factors applied to the weekly Zone 2 target.
const (
	progressionSpan = 0.4
	deloadFactor    = 0.6
	taperFactor     = 0.5
	bandLow         = 0.9
	bandHigh        = 1.1
	minTarget       = 60
)

// Intensity thresholds as fractions of lactate threshold heart rate.
const (
	zone2Ceiling = 0.85
	hiitFloor    = 0.95
	bikeZ2Share  = 0.7
)

const isoDate = "2006-01-02"

// ErrInvalidOptions is returned by Generate for out-of-range options.
var ErrInvalidOptions = errors.New("invalid plan options")

// Options configures a plan.
type Options struct {
	Name        string
	Type        string
	Start       time.Time
	Weeks       int
	Z2Target    int // Zone 2 minutes per week
	HIITPerWeek int
	DeloadEvery int
}

// DefaultOptions returns an eight-week block starting next Monday after now.
func DefaultOptions(now time.Time) Options {
	return Options{
		Name:        "Zone 2 base",
		Type:        "Zone 2 + HIIT",
		Start:       NextMonday(now),
		Weeks:       8,
		Z2Target:    200,
		HIITPerWeek: 1,
		DeloadEvery: 4,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	switch {
	case o.Start.IsZero():
		return fmt.Errorf("%w: start date is required", ErrInvalidOptions)
	case o.Weeks < 1 || o.Weeks > 52:
		return fmt.Errorf("%w: weeks must be between 1 and 52, got %d", ErrInvalidOptions, o.Weeks)
	case o.Z2Target <= 0:
		return fmt.Errorf("%w: weekly Zone 2 target must be positive, got %d", ErrInvalidOptions, o.Z2Target)
	case o.HIITPerWeek < 0 || o.HIITPerWeek > 7:
		return fmt.Errorf("%w: HIIT sessions per week must be between 0 and 7, got %d", ErrInvalidOptions, o.HIITPerWeek)
	case o.DeloadEvery < 2:
		return fmt.Errorf("%w: deload interval must be at least 2 weeks, got %d", ErrInvalidOptions, o.DeloadEvery)
	}
	return nil
}

// Session is one activity recorded on a plan day.
type Session struct {
	Name     string  `json:"name" yaml:"name"`
	Sport    string  `json:"sport" yaml:"sport"`
	Duration float64 `json:"duration" yaml:"duration"` // seconds
}

// Day is one calendar day of a plan week.
type Day struct {
	Date          string    `json:"date" yaml:"date"`
	Weekday       string    `json:"weekday" yaml:"weekday"`
	Sessions      []Session `json:"sessions" yaml:"sessions"`
	ActualZ2Min   int       `json:"actual_z2_min" yaml:"actual_z2_min"`
	ActualHIITMin int       `json:"actual_hiit_min" yaml:"actual_hiit_min"`
}

// Week is one plan week with its targets and recorded volume.
type Week struct {
	Number          int     `json:"week_num" yaml:"week_num"`
	Start           string  `json:"start" yaml:"start"`
	End             string  `json:"end" yaml:"end"`
	Label           string  `json:"label" yaml:"label"`
	Factor          float64 `json:"factor" yaml:"factor"`
	TargetMin       int     `json:"target_min" yaml:"target_min"`
	TargetMax       int     `json:"target_max" yaml:"target_max"`
	HIITTarget      int     `json:"hiit_target" yaml:"hiit_target"`
	Days            []Day   `json:"days" yaml:"days"`
	ActualZ2Total   int     `json:"actual_z2_total" yaml:"actual_z2_total"`
	ActualHIITCount int     `json:"actual_hiit_count" yaml:"actual_hiit_count"`
}

// Plan is a generated training block.
type Plan struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Start       string `json:"start" yaml:"start"`
	Weeks       int    `json:"weeks" yaml:"weeks"`
	Z2Target    int    `json:"z2_target_per_week" yaml:"z2_target_per_week"`
	HIITPerWeek int    `json:"hiit_per_week" yaml:"hiit_per_week"`
	DeloadEvery int    `json:"deload_every" yaml:"deload_every"`
	PlanData    []Week `json:"plan_data" yaml:"plan_data"`
}

// Generate builds the weekly calendar.
//
// The Zone 2 target grows linearly by up to 40% over the block. Every
// DeloadEvery-th week drops to 60% of the base target, except the last
// week, which is a taper at 50% with no HIIT. Each week's target band is
// ±10% around the scaled target, with the lower bound at least 60 minutes.
func Generate(opts Options) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := truncateDay(opts.Start)
	p := &Plan{
		Name:        opts.Name,
		Type:        opts.Type,
		Start:       start.Format(isoDate),
		Weeks:       opts.Weeks,
		Z2Target:    opts.Z2Target,
		HIITPerWeek: opts.HIITPerWeek,
		DeloadEvery: opts.DeloadEvery,
		PlanData:    make([]Week, 0, opts.Weeks),
	}

	for w := 0; w < opts.Weeks; w++ {
		weekStart := start.AddDate(0, 0, 7*w)
		factor, label := weekFactor(w, opts.Weeks, opts.DeloadEvery)

		week := Week{
			Number:     w + 1,
			Start:      weekStart.Format(isoDate),
			End:        weekStart.AddDate(0, 0, 6).Format(isoDate),
			Label:      label,
			Factor:     factor,
			TargetMin:  max(int(float64(opts.Z2Target)*factor*bandLow), minTarget),
			TargetMax:  int(float64(opts.Z2Target) * factor * bandHigh),
			HIITTarget: opts.HIITPerWeek,
			Days:       make([]Day, 7),
		}
		if label == LabelTaper {
			week.HIITTarget = 0
		}
		for d := range week.Days {
			day := weekStart.AddDate(0, 0, d)
			week.Days[d] = Day{
				Date:     day.Format(isoDate),
				Weekday:  day.Weekday().String(),
				Sessions: []Session{},
			}
		}
		p.PlanData = append(p.PlanData, week)
	}
	return p, nil
}

// weekFactor returns the volume factor and label of zero-based week w.
func weekFactor(w, weeks, deloadEvery int) (float64, string) {
	last := w == weeks-1
	switch {
	case (w+1)%deloadEvery == 0 && !last:
		return deloadFactor, LabelDeload
	case last:
		return taperFactor, LabelTaper
	default:
		return 1 + float64(w)/float64(weeks)*progressionSpan, ""
	}
}

// FillActual records the activities that fall on plan days.
//
// Runs (road and trail) are classified by average heart rate against lthr:
// below 85% counts fully as Zone 2, above 95% as HIIT, and anything in
// between as half Zone 2. Rides count 70% as Zone 2. Other sports are
// listed as sessions but add no volume. With an unknown lthr (0) runs count
// as Zone 2. Previous actuals are overwritten.
func FillActual(weeks []Week, acts []types.Activity, lthr float64) {
	byDate := make(map[string][]types.Activity)
	for _, a := range acts {
		if a.Date <= 0 {
			continue
		}
		key := fmt.Sprintf("%04d-%02d-%02d", a.Date/10000, a.Date/100%100, a.Date%100)
		byDate[key] = append(byDate[key], a)
	}

	for wi := range weeks {
		week := &weeks[wi]
		var z2Total float64
		hiitCount := 0

		for di := range week.Days {
			day := &week.Days[di]
			var z2, hiit float64
			day.Sessions = []Session{}

			for _, a := range byDate[day.Date] {
				day.Sessions = append(day.Sessions, Session{
					Name:     a.Name,
					Sport:    types.SportName(a.SportType),
					Duration: a.TotalTime,
				})
				minutes := a.TotalTime / 60

				switch {
				case types.IsRunning(a.SportType) && a.AvgHr > 0:
					switch {
					case lthr <= 0 || a.AvgHr < lthr*zone2Ceiling:
						z2 += minutes
					case a.AvgHr > lthr*hiitFloor:
						hiit += minutes
						hiitCount++
					default:
						z2 += minutes * 0.5
					}
				case a.SportType == types.SportBike:
					z2 += minutes * bikeZ2Share
				}
			}

			day.ActualZ2Min = int(math.RoundToEven(z2))
			day.ActualHIITMin = int(math.RoundToEven(hiit))
			z2Total += z2
		}

		week.ActualZ2Total = int(math.RoundToEven(z2Total))
		week.ActualHIITCount = hiitCount
	}
}

// Progress summarizes a plan as of today.
type Progress struct {
	TotalZ2Actual int `json:"total_z2_actual"`
	TotalZ2Target int `json:"total_z2_target"`
	WeeksDone     int `json:"weeks_done"`
	HIITWeeksDone int `json:"hiit_weeks_done"`
	// CurrentWeek is the 1-based week containing today, or 0.
	CurrentWeek int `json:"current_week"`
}

// Summarize computes progress. A week is done once its last day is before
// today; it meets its HIIT goal when its target is positive and reached.
func Summarize(weeks []Week, today time.Time) Progress {
	var p Progress
	todayStr := truncateDay(today).Format(isoDate)

	for _, w := range weeks {
		p.TotalZ2Actual += w.ActualZ2Total
		p.TotalZ2Target += (w.TargetMin + w.TargetMax) / 2

		done := w.End < todayStr
		if done {
			p.WeeksDone++
			if w.HIITTarget > 0 && w.ActualHIITCount >= w.HIITTarget {
				p.HIITWeeksDone++
			}
		}
		if p.CurrentWeek == 0 && w.Start <= todayStr && todayStr <= w.End {
			p.CurrentWeek = w.Number
		}
	}
	return p
}

// Remaining returns the Zone 2 minutes still needed to reach the week's
// lower target, and whether a HIIT session is still missing.
func (w Week) Remaining() (z2Min int, needHIIT bool) {
	return max(0, w.TargetMin-w.ActualZ2Total), w.ActualHIITCount < w.HIITTarget
}

// NextMonday returns the first Monday strictly after t, at midnight.
func NextMonday(t time.Time) time.Time {
	d := truncateDay(t)
	offset := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return d.AddDate(0, 0, offset)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

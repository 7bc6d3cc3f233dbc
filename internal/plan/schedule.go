package plan

import (
	"fmt"
	"time"
)

// Workout is a prescribed session in the watch-importable schedule.
type Workout struct {
	Date          string `json:"date" yaml:"date"`
	Weekday       string `json:"dayName" yaml:"dayName"`
	Type          string `json:"type" yaml:"type"`
	TargetMinutes int    `json:"targetMinutes" yaml:"targetMinutes"`
	TargetHR      string `json:"targetHR" yaml:"targetHR"`
	Description   string `json:"description" yaml:"description"`
}

// ScheduleWeek groups the workouts of one plan week.
type ScheduleWeek struct {
	Number        int       `json:"weekNum" yaml:"weekNum"`
	Label         string    `json:"label" yaml:"label"`
	TargetMinutes string    `json:"targetMinutes" yaml:"targetMinutes"`
	Workouts      []Workout `json:"sessions" yaml:"sessions"`
}

// Schedule is a plan rendered as concrete workouts.
type Schedule struct {
	Name       string         `json:"planName" yaml:"planName"`
	StartDate  string         `json:"startDate" yaml:"startDate"`
	EndDate    string         `json:"endDate" yaml:"endDate"`
	TotalWeeks int            `json:"totalWeeks" yaml:"totalWeeks"`
	Weeks      []ScheduleWeek `json:"weeks" yaml:"weeks"`
}

// BuildSchedule lays out the week's Zone 2 volume as two midweek runs of a
// third of the weekly target each (Tuesday, Thursday) and a Saturday long
// run of 40%, all scaled by the week factor. Weeks with a HIIT target get
// a Wednesday interval session. Heart-rate targets are derived from lthr
// when it is known.
func BuildSchedule(p *Plan, lthr float64) (*Schedule, error) {
	start, err := time.Parse(isoDate, p.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid plan start %q: %w", p.Start, err)
	}

	s := &Schedule{
		Name:       p.Name,
		StartDate:  p.Start,
		EndDate:    start.AddDate(0, 0, 7*p.Weeks-1).Format(isoDate),
		TotalWeeks: p.Weeks,
		Weeks:      make([]ScheduleWeek, 0, len(p.PlanData)),
	}

	z2HR := "Zone 2 heart rate"
	hiitHR := "Zone 4-5 heart rate"
	if lthr > 0 {
		z2HR = fmt.Sprintf("%d-%d bpm", int(lthr*0.65), int(lthr*0.78))
		hiitHR = fmt.Sprintf(">%d bpm", int(lthr*0.9))
	}

	for _, w := range p.PlanData {
		sw := ScheduleWeek{
			Number:        w.Number,
			Label:         w.Label,
			TargetMinutes: fmt.Sprintf("%d-%d", w.TargetMin, w.TargetMax),
			Workouts:      []Workout{},
		}
		for _, d := range w.Days {
			day, err := time.Parse(isoDate, d.Date)
			if err != nil {
				return nil, fmt.Errorf("invalid plan day %q: %w", d.Date, err)
			}
			switch day.Weekday() {
			case time.Tuesday, time.Thursday:
				minutes := int(float64(p.Z2Target/3) * w.Factor)
				sw.Workouts = append(sw.Workouts, Workout{
					Date:          d.Date,
					Weekday:       d.Weekday,
					Type:          "Zone 2 run",
					TargetMinutes: minutes,
					TargetHR:      z2HR,
					Description:   fmt.Sprintf("Easy aerobic run, %d minutes in Zone 2", minutes),
				})
			case time.Saturday:
				long := int(float64(p.Z2Target) * 0.4)
				minutes := int(float64(long) * w.Factor)
				sw.Workouts = append(sw.Workouts, Workout{
					Date:          d.Date,
					Weekday:       d.Weekday,
					Type:          "Zone 2 long run",
					TargetMinutes: minutes,
					TargetHR:      z2HR,
					Description:   fmt.Sprintf("Long aerobic run, %d minutes", minutes),
				})
			case time.Wednesday:
				if w.HIITTarget == 0 {
					continue
				}
				sw.Workouts = append(sw.Workouts, Workout{
					Date:          d.Date,
					Weekday:       d.Weekday,
					Type:          "HIIT intervals",
					TargetMinutes: 30,
					TargetHR:      hiitHR,
					Description:   "Warm up 10min, 5x4min hard / 2min easy, cool down 5min",
				})
			}
		}
		s.Weeks = append(s.Weeks, sw)
	}
	return s, nil
}

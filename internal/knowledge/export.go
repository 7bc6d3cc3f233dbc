// Package knowledge renders the synced documents as Markdown files that an
// AI coach can load as context.
package knowledge

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// Output file names, in the order a reader should see them.
const (
	CoachPromptFile   = "00_coach_prompt.md"
	ActivitiesFile    = "01_activities.md"
	DailyMetricsFile  = "02_daily_metrics.md"
	WeeklySummaryFile = "03_weekly_summary.md"
	CurrentPlanFile   = "04_current_plan.md"
)

// PlanSource is the hand-written or generated plan in the data directory.
const PlanSource = "plan.md"

// DefaultPromptFile is the coach prompt copied into the export when present.
const DefaultPromptFile = "coach_prompt.md"

// Options configures an Exporter.
type Options struct {
	// OutDir receives the Markdown files. It is created if needed.
	OutDir string
	// PromptFile is copied to CoachPromptFile when it exists.
	PromptFile string
	Logger     *log.Logger
	Now        func() time.Time
}

// Exporter writes the knowledge files for one data directory.
type Exporter struct {
	store  *store.Store
	outDir string
	prompt string
	logger *log.Logger
	now    func() time.Time
}

// NewExporter creates an exporter reading from st.
func NewExporter(st *store.Store, opts Options) *Exporter {
	if opts.OutDir == "" {
		opts.OutDir = "knowledge"
	}
	if opts.PromptFile == "" {
		opts.PromptFile = DefaultPromptFile
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[knowledge] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Exporter{
		store:  st,
		outDir: opts.OutDir,
		prompt: opts.PromptFile,
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// OutDir returns the directory the files are written to.
func (e *Exporter) OutDir() string {
	return e.outDir
}

// Export writes every file whose source is available and returns the names
// written. Sources that do not exist are skipped; a source that cannot be
// read fails the export after the other files have been written.
func (e *Exporter) Export() ([]string, error) {
	if err := os.MkdirAll(e.outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create knowledge directory: %w", err)
	}

	stamp := e.now().Format("2006-01-02 15:04")
	steps := []struct {
		name   string
		render func(string) (string, error)
	}{
		{CoachPromptFile, e.renderPrompt},
		{ActivitiesFile, e.renderActivities},
		{DailyMetricsFile, e.renderDailyMetrics},
		{WeeklySummaryFile, e.renderWeekly},
		{CurrentPlanFile, e.renderPlan},
	}

	var (
		written []string
		errs    []error
	)
	for _, step := range steps {
		content, err := step.render(stamp)
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		if err := writeFile(filepath.Join(e.outDir, step.name), content); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, step.name)
	}

	e.logger.Printf("Exported %d knowledge files to %s", len(written), e.outDir)
	return written, errors.Join(errs...)
}

// errSkip marks a file whose source does not exist.
var errSkip = errors.New("source not available")

func (e *Exporter) renderPrompt(string) (string, error) {
	data, err := os.ReadFile(e.prompt)
	if errors.Is(err, os.ErrNotExist) {
		return "", errSkip
	}
	if err != nil {
		return "", fmt.Errorf("failed to read coach prompt: %w", err)
	}
	return string(data), nil
}

func (e *Exporter) renderActivities(stamp string) (string, error) {
	acts, err := e.store.LoadActivities()
	if errors.Is(err, store.ErrNotFound) {
		return "", errSkip
	}
	if err != nil {
		return "", err
	}
	if len(acts) == 0 {
		return "", errSkip
	}
	return RenderActivities(acts, stamp), nil
}

func (e *Exporter) renderDailyMetrics(stamp string) (string, error) {
	bundle, err := e.store.LoadMetrics()
	if errors.Is(err, store.ErrNotFound) {
		return "", errSkip
	}
	if err != nil {
		return "", err
	}
	return RenderDailyMetrics(bundle, stamp), nil
}

func (e *Exporter) renderWeekly(stamp string) (string, error) {
	bundle, err := e.store.LoadMetrics()
	if errors.Is(err, store.ErrNotFound) {
		return "", errSkip
	}
	if err != nil {
		return "", err
	}
	weeks, err := bundle.Weeks()
	if err != nil {
		return "", err
	}
	if len(weeks) == 0 {
		return "", errSkip
	}
	return RenderWeekly(weeks, stamp), nil
}

func (e *Exporter) renderPlan(stamp string) (string, error) {
	data, err := os.ReadFile(e.store.Path(PlanSource))
	if errors.Is(err, os.ErrNotExist) {
		return "", errSkip
	}
	if err != nil {
		return "", fmt.Errorf("failed to read plan: %w", err)
	}
	return "# Current training plan\n\n> Exported: " + stamp + "\n\n" + string(data), nil
}

// RenderActivities renders sport totals followed by one table per month,
// newest month first.
func RenderActivities(acts []types.Activity, stamp string) string {
	var b strings.Builder
	b.WriteString("# COROS training activities\n\n")
	fmt.Fprintf(&b, "> Exported: %s\n", stamp)
	fmt.Fprintf(&b, "> Total activities: %s\n\n", Count(len(acts)))

	type total struct {
		name     string
		count    int
		distance float64
		duration float64
	}
	totals := make(map[string]*total)
	monthly := make(map[int][]types.Activity)
	for _, a := range acts {
		name := types.SportName(a.SportType)
		t, ok := totals[name]
		if !ok {
			t = &total{name: name}
			totals[name] = t
		}
		t.count++
		t.distance += a.Distance
		t.duration += a.TotalTime
		monthly[a.Date/100] = append(monthly[a.Date/100], a)
	}

	sorted := make([]*total, 0, len(totals))
	for _, t := range totals {
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].name < sorted[j].name
	})

	b.WriteString("## Totals by sport\n\n")
	b.WriteString("| Sport | Count | Distance | Duration |\n")
	b.WriteString("|-------|-------|----------|----------|\n")
	for _, t := range sorted {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", t.name, Count(t.count), Distance(t.distance), Duration(t.duration))
	}
	b.WriteString("\n")

	months := make([]int, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(months)))

	for _, m := range months {
		list := monthly[m]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Date > list[j].Date })

		fmt.Fprintf(&b, "## %04d-%02d (%d activities)\n\n", m/100, m%100, len(list))
		b.WriteString("| Date | Sport | Distance | Duration | Avg pace | Avg HR | Training load |\n")
		b.WriteString("|------|-------|----------|----------|----------|--------|---------------|\n")
		for _, a := range list {
			hr := Missing
			if a.AvgHr > 0 {
				hr = Number(a.AvgHr) + " bpm"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
				Date(a.Date), types.SportName(a.SportType), Distance(a.Distance),
				Duration(a.TotalTime), Pace(a.AdjustedPace), hr, Number(a.TrainingLoad))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// dailyColumns are the vendor fields shown in the daily table.
var dailyColumns = []struct{ field, title string }{
	{"testRhr", "Resting HR"},
	{"avgSleepHrv", "HRV"},
	{"sleepHrvBase", "HRV baseline"},
	{"vo2max", "VO2max"},
	{"staminaLevel", "Stamina"},
	{"trainingLoad", "Training load"},
	{"tiredRateNew", "Fatigue"},
}

// RenderDailyMetrics renders one row per day, newest first, followed by
// summary statistics over the days that have a value.
func RenderDailyMetrics(bundle *types.MetricsBundle, stamp string) string {
	days := append([]types.DailyMetric(nil), bundle.DayList...)
	sort.SliceStable(days, func(i, j int) bool { return days[i].HappenDay > days[j].HappenDay })

	var b strings.Builder
	b.WriteString("# Daily physiological metrics\n\n")
	fmt.Fprintf(&b, "> Exported: %s\n", stamp)
	fmt.Fprintf(&b, "> Days: %s\n\n", Count(len(days)))
	b.WriteString("## Fields\n")
	b.WriteString("- testRhr: resting heart rate as assessed by the watch\n")
	b.WriteString("- avgSleepHrv: average HRV during sleep\n")
	b.WriteString("- sleepHrvBase: HRV baseline\n")
	b.WriteString("- vo2max: estimated VO2max\n")
	b.WriteString("- staminaLevel: stamina level\n")
	b.WriteString("- trainingLoad: training load of the day\n")
	b.WriteString("- tiredRateNew: fatigue index\n\n")

	b.WriteString("## Daily data\n\n")
	b.WriteString("| Date |")
	sep := "|------|"
	for _, c := range dailyColumns {
		b.WriteString(" " + c.title + " |")
		sep += strings.Repeat("-", len(c.title)+2) + "|"
	}
	b.WriteString("\n" + sep + "\n")

	for _, d := range days {
		fmt.Fprintf(&b, "| %s |", Date(d.HappenDay))
		for _, c := range dailyColumns {
			b.WriteString(" " + rawValue(d.Raw(c.field)) + " |")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Summaries follow the stored (ascending) order, so the last value is
	// the most recent one.
	b.WriteString("## Summary\n\n")
	if s, ok := summarize(bundle.DayList, func(d types.DailyMetric) float64 { return d.TestRhr }); ok {
		fmt.Fprintf(&b, "- Resting HR: latest %s bpm, lowest %s bpm, mean %s bpm\n", Number(s.latest), Number(s.min), Mean(s.mean, 0))
	}
	if s, ok := summarize(bundle.DayList, func(d types.DailyMetric) float64 { return d.AvgSleepHrv }); ok {
		fmt.Fprintf(&b, "- HRV: latest %s ms, highest %s ms, mean %s ms\n", Number(s.latest), Number(s.max), Mean(s.mean, 0))
	}
	if s, ok := summarize(bundle.DayList, func(d types.DailyMetric) float64 { return d.Vo2max }); ok {
		fmt.Fprintf(&b, "- VO2max: latest %s, highest %s, mean %s\n", Number(s.latest), Number(s.max), Mean(s.mean, 1))
	}
	b.WriteString("\n")
	return b.String()
}

type stats struct {
	latest, min, max, mean float64
}

// summarize computes stats over the non-zero values of pick.
func summarize(days []types.DailyMetric, pick func(types.DailyMetric) float64) (stats, bool) {
	var (
		s     stats
		sum   float64
		count int
	)
	for _, d := range days {
		v := pick(d)
		if v == 0 {
			continue
		}
		if count == 0 || v < s.min {
			s.min = v
		}
		if count == 0 || v > s.max {
			s.max = v
		}
		s.latest = v
		sum += v
		count++
	}
	if count == 0 {
		return s, false
	}
	s.mean = sum / float64(count)
	return s, true
}

// rawValue prints a vendor value as received, or Missing when absent.
func rawValue(v []byte) string {
	text := strings.TrimSpace(string(v))
	if text == "" || text == "null" {
		return Missing
	}
	return strings.Trim(text, `"`)
}

// RenderWeekly renders the vendor's weekly rollups, newest week first.
func RenderWeekly(weeks []types.WeekSummary, stamp string) string {
	sorted := append([]types.WeekSummary(nil), weeks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FirstDayOfWeek > sorted[j].FirstDayOfWeek })

	var b strings.Builder
	b.WriteString("# Weekly training summary\n\n")
	fmt.Fprintf(&b, "> Exported: %s\n\n", stamp)
	b.WriteString("| Week start | Week end | Distance | Duration | Training load | Sessions |\n")
	b.WriteString("|------------|----------|----------|----------|---------------|----------|\n")
	for _, w := range sorted {
		count := Missing
		if w.Count > 0 {
			count = Count(w.Count)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			Date(w.FirstDayOfWeek), Date(w.LastDayInWeek), Distance(w.Distance),
			Duration(w.Duration), Number(w.TrainingLoad), count)
	}
	b.WriteString("\n")
	return b.String()
}

// writeFile replaces path atomically.
func writeFile(path, content string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.WriteString(f, content); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

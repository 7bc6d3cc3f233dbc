package dashboard

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"github.com/nametoa/ai-sport-training/internal/index"
	"github.com/nametoa/ai-sport-training/internal/knowledge"
	"github.com/nametoa/ai-sport-training/internal/types"
)

var pageFuncs = template.FuncMap{
	"pace":     knowledge.Pace,
	"duration": knowledge.Duration,
	"distance": knowledge.Distance,
	"date":     knowledge.Date,
	"number":   knowledge.Number,
	"reading": func(r *index.Reading) string {
		if r == nil {
			return knowledge.Missing
		}
		return knowledge.Number(r.Value)
	},
	"loadState":    types.TrainingLoadRatioLabel,
	"fatigueState": types.FatigueLabel,
	"percent": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 0, 64) + "%"
	},
}

var pageTemplate = template.Must(template.New("index").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Training Dashboard</title>
<style>
body{font-family:system-ui,sans-serif;background:#0e1117;color:#fafafa;margin:2rem}
.cards{display:flex;gap:12px;flex-wrap:wrap}
.card{background:#1a1f2e;padding:12px 16px;border-radius:8px;min-width:120px}
.card b{display:block;font-size:1.4rem}
.warn{background:#4a3b00;padding:8px 12px;border-radius:6px;margin:4px 0}
table{border-collapse:collapse;margin-top:8px}
td,th{padding:4px 10px;border-bottom:1px solid #333;text-align:left}
</style>
</head>
<body>
<h1>Training Dashboard</h1>
{{range .Warnings}}<div class="warn">{{.}}</div>
{{end}}{{if .Syncing}}<div class="warn">Sync in progress. This page updates when it finishes.</div>
{{end}}
<div class="cards">
<div class="card">VO2max<b>{{reading .Vitals.Vo2max}}</b></div>
<div class="card">Resting HR<b>{{reading .Vitals.Rhr}}</b></div>
<div class="card">Sleep HRV<b>{{reading .Vitals.Hrv}}</b></div>
<div class="card">Stamina<b>{{reading .Vitals.StaminaLevel}}</b></div>
<div class="card">LTHR<b>{{reading .Vitals.Lthr}}</b></div>
{{with .Load}}<div class="card">Load ratio<b>{{number .SummaryInfo.TrainingLoadRatio}}</b>{{loadState .SummaryInfo.TrainingLoadRatioState}}</div>
<div class="card">Fatigue<b>{{fatigueState .SummaryInfo.TiredRateNewState}}</b></div>
<div class="card">This week<b>{{percent .CurrentWeekRecord.Load.Percentage}}</b>of load target</div>
{{end}}</div>

<h2>Recent activities</h2>
<table>
<tr><th>Date</th><th>Sport</th><th>Name</th><th>Distance</th><th>Duration</th><th>Pace</th><th>Avg HR</th><th>Load</th></tr>
{{range .Recent}}<tr><td>{{date .Date}}</td><td>{{.Sport}}</td><td>{{.Name}}</td><td>{{distance .Distance}}</td><td>{{duration .TotalTime}}</td><td>{{pace .AdjustedPace}}</td><td>{{number .AvgHr}}</td><td>{{number .TrainingLoad}}</td></tr>
{{else}}<tr><td colspan="8">No activities yet.</td></tr>
{{end}}</table>

<h2>Weekly volume</h2>
<table>
<tr><th>Week of</th><th>Activities</th><th>Distance</th><th>Duration</th><th>Load</th></tr>
{{range .Weeks}}<tr><td>{{.WeekStart}}</td><td>{{.Count}}</td><td>{{distance .Distance}}</td><td>{{duration .Duration}}</td><td>{{number .TrainingLoad}}</td></tr>
{{end}}</table>

<p>{{.Counts.Activities}} activities, {{.Counts.Days}} days.{{with .LastFetch}} Last fetch {{.Format "2006-01-02 15:04"}}.{{end}}</p>
<script>
(function(){
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function(ev){
    var msg = JSON.parse(ev.data);
    if (msg.type === "sync_complete" || msg.type === "data_changed") { location.reload(); }
  };
})();
</script>
</body>
</html>
`))

// handleIndex renders the overview page and starts the session's
// automatic sync on its first visit.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, data := s.sessionData(w, r)
	s.maybeAutoSync(sess)

	sum, err := s.summary(r, sess, data)
	if err != nil {
		s.logger.Printf("Failed to build summary: %v", err)
		http.Error(w, "failed to query index", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, sum); err != nil {
		s.logger.Printf("Failed to render page: %v", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

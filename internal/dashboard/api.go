package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nametoa/ai-sport-training/internal/index"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// summaryWeeks is the number of weeks of volume in the summary and page.
const summaryWeeks = 8

// recentActivities is the number of activities on the overview page.
const recentActivities = 10

func respondJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// sessionData returns the request's session and its cached documents.
func (s *Server) sessionData(w http.ResponseWriter, r *http.Request) (*Session, *Data) {
	sess, _ := s.sessions.Get(w, r)
	return sess, sess.Data(s.store, s.cacheTTL, time.Now())
}

// handleActivities lists activities newest first. Query parameters: limit
// (0 = all) and sport (vendor sport code).
func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil || limit < 0 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	sport, err := intParam(r, "sport")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sport")
		return
	}

	_, data := s.sessionData(w, r)
	out := make([]types.Activity, 0, len(data.Activities))
	for _, a := range data.Activities {
		if sport != 0 && a.SportType != sport {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// handleMetrics returns the daily metrics bundle.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	_, data := s.sessionData(w, r)
	if data.Metrics == nil {
		respondError(w, http.StatusNotFound, "no daily metrics yet")
		return
	}
	respondJSON(w, http.StatusOK, data.Metrics)
}

// handleDashboard returns the dashboard snapshot as stored.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	_, data := s.sessionData(w, r)
	if len(data.Dashboard) == 0 {
		respondError(w, http.StatusNotFound, "no dashboard snapshot yet")
		return
	}
	respondJSON(w, http.StatusOK, data.Dashboard)
}

// Summary is the overview served by /api/summary and rendered by /.
type Summary struct {
	Counts    index.Counts           `json:"counts"`
	Vitals    index.Vitals           `json:"vitals"`
	Weeks     []index.WeekVolume     `json:"weeks"`
	Sports    []index.SportTotal     `json:"sports"`
	Recent    []index.ActivityRow    `json:"recent"`
	Load      *types.SnapshotSummary `json:"load,omitempty"`
	LastFetch *time.Time             `json:"last_fetch,omitempty"`
	RebuiltAt time.Time              `json:"rebuilt_at"`
	Syncing   bool                   `json:"syncing"`
	Warnings  []string               `json:"warnings"`
}

// summary gathers the overview for a session.
func (s *Server) summary(r *http.Request, sess *Session, data *Data) (*Summary, error) {
	ctx := r.Context()
	sum := &Summary{
		LastFetch: data.Meta.LastFetch,
		Syncing:   sess.Syncing(),
		Warnings:  append(append([]string{}, sess.Warnings()...), data.Warnings...),
	}

	var err error
	if sum.Counts, err = s.index.Counts(ctx); err != nil {
		return nil, err
	}
	if sum.Vitals, err = s.index.LatestVitals(ctx); err != nil {
		return nil, err
	}
	if sum.Weeks, err = s.index.WeeklyVolume(ctx, summaryWeeks); err != nil {
		return nil, err
	}
	if sum.Sports, err = s.index.SportTotals(ctx); err != nil {
		return nil, err
	}
	if sum.Recent, err = s.index.RecentActivities(ctx, recentActivities); err != nil {
		return nil, err
	}
	if sum.RebuiltAt, err = s.index.RebuiltAt(ctx); err != nil {
		return nil, err
	}

	if len(data.Dashboard) > 0 {
		load, err := data.Dashboard.Summary()
		if err != nil {
			sum.Warnings = append(sum.Warnings, err.Error())
		} else {
			sum.Load = load
		}
	}
	return sum, nil
}

// handleSummary returns the overview as JSON.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, data := s.sessionData(w, r)
	sum, err := s.summary(r, sess, data)
	if err != nil {
		s.logger.Printf("Failed to build summary: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query index")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// handleSync runs a sync and returns its report. A run already in progress
// yields 409.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		respondError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	sess, _ := s.sessions.Get(w, r)

	report, ran := s.syncer.TryRun(r.Context())
	if !ran {
		respondError(w, http.StatusConflict, "sync already in progress")
		return
	}
	sess.Invalidate()
	respondJSON(w, http.StatusOK, NewSyncCompleteData(report))
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

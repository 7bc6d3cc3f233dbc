package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// SessionCookie carries the session ID.
const SessionCookie = "trainsync_session"

// Data is one read of the persisted documents. It is shared between
// requests and must not be modified.
type Data struct {
	Activities []types.Activity
	Metrics    *types.MetricsBundle
	Dashboard  types.Snapshot
	Meta       *store.Meta
	// Warnings describes documents that are missing or unreadable.
	Warnings []string
	LoadedAt time.Time
}

// LoadData reads every document from st. Missing or corrupt documents
// produce a warning and are left empty.
func LoadData(st *store.Store, now time.Time) *Data {
	d := &Data{LoadedAt: now}

	acts, err := st.LoadActivities()
	switch {
	case err == nil:
		d.Activities = acts
	case errors.Is(err, store.ErrNotFound):
		d.Warnings = append(d.Warnings, "No activities yet. Run 'trainsync sync' to fetch them.")
	default:
		d.Warnings = append(d.Warnings, fmt.Sprintf("Could not load data: %v", err))
	}

	bundle, err := st.LoadMetrics()
	switch {
	case err == nil:
		d.Metrics = bundle
	case errors.Is(err, store.ErrNotFound):
	default:
		d.Warnings = append(d.Warnings, fmt.Sprintf("Could not load data: %v", err))
	}

	snap, err := st.LoadDashboard()
	switch {
	case err == nil:
		d.Dashboard = snap
	case errors.Is(err, store.ErrNotFound):
	default:
		d.Warnings = append(d.Warnings, fmt.Sprintf("Could not load data: %v", err))
	}

	meta, err := st.LoadMeta()
	if err != nil {
		d.Warnings = append(d.Warnings, fmt.Sprintf("Could not load data: %v", err))
		meta = store.NewMeta()
	}
	d.Meta = meta
	return d
}

// Session is the state of one browser session: a short-lived cache of the
// documents, the automatic sync it may trigger once, and warnings raised
// by that sync. Sessions are created on first request and discarded after
// an idle period.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	lastSeen time.Time
	data     *Data
	synced   bool
	syncDone chan struct{}
	warnings []string
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Created:  now,
		lastSeen: now,
		syncDone: make(chan struct{}),
	}
}

// Data returns the cached documents, reloading them from st when the cache
// is older than ttl.
func (s *Session) Data(st *store.Store, ttl time.Duration, now time.Time) *Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil || now.Sub(s.data.LoadedAt) >= ttl {
		s.data = LoadData(st, now)
	}
	return s.data
}

// Invalidate drops the cached documents.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
}

// claimAutoSync returns true the first time it is called.
func (s *Session) claimAutoSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synced {
		return false
	}
	s.synced = true
	return true
}

// finishAutoSync records the outcome of the session's automatic sync.
func (s *Session) finishAutoSync(warning string) {
	s.mu.Lock()
	if warning != "" {
		s.warnings = append(s.warnings, warning)
	}
	s.data = nil
	s.mu.Unlock()
	close(s.syncDone)
}

// Syncing reports whether the automatic sync was started and has not
// finished yet.
func (s *Session) Syncing() bool {
	s.mu.Lock()
	started := s.synced
	s.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-s.syncDone:
		return false
	default:
		return true
	}
}

// SyncDone is closed when the automatic sync finishes.
func (s *Session) SyncDone() <-chan struct{} {
	return s.syncDone
}

// Warnings returns the warnings raised in this session.
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

// SessionStore tracks live sessions by cookie.
type SessionStore struct {
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore returns a store that discards sessions idle for idleTTL.
func NewSessionStore(idleTTL time.Duration) *SessionStore {
	return &SessionStore{
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session named by the request cookie, creating one (and
// setting the cookie) when it is missing or expired. The second result
// reports whether the session is new.
func (ss *SessionStore) Get(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	now := ss.now()

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.reapLocked(now)

	if c, err := r.Cookie(SessionCookie); err == nil {
		if s, ok := ss.sessions[c.Value]; ok {
			s.mu.Lock()
			s.lastSeen = now
			s.mu.Unlock()
			return s, false
		}
	}

	s := newSession(now)
	ss.sessions[s.ID] = s
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s, true
}

// reapLocked drops idle sessions. ss.mu must be held.
func (ss *SessionStore) reapLocked(now time.Time) {
	if ss.idleTTL <= 0 {
		return
	}
	for id, s := range ss.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastSeen)
		s.mu.Unlock()
		if idle >= ss.idleTTL {
			delete(ss.sessions, id)
		}
	}
}

// InvalidateAll drops the document cache of every session.
func (ss *SessionStore) InvalidateAll() {
	ss.mu.Lock()
	sessions := make([]*Session, 0, len(ss.sessions))
	for _, s := range ss.sessions {
		sessions = append(sessions, s)
	}
	ss.mu.Unlock()

	for _, s := range sessions {
		s.Invalidate()
	}
}

// Len returns the number of live sessions.
func (ss *SessionStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

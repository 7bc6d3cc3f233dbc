package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nametoa/ai-sport-training/internal/index"
	trainsync "github.com/nametoa/ai-sport-training/internal/sync"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncComplete indicates a sync run finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeDataChanged indicates data documents changed on disk
	MessageTypeDataChanged MessageType = "data_changed"

	// MessageTypeStats carries index statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ResourceData is the outcome of one resource in a sync run.
type ResourceData struct {
	Resource string `json:"resource"`
	Added    int    `json:"added"`
	Total    int    `json:"total"`
	Pages    int    `json:"pages,omitempty"`
	Written  bool   `json:"written"`
	Error    string `json:"error,omitempty"`
}

// SyncCompleteData summarizes a sync run.
type SyncCompleteData struct {
	RunID      string         `json:"run_id"`
	OK         bool           `json:"ok"`
	Added      int            `json:"added"`
	DurationMS int64          `json:"duration_ms"`
	Resources  []ResourceData `json:"resources"`
	Error      string         `json:"error,omitempty"`
}

// NewSyncCompleteData converts a report for the wire.
func NewSyncCompleteData(report *trainsync.Report) SyncCompleteData {
	data := SyncCompleteData{
		RunID:      report.RunID,
		Added:      report.Added(),
		DurationMS: report.Duration().Milliseconds(),
		Resources:  make([]ResourceData, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		rd := ResourceData{
			Resource: string(res.Resource),
			Added:    res.Added,
			Total:    res.Total,
			Pages:    res.Pages,
			Written:  res.Written,
		}
		if res.Err != nil {
			rd.Error = res.Err.Error()
		}
		data.Resources = append(data.Resources, rd)
	}
	if err := report.Err(); err != nil {
		data.Error = err.Error()
	} else {
		data.OK = true
	}
	return data
}

// DataChangedData lists the documents that changed.
type DataChangedData struct {
	Files []string `json:"files"`
}

// StatsData contains index statistics
type StatsData struct {
	Activities int       `json:"activities"`
	Days       int       `json:"days"`
	RebuiltAt  time.Time `json:"rebuilt_at,omitempty"`
	Clients    int       `json:"clients"`
}

// Handler turns sync and file events into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{server: server, logger: logger}
}

// OnSyncComplete handles sync run completion
func (h *Handler) OnSyncComplete(report *trainsync.Report) {
	h.logger.Printf("Sync complete: run %s, %d added in %v", report.RunID, report.Added(), report.Duration())
	h.server.sessions.InvalidateAll()
	h.send(MessageTypeSyncComplete, NewSyncCompleteData(report))
}

// OnDataChanged handles changed data documents. The index is expected to
// be rebuilt already.
func (h *Handler) OnDataChanged(ctx context.Context, files []string) {
	h.logger.Printf("Data changed: %v", files)
	h.server.sessions.InvalidateAll()
	h.send(MessageTypeDataChanged, DataChangedData{Files: files})
	h.BroadcastStats(ctx)
}

// BroadcastStats sends current index statistics to all clients
func (h *Handler) BroadcastStats(ctx context.Context) {
	stats, err := h.server.Stats(ctx)
	if err != nil {
		h.logger.Printf("Failed to read stats: %v", err)
		return
	}
	h.send(MessageTypeStats, stats)
}

func (h *Handler) send(typ MessageType, v any) {
	msg, err := newMessage(typ, v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(msg)
}

func newMessage(typ MessageType, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: data}, nil
}

// indexStats reads counts and the rebuild time from idx.
func indexStats(ctx context.Context, idx *index.Index) (StatsData, error) {
	counts, err := idx.Counts(ctx)
	if err != nil {
		return StatsData{}, err
	}
	rebuilt, err := idx.RebuiltAt(ctx)
	if err != nil {
		return StatsData{}, err
	}
	return StatsData{Activities: counts.Activities, Days: counts.Days, RebuiltAt: rebuilt}, nil
}

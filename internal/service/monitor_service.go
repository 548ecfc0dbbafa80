package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/repository"
)

// AnomalyStore reads the archived anomaly trail.
type AnomalyStore interface {
	GetAnomalies(ctx context.Context, sessionID uuid.UUID) ([]repository.ArchivedAnomaly, error)
	GetTypeCounts(ctx context.Context, sessionID uuid.UUID) (map[string]int64, error)
}

// MonitorService assembles archived anomaly trails for the admin monitor.
type MonitorService struct {
	store AnomalyStore
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store AnomalyStore) *MonitorService {
	return &MonitorService{store: store}
}

// AnomalyTrail is the archived record of one session's anomalies.
type AnomalyTrail struct {
	SessionID string                       `json:"session_id"`
	Events    []repository.ArchivedAnomaly `json:"events"`
	Counts    map[string]int64             `json:"counts"`
	Total     int64                        `json:"total"`
}

// GetTrail fetches the events and per-type counts concurrently.
// Events are required; counts are best-effort.
func (s *MonitorService) GetTrail(ctx context.Context, sessionID uuid.UUID) (*AnomalyTrail, error) {
	trail := &AnomalyTrail{
		SessionID: sessionID.String(),
		Events:    []repository.ArchivedAnomaly{},
		Counts:    make(map[string]int64),
	}

	var (
		events    []repository.ArchivedAnomaly
		counts    map[string]int64
		eventsErr error
		countsErr error
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		events, eventsErr = s.store.GetAnomalies(ctx, sessionID)
	}()
	go func() {
		defer wg.Done()
		counts, countsErr = s.store.GetTypeCounts(ctx, sessionID)
	}()
	wg.Wait()

	if eventsErr != nil {
		return nil, eventsErr
	}
	if events != nil {
		trail.Events = events
	}
	if countsErr == nil && counts != nil {
		trail.Counts = counts
		for _, n := range counts {
			trail.Total += n
		}
	}
	return trail, nil
}

package datalake

import (
	"fmt"
	"log/slog"
)

// EntityStats holds the outcome of one entity sync.
type EntityStats struct {
	Entity     string
	Fetched    int
	Skipped    int
	Buckets    int
	Upserted   int64
	Reconciled int
	Failed     int
	// Aborted is set when the entity stopped before writing anything.
	Aborted bool
}

// Stats holds statistics about a sync run.
type Stats struct {
	Entities      []*EntityStats
	TotalUpserted int64
	TotalFailures int
	Aborted       map[string]struct{}
}

// NewStats creates and initializes a new Stats object.
func NewStats() *Stats {
	return &Stats{
		Aborted: make(map[string]struct{}),
	}
}

// Add records the outcome of one entity.
func (s *Stats) Add(e *EntityStats) {
	s.Entities = append(s.Entities, e)
	s.TotalUpserted += e.Upserted
	s.TotalFailures += e.Failed
	if e.Aborted {
		s.Aborted[e.Entity] = struct{}{}
	}
}

// Log prints the final statistics to the provided logger.
func (s *Stats) Log(logger *slog.Logger) {
	logger.Info("--- Sync Stats ---")
	logger.Info(fmt.Sprintf("Entities synced: %d", len(s.Entities)))
	logger.Info(fmt.Sprintf("Documents upserted: %d", s.TotalUpserted))
	logger.Info(fmt.Sprintf("Failures logged: %d", s.TotalFailures))
	for _, e := range s.Entities {
		logger.Info(fmt.Sprintf("- %s: fetched=%d skipped=%d buckets=%d upserted=%d reconciled=%d failed=%d aborted=%t",
			e.Entity, e.Fetched, e.Skipped, e.Buckets, e.Upserted, e.Reconciled, e.Failed, e.Aborted))
	}
	logger.Info("------------------")
}

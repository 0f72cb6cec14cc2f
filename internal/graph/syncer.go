package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/extract"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncMode selects how memory writes reach the graph.
type SyncMode string

const (
	// SyncInline extracts and upserts on the write path under a short
	// deadline. A miss degrades the graph, never the memory write.
	SyncInline SyncMode = "inline"
	// SyncBackground enqueues the memory for a worker; the queue is bounded
	// and drops under pressure.
	SyncBackground SyncMode = "background"
)

const inlineDeadline = 200 * time.Millisecond

// ValidSyncMode reports whether s names a known sync mode.
func ValidSyncMode(s string) bool {
	switch SyncMode(s) {
	case SyncInline, SyncBackground:
		return true
	}
	return false
}

// SyncStats are cumulative counters since process start.
type SyncStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

// Syncer drives the extraction pipeline: text in, canonical nodes, edges,
// and memory links out. Memory writes never fail because of the graph.
type Syncer struct {
	store     *Store
	extractor extract.Extractor
	mode      SyncMode
	logger    *zap.Logger

	queue chan domain.Memory
	wg    sync.WaitGroup
	stop  chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewSyncer(store *Store, extractor extract.Extractor, mode SyncMode, queueSize int, logger *zap.Logger) *Syncer {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Syncer{
		store:     store,
		extractor: extractor,
		mode:      mode,
		logger:    logger,
		queue:     make(chan domain.Memory, queueSize),
		stop:      make(chan struct{}),
	}
}

func (s *Syncer) Mode() SyncMode { return s.mode }

// Start launches the background worker. No-op in inline mode.
func (s *Syncer) Start() {
	if s.mode != SyncBackground {
		return
	}
	s.wg.Add(1)
	go s.run()
	s.logger.Info("graph sync worker started", zap.Int("queue_capacity", cap(s.queue)))
}

// Stop drains the queue and waits for the worker to exit.
func (s *Syncer) Stop() {
	if s.mode != SyncBackground {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("graph sync worker stopped",
		zap.Int64("processed", s.processed.Load()),
		zap.Int64("dropped", s.dropped.Load()))
}

// Submit routes a freshly stored memory into the graph. Inline mode runs
// the pipeline under a 200ms deadline derived from the caller's context;
// background mode enqueues and returns immediately, dropping when the
// queue is full.
func (s *Syncer) Submit(ctx context.Context, m *domain.Memory) {
	switch s.mode {
	case SyncInline:
		syncCtx, cancel := context.WithTimeout(ctx, inlineDeadline)
		defer cancel()
		if err := s.Sync(syncCtx, m); err != nil {
			s.failed.Add(1)
			s.logger.Warn("inline graph sync failed",
				zap.String("memory_id", m.ID.String()), zap.Error(err))
		}
	case SyncBackground:
		select {
		case s.queue <- *m:
		default:
			s.dropped.Add(1)
			s.logger.Warn("graph sync queue full, dropping",
				zap.String("memory_id", m.ID.String()))
		}
	}
}

// Sync runs the full pipeline for one memory: extract, canonicalize,
// upsert nodes, link, upsert edges. Invalid entity or relationship types
// from the extractor are skipped, not fatal.
func (s *Syncer) Sync(ctx context.Context, m *domain.Memory) error {
	entities, relationships, err := s.extractor.Extract(ctx, m.Content)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if len(entities) == 0 {
		s.processed.Add(1)
		return nil
	}

	nodeByName := make(map[string]uuid.UUID, len(entities))
	for _, e := range entities {
		name := Canonicalize(e.Name)
		if name == "" || !domain.ValidEntityType(string(e.Type)) {
			continue
		}
		if _, seen := nodeByName[name]; seen {
			continue
		}
		node, err := s.store.UpsertEntity(ctx, name, e.Type, e.Confidence)
		if err != nil {
			return fmt.Errorf("upsert entity: %w", err)
		}
		nodeByName[name] = node.ID
		if err := s.store.LinkMemory(ctx, m.ID, node.ID); err != nil {
			return fmt.Errorf("link memory: %w", err)
		}
	}

	for _, r := range relationships {
		from, okFrom := nodeByName[Canonicalize(r.From)]
		to, okTo := nodeByName[Canonicalize(r.To)]
		if !okFrom || !okTo || from == to {
			continue
		}
		if !domain.ValidRelationshipType(string(r.Type)) {
			continue
		}
		if _, err := s.store.UpsertRelationship(ctx, from, to, r.Type, r.Strength, r.Confidence); err != nil {
			return fmt.Errorf("upsert relationship: %w", err)
		}
	}

	s.processed.Add(1)
	return nil
}

// Remove drops the memory's entity links. Nodes and edges persist; they
// may be shared with other memories.
func (s *Syncer) Remove(ctx context.Context, memoryID uuid.UUID) error {
	return s.store.UnlinkMemory(ctx, memoryID)
}

func (s *Syncer) Stats() SyncStats {
	return SyncStats{
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Queued:    len(s.queue),
	}
}

func (s *Syncer) run() {
	defer s.wg.Done()
	for {
		select {
		case m := <-s.queue:
			s.process(&m)
		case <-s.stop:
			// Drain what is already queued, then exit.
			for {
				select {
				case m := <-s.queue:
					s.process(&m)
				default:
					return
				}
			}
		}
	}
}

func (s *Syncer) process(m *domain.Memory) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Sync(ctx, m); err != nil {
		s.failed.Add(1)
		s.logger.Warn("background graph sync failed",
			zap.String("memory_id", m.ID.String()), zap.Error(err))
	}
}

// Package snapshot persists the ephemeral-field-free projection of live
// rooms to disk, so in-flight games survive a restart. Best effort: a
// failed write is logged and the next interval tries again.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
)

const (
	roomsFile   = "rooms.json"
	journalFile = "events.jsonl"
)

// Store owns the snapshot file and the critical-event journal. All disk
// writes go through one mutex: a periodic save and a critical flush must
// never interleave.
type Store struct {
	mu  sync.Mutex
	dir string
}

// document is the on-disk layout: room code to simplified room.
type document struct {
	SavedAt time.Time                  `json:"savedAt"`
	Rooms   map[string]game.RoomRecord `json:"rooms"`
}

type journalLine struct {
	EventType string         `json:"eventType"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewStore ensures the snapshot directory exists. An inaccessible
// directory is an unrecoverable startup failure; the caller exits
// non-zero.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot directory %q inaccessible: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// SaveAll writes every record as one atomic document (temp file + rename).
func (s *Store) SaveAll(records []game.RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	doc := document{
		SavedAt: start,
		Rooms:   make(map[string]game.RoomRecord, len(records)),
	}
	for _, rec := range records {
		doc.Rooms[rec.Code] = rec
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	target := filepath.Join(s.dir, roomsFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	metrics.SnapshotWriteDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Load reads the snapshot back, dropping rooms whose record is older than
// maxAge and rooms that already concluded. A missing file is an empty
// start, not an error.
func (s *Store) Load(maxAge time.Duration) ([]game.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, roomsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	out := make([]game.RoomRecord, 0, len(doc.Rooms))
	for _, rec := range doc.Rooms {
		if rec.IsConcluded || rec.SavedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// LogCritical appends one line to the event journal. Failures are logged
// and swallowed; the journal must never take down a live room.
func (s *Store) LogCritical(event string, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(journalLine{
		EventType: event,
		Timestamp: time.Now(),
		Details:   details,
	})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal journal line", zap.Error(err))
		return
	}

	f, err := os.OpenFile(filepath.Join(s.dir, journalFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logging.Error(context.Background(), "failed to open event journal", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		logging.Error(context.Background(), "failed to append event journal", zap.Error(err))
	}
}

// Writable probes the snapshot directory for the readiness check.
func (s *Store) Writable() error {
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Run saves on every interval tick until the context ends, then takes one
// final save on the way out.
func (s *Store) Run(ctx context.Context, interval time.Duration, collect func() []game.RoomRecord) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.SaveAll(collect()); err != nil {
				logging.Error(ctx, "final snapshot save failed", zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := s.SaveAll(collect()); err != nil {
				logging.Error(ctx, "periodic snapshot save failed", zap.Error(err))
			}
		}
	}
}

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"commitstats/internal/models"
)

// ReportStorage handles persistence of analysis history to disk.
type ReportStorage struct {
	mu         sync.RWMutex
	path       string
	maxPerRepo int
	history    []models.ReportEntry
}

// NewReportStorage creates a storage instance and loads existing history if present.
// At most maxPerRepo entries are kept per repository; zero keeps everything.
func NewReportStorage(path string, maxPerRepo int) (*ReportStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	s := &ReportStorage{path: path, maxPerRepo: maxPerRepo}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append adds a new entry and persists it to disk. Missing IDs and
// timestamps are filled in. Only the newest entry of a repository keeps its
// raw commit times. If the history cannot be written the in-memory state is
// left as it was before the call.
func (s *ReportStorage) Append(entry models.ReportEntry) (models.ReportEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.GeneratedAt.IsZero() {
		entry.GeneratedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := slices.Clone(s.history)
	for i := range s.history {
		if s.history[i].RepositoryID == entry.RepositoryID {
			s.history[i].Commits = nil
		}
	}
	s.history = append(s.history, entry)
	s.history = trimPerRepo(s.history, s.maxPerRepo)
	if err := s.persist(); err != nil {
		s.history = previous
		return entry, err
	}
	return entry, nil
}

// Latest returns the newest entry for a repository if it exists.
func (s *ReportStorage) Latest(repoID string) (models.ReportEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].RepositoryID == repoID {
			return s.history[i], true
		}
	}
	return models.ReportEntry{}, false
}

// LatestAll returns the newest entry of every repository, in first-seen order.
func (s *ReportStorage) LatestAll() []models.ReportEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	var out []models.ReportEntry
	for _, entry := range s.history {
		if i, ok := index[entry.RepositoryID]; ok {
			out[i] = entry
			continue
		}
		index[entry.RepositoryID] = len(out)
		out = append(out, entry)
	}
	return out
}

// History returns a copy of the entire history slice.
func (s *ReportStorage) History() []models.ReportEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]models.ReportEntry, len(s.history))
	copy(copied, s.history)
	return copied
}

// HistoryN returns up to limit of the newest entries for a repository, oldest first.
func (s *ReportStorage) HistoryN(repoID string, limit int) []models.ReportEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ReportEntry
	for _, entry := range s.history {
		if entry.RepositoryID == repoID {
			out = append(out, entry)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func trimPerRepo(entries []models.ReportEntry, limit int) []models.ReportEntry {
	if limit <= 0 {
		return entries
	}
	counts := make(map[string]int)
	keep := make([]bool, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		id := entries[i].RepositoryID
		if counts[id] < limit {
			keep[i] = true
			counts[id]++
		}
	}
	out := entries[:0]
	for i, entry := range entries {
		if keep[i] {
			out = append(out, entry)
		}
	}
	return out
}

func (s *ReportStorage) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.history = []models.ReportEntry{}
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}

	if len(data) == 0 {
		s.history = []models.ReportEntry{}
		return nil
	}

	var entries []models.ReportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse history: %w", err)
	}

	s.history = trimPerRepo(entries, s.maxPerRepo)
	return nil
}

func (s *ReportStorage) persist() error {
	bytes, err := json.MarshalIndent(s.history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp history: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

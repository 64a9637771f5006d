// Package file implements the run queue on JSON files. Intended for
// development and tests; dedup atomicity is provided by a process-local
// mutex, so it is only safe single-process.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/queue"
)

const entriesFile = "queue_entries.json"

// Store is the file-backed run queue.
type Store struct {
	dataDir string
	mu      sync.Mutex
	entries map[int64]*models.QueueEntry
	nextID  int64
}

// NewStore creates the data directory if needed and loads any existing
// entries.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &Store{
		dataDir: dataDir,
		entries: make(map[int64]*models.QueueEntry),
		nextID:  1,
	}

	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load queue entries: %w", err)
	}

	return store, nil
}

// Enqueue records a pending entry unless one with the same
// (workflowID, dedupKey) already exists.
func (s *Store) Enqueue(_ context.Context, workflowID, dedupKey string, runAt time.Time) (queue.EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.WorkflowID == workflowID && entry.DedupKey == dedupKey {
			return queue.EnqueueAlreadyPending, nil
		}
	}

	entry := &models.QueueEntry{
		ID:         s.nextID,
		WorkflowID: workflowID,
		DedupKey:   dedupKey,
		Date:       runAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}

	s.nextID++
	s.entries[entry.ID] = entry

	return queue.EnqueueCreated, s.save()
}

// DequeueDue returns due, non-failed entries oldest first without
// consuming them.
func (s *Store) DequeueDue(_ context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.QueueEntry

	for _, entry := range s.entries {
		if entry.IsDue(now) {
			due = append(due, entry)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].Date.Before(due[j].Date) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// MarkFailed records a terminal failure on an entry.
func (s *Store) MarkFailed(_ context.Context, entryID int64, failureCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return queue.ErrEntryNotFound
	}

	entry.Failed = true
	entry.FailureCode = failureCode

	return s.save()
}

// Remove deletes an entry.
func (s *Store) Remove(_ context.Context, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entryID]; !ok {
		return queue.ErrEntryNotFound
	}

	delete(s.entries, entryID)

	return s.save()
}

// FailedEntries lists failed entries, newest first.
func (s *Store) FailedEntries(_ context.Context, limit int) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []*models.QueueEntry

	for _, entry := range s.entries {
		if entry.Failed {
			failed = append(failed, entry)
		}
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].CreatedAt.After(failed[j].CreatedAt) })

	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}

	return failed, nil
}

// PurgeFailedBefore deletes failed entries created before the cutoff.
func (s *Store) PurgeFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64

	for id, entry := range s.entries {
		if entry.Failed && entry.CreatedAt.Before(cutoff) {
			delete(s.entries, id)
			purged++
		}
	}

	if purged > 0 {
		return purged, s.save()
	}

	return 0, nil
}

// HealthCheck verifies the data directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.dataDir); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close persists any state. Nothing else to release.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save()
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, entriesFile)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return err
	}

	var entries []*models.QueueEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	for _, entry := range entries {
		s.entries[entry.ID] = entry

		if entry.ID >= s.nextID {
			s.nextID = entry.ID + 1
		}
	}

	return nil
}

func (s *Store) save() error {
	entries := make([]*models.QueueEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path(), data, 0600)
}

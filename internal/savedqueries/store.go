// Package savedqueries persists named query configurations for replay.
package savedqueries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no saved query exists under the given ID.
var ErrNotFound = errors.New("saved query not found")

const blobPrefix = "queries/"

// Store keeps saved queries as one JSON blob per record. Writes are
// single-record; there are no transaction semantics.
type Store struct {
	storage storage.Interface
	now     func() time.Time
}

// New creates a store over the given blob storage.
func New(st storage.Interface) *Store {
	return &Store{storage: st, now: time.Now}
}

// Persist saves a query under a name and returns the stored record.
func (s *Store) Persist(ctx context.Context, name string, query models.Query) (*models.SavedQuery, error) {
	record := &models.SavedQuery{
		ID:        uuid.New().String(),
		Name:      name,
		Query:     query,
		CreatedAt: s.now().UTC(),
	}

	if err := s.write(ctx, record); err != nil {
		return nil, err
	}

	logrus.Infof("Saved query %q as %s", name, record.ID)
	return record, nil
}

// Get loads one saved query by ID.
func (s *Store) Get(ctx context.Context, id string) (*models.SavedQuery, error) {
	data, err := s.storage.Retrieve(ctx, blobName(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load saved query %s: %w", id, err)
	}

	var record models.SavedQuery
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode saved query %s: %w", id, err)
	}
	return &record, nil
}

// List returns every saved query, newest first.
func (s *Store) List(ctx context.Context) ([]models.SavedQuery, error) {
	names, err := s.storage.List(ctx, blobPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved queries: %w", err)
	}

	records := make([]models.SavedQuery, 0, len(names))
	for _, name := range names {
		data, err := s.storage.Retrieve(ctx, name)
		if err != nil {
			logrus.Warnf("Failed to load saved query blob %s: %v", name, err)
			continue
		}

		var record models.SavedQuery
		if err := json.Unmarshal(data, &record); err != nil {
			logrus.Warnf("Skipping malformed saved query blob %s: %v", name, err)
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// Delete removes a saved query by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.storage.Delete(ctx, blobName(id)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete saved query %s: %w", id, err)
	}
	return nil
}

// TouchLastExecuted records that the query was just replayed.
func (s *Store) TouchLastExecuted(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	record.LastExecutedAt = s.now().UTC()
	return s.write(ctx, record)
}

func (s *Store) write(ctx context.Context, record *models.SavedQuery) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal saved query: %w", err)
	}

	if err := s.storage.Store(ctx, blobName(record.ID), data); err != nil {
		return fmt.Errorf("failed to store saved query: %w", err)
	}
	return nil
}

func blobName(id string) string {
	return blobPrefix + id + ".json"
}

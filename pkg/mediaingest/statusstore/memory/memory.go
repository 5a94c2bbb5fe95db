// Package memory provides an in-memory StatusStore used in tests and local
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/media-ingest/pkg/mediaingest"
	"golang.org/x/exp/slices"
)

type key struct {
	ownerID string
	assetID string
}

// Store implements mediaingest.StatusStore with in-memory records and
// channel-based watch fan-out.
type Store struct {
	mu      sync.RWMutex
	records map[key]*mediaingest.AssetStatus
	subs    map[key][]*subscription

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new in-memory status store.
func New() *Store {
	return &Store{
		records: make(map[key]*mediaingest.AssetStatus),
		subs:    make(map[key][]*subscription),
		now:     time.Now,
	}
}

func (s *Store) Create(ctx context.Context, rec *mediaingest.AssetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{rec.OwnerID, rec.AssetID}
	if _, exists := s.records[k]; exists {
		return &mediaingest.AssetError{OwnerID: rec.OwnerID, AssetID: rec.AssetID, Op: "create", Err: mediaingest.ErrAssetExists}
	}

	now := s.now()
	recCopy := *rec
	if recCopy.Status == "" {
		recCopy.Status = mediaingest.StatusUploading
	}
	if recCopy.CreatedAt.IsZero() {
		recCopy.CreatedAt = now
	}
	recCopy.UpdatedAt = now
	s.records[k] = &recCopy
	s.notifyLocked(k, recCopy)
	return nil
}

func (s *Store) Get(ctx context.Context, ownerID, assetID string) (*mediaingest.AssetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[key{ownerID, assetID}]
	if !exists {
		return nil, mediaingest.ErrAssetNotFound
	}
	recCopy := *rec
	return &recCopy, nil
}

// Apply merge-writes the patch. A missing record is created from the patch
// so a writer racing ahead of record creation (the event normalizer firing
// before the client's completion callback) is not lost.
func (s *Store) Apply(ctx context.Context, ownerID, assetID string, patch mediaingest.StatusPatch) (*mediaingest.AssetStatus, error) {
	if patch.IsZero() {
		return nil, &mediaingest.AssetError{OwnerID: ownerID, AssetID: assetID, Op: "apply", Err: mediaingest.ErrEmptyPatch}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key{ownerID, assetID}
	rec, exists := s.records[k]
	if !exists {
		rec = &mediaingest.AssetStatus{
			OwnerID:   ownerID,
			AssetID:   assetID,
			Status:    mediaingest.StatusUploading,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.records[k] = rec
	}

	if rec.Apply(patch, now) || !exists {
		s.notifyLocked(k, *rec)
	}
	recCopy := *rec
	return &recCopy, nil
}

func (s *Store) List(ctx context.Context, ownerID string) ([]*mediaingest.AssetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*mediaingest.AssetStatus
	for k, rec := range s.records {
		if k.ownerID == ownerID {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *Store) ListStalled(ctx context.Context, olderThan time.Duration) ([]*mediaingest.AssetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-olderThan)
	var result []*mediaingest.AssetStatus
	for _, rec := range s.records {
		if !mediaingest.IsTerminal(rec.Status) && rec.UpdatedAt.Before(cutoff) {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// sortNewestFirst orders by creation time, breaking ties on the timestamp
// embedded in the asset id.
func sortNewestFirst(recs []*mediaingest.AssetStatus) {
	slices.SortFunc(recs, func(a, b *mediaingest.AssetStatus) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		ta, aok := mediaingest.AssetIDTime(a.AssetID)
		tb, bok := mediaingest.AssetIDTime(b.AssetID)
		if aok && bok && !ta.Equal(tb) {
			if ta.After(tb) {
				return -1
			}
			return 1
		}
		return 0
	})
}

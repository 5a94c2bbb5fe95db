package memory

import (
	"context"
	"sync"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// watchBuffer bounds how many undelivered snapshots a slow subscriber can
// hold. When full, the oldest snapshot is dropped; only the latest state
// matters to a status watcher.
const watchBuffer = 16

type subscription struct {
	store *Store
	key   key
	ch    chan mediaingest.AssetStatus
	done  chan struct{}
	once  sync.Once
}

func (s *subscription) Updates() <-chan mediaingest.AssetStatus { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() {
		s.store.mu.Lock()
		subs := s.store.subs[s.key]
		for i, sub := range subs {
			if sub == s {
				s.store.subs[s.key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.store.subs[s.key]) == 0 {
			delete(s.store.subs, s.key)
		}
		s.store.mu.Unlock()
		close(s.done)
		close(s.ch)
	})
}

// Watch opens a live subscription to one record. The current record, if it
// exists, is delivered immediately; afterwards every merged update is
// delivered until Close or context cancellation.
func (s *Store) Watch(ctx context.Context, ownerID, assetID string) (mediaingest.Subscription, error) {
	k := key{ownerID, assetID}
	sub := &subscription{
		store: s,
		key:   k,
		ch:    make(chan mediaingest.AssetStatus, watchBuffer),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[k] = append(s.subs[k], sub)
	if rec, exists := s.records[k]; exists {
		sub.ch <- *rec
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// notifyLocked fans a snapshot out to every subscriber of the key. Callers
// hold s.mu.
func (s *Store) notifyLocked(k key, snapshot mediaingest.AssetStatus) {
	for _, sub := range s.subs[k] {
		select {
		case sub.ch <- snapshot:
		default:
			// Drop the oldest buffered snapshot to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snapshot:
			default:
			}
		}
	}
}

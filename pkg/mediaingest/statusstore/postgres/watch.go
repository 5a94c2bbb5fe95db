package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

type subscription struct {
	ch     chan mediaingest.AssetStatus
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Updates() <-chan mediaingest.AssetStatus { return s.ch }

func (s *subscription) Close() {
	s.once.Do(s.cancel)
}

// Watch polls the record at the store's poll interval and delivers a
// snapshot whenever updated_at moves. The initial state, if the record
// exists, is delivered immediately.
func (s *Store) Watch(ctx context.Context, ownerID, assetID string) (mediaingest.Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		ch:     make(chan mediaingest.AssetStatus, 1),
		cancel: cancel,
	}

	go func() {
		defer close(sub.ch)

		var lastUpdated time.Time
		deliver := func() {
			rec, err := s.Get(watchCtx, ownerID, assetID)
			if err != nil {
				if !errors.Is(err, mediaingest.ErrAssetNotFound) && watchCtx.Err() == nil {
					// Transient read failure; the next tick retries.
					return
				}
				return
			}
			if !rec.UpdatedAt.After(lastUpdated) {
				return
			}
			lastUpdated = rec.UpdatedAt
			select {
			case sub.ch <- *rec:
			case <-watchCtx.Done():
			}
		}

		deliver()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				deliver()
			}
		}
	}()

	return sub, nil
}

package uploader

import (
	"context"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// ProcessingUpdate is one observed status change, mapped to the message the
// upload surface shows.
type ProcessingUpdate struct {
	Status       mediaingest.ProcessingStatus
	Message      string
	ProcessedURL string
	Error        string
	Terminal     bool
}

var statusMessages = map[mediaingest.ProcessingStatus]string{
	mediaingest.StatusUploading:  "uploading",
	mediaingest.StatusQueued:     "queued",
	mediaingest.StatusProcessing: "processing",
	mediaingest.StatusReady:      "ready",
	mediaingest.StatusFailed:     "failed",
}

// WatchProcessing opens a live subscription to the asset's status record and
// maps each change to a ProcessingUpdate. The subscription is released
// deterministically: the returned channel closes after a terminal update or
// when ctx is canceled, whichever comes first.
func (u *Uploader) WatchProcessing(ctx context.Context, ownerID, assetID string) (<-chan ProcessingUpdate, error) {
	sub, err := u.store.Watch(ctx, ownerID, assetID)
	if err != nil {
		return nil, err
	}

	updates := make(chan ProcessingUpdate)
	go func() {
		defer close(updates)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-sub.Updates():
				if !ok {
					return
				}
				update := ProcessingUpdate{
					Status:       rec.Status,
					Message:      statusMessages[rec.Status],
					ProcessedURL: rec.ProcessedURL,
					Error:        rec.ProcessingError,
					Terminal:     mediaingest.IsTerminal(rec.Status),
				}
				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
				if update.Terminal {
					return
				}
			}
		}
	}()

	return updates, nil
}

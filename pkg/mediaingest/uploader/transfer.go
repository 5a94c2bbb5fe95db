package uploader

import (
	"context"
	"sync"
)

// Transfer is the handle for one in-flight upload. Pause, resume and cancel
// affect only the byte transfer, never the status record; cancellation
// before completion leaves the record at uploading.
type Transfer struct {
	OwnerID       string
	AssetID       string
	RawObjectPath string

	total  int64
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	bytesSent int64
	resumeCh  chan struct{}
	err       error
}

// Pause suspends the transfer at the next part boundary. Pausing an already
// paused transfer is a no-op.
func (t *Transfer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resumeCh == nil {
		t.resumeCh = make(chan struct{})
	}
}

// Resume releases a paused transfer.
func (t *Transfer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resumeCh != nil {
		close(t.resumeCh)
		t.resumeCh = nil
	}
}

// Cancel aborts the transfer. The status record is left at uploading.
func (t *Transfer) Cancel() {
	t.cancel()
	// A paused transfer must wake to observe the cancellation.
	t.Resume()
}

// Done is closed when the transfer goroutine has finished, whatever the
// outcome.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Wait blocks until the transfer finishes and returns its terminal error,
// nil on success.
func (t *Transfer) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// BytesSent returns the bytes transferred so far.
func (t *Transfer) BytesSent() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytesSent
}

// Progress returns the current transfer progress.
func (t *Transfer) Progress() Progress {
	return Progress{BytesSent: t.BytesSent(), TotalBytes: t.total}
}

func (t *Transfer) addProgress(n int64) {
	t.mu.Lock()
	t.bytesSent += n
	t.mu.Unlock()
}

func (t *Transfer) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

// waitIfPaused blocks while the transfer is paused, returning early if the
// context is canceled.
func (t *Transfer) waitIfPaused(ctx context.Context) error {
	t.mu.Lock()
	ch := t.resumeCh
	t.mu.Unlock()
	if ch == nil {
		return ctx.Err()
	}
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

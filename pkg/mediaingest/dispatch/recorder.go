package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// Recorder is a Dispatcher that records run inputs instead of calling the
// control plane. Used in tests and in local development where no compute
// backend exists.
type Recorder struct {
	// Err, when set, is returned from every Run call.
	Err error

	mu   sync.Mutex
	runs []mediaingest.RunInput
}

func (r *Recorder) Run(ctx context.Context, in mediaingest.RunInput) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, in)
	return fmt.Sprintf("recorded-%d", len(r.runs)), nil
}

// Runs returns a copy of the recorded run inputs in order.
func (r *Recorder) Runs() []mediaingest.RunInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mediaingest.RunInput, len(r.runs))
	copy(out, r.runs)
	return out
}

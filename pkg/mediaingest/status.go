package mediaingest

import "time"

// statusRank orders processing states along the pipeline. Failed ranks above
// every non-terminal state so a failure always wins a merge against an
// in-flight transition, and terminal states never move backward.
var statusRank = map[ProcessingStatus]int{
	StatusUploading:  0,
	StatusQueued:     1,
	StatusProcessing: 2,
	StatusReady:      3,
	StatusFailed:     3,
}

// ValidStatus reports whether s is a known processing status.
func ValidStatus(s ProcessingStatus) bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether s is a terminal state. There is no transition
// out of a terminal state; a re-upload creates a new asset id.
func IsTerminal(s ProcessingStatus) bool {
	return s == StatusReady || s == StatusFailed
}

// CanTransition reports whether the state machine permits moving from one
// status to another. Identical states are allowed (duplicate writers racing
// on the same transition are expected and idempotent).
func CanTransition(from, to ProcessingStatus) bool {
	if !ValidStatus(from) || !ValidStatus(to) {
		return false
	}
	if from == to {
		return true
	}
	if IsTerminal(from) {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return statusRank[to] == statusRank[from]+1
}

// Apply merges a patch into the record and reports whether anything changed.
//
// Merge rules enforced here are the field-ownership contract between the
// uploader, the event normalizer and the external encode job:
//
//   - Status only moves forward through the state machine; a stale or
//     duplicate status write is silently dropped, not an error.
//   - QueuedAt and UploadedAt are write-once; the first writer wins.
//   - ProcessingError is only recorded together with a failed status.
//   - URL fields are last-write-wins (each has a single writer).
func (r *AssetStatus) Apply(p StatusPatch, now time.Time) bool {
	changed := false
	if p.Status != nil && ValidStatus(*p.Status) && *p.Status != r.Status {
		if !IsTerminal(r.Status) && statusRank[*p.Status] > statusRank[r.Status] {
			r.Status = *p.Status
			changed = true
		}
	}
	if p.RawURL != nil && *p.RawURL != r.RawURL {
		r.RawURL = *p.RawURL
		changed = true
	}
	if p.ProcessedURL != nil && *p.ProcessedURL != r.ProcessedURL {
		r.ProcessedURL = *p.ProcessedURL
		changed = true
	}
	if p.QueuedAt != nil && r.QueuedAt == nil {
		t := *p.QueuedAt
		r.QueuedAt = &t
		changed = true
	}
	if p.UploadedAt != nil && r.UploadedAt == nil {
		t := *p.UploadedAt
		r.UploadedAt = &t
		changed = true
	}
	if p.ProcessingError != nil && r.Status == StatusFailed && *p.ProcessingError != r.ProcessingError {
		r.ProcessingError = *p.ProcessingError
		changed = true
	}
	if changed {
		r.UpdatedAt = now
	}
	return changed
}

package mediaingest

import (
	"time"
)

// ProcessingStatus is the domain type for asset pipeline states.
type ProcessingStatus string

// Processing status constants (typed).
const (
	StatusUploading  ProcessingStatus = "uploading"
	StatusQueued     ProcessingStatus = "queued"
	StatusProcessing ProcessingStatus = "processing"
	StatusReady      ProcessingStatus = "ready"
	StatusFailed     ProcessingStatus = "failed"
)

// AssetStatus is the per-asset status record shared by the uploader, the
// event normalizer and the external encode job. It is keyed by
// (OwnerID, AssetID) and merge-updated: writers patch the fields they own
// and never replace the whole record.
type AssetStatus struct {
	AssetID       string           `json:"asset_id"`
	OwnerID       string           `json:"owner_id"`
	FileName      string           `json:"file_name,omitempty"`
	FileSizeBytes int64            `json:"file_size_bytes,omitempty"`
	ContentType   string           `json:"content_type,omitempty"`
	RawObjectPath string           `json:"raw_object_path,omitempty"`
	Status        ProcessingStatus `json:"status"`
	RawURL        string           `json:"raw_url,omitempty"`
	ProcessedURL  string           `json:"processed_url,omitempty"`
	QueuedAt      *time.Time       `json:"queued_at,omitempty"`
	UploadedAt    *time.Time       `json:"uploaded_at,omitempty"`
	// ProcessingError is set only when Status is StatusFailed.
	ProcessingError string        `json:"processing_error,omitempty"`
	Metadata        AssetMetadata `json:"metadata,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AssetMetadata is the descriptive bag supplied by the uploader at creation.
// Downstream components never mutate it. Duration, fps and bitrate come from
// the client-side container probe and are best-effort estimates.
type AssetMetadata struct {
	Tags            []string `json:"tags,omitempty"`
	Description     string   `json:"description,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
	Width           int      `json:"width,omitempty"`
	Height          int      `json:"height,omitempty"`
	FramesPerSecond float64  `json:"frames_per_second,omitempty"`
	BitrateKbps     int64    `json:"bitrate_kbps,omitempty"`
}

// StatusPatch is a field-level merge update against an AssetStatus record.
// Nil fields are left untouched. Status merges through the state machine and
// never moves backward; QueuedAt and UploadedAt are write-once.
type StatusPatch struct {
	Status          *ProcessingStatus
	RawURL          *string
	ProcessedURL    *string
	QueuedAt        *time.Time
	UploadedAt      *time.Time
	ProcessingError *string
}

// IsZero reports whether the patch carries no fields.
func (p StatusPatch) IsZero() bool {
	return p.Status == nil && p.RawURL == nil && p.ProcessedURL == nil &&
		p.QueuedAt == nil && p.UploadedAt == nil && p.ProcessingError == nil
}

// StatusPtr returns a pointer to s, for building patches.
func StatusPtr(s ProcessingStatus) *ProcessingStatus { return &s }

// StringPtr returns a pointer to s, for building patches.
func StringPtr(s string) *string { return &s }

// TimePtr returns a pointer to t, for building patches.
func TimePtr(t time.Time) *time.Time { return &t }

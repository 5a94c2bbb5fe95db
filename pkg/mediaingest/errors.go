package mediaingest

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrAssetNotFound indicates a status record was not found
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAssetExists indicates a status record already exists for the key
	ErrAssetExists = errors.New("asset already exists")

	// ErrInvalidStatus indicates an unknown processing status
	ErrInvalidStatus = errors.New("invalid processing status")

	// ErrEmptyPatch indicates a merge write carrying no fields
	ErrEmptyPatch = errors.New("empty status patch")

	// ErrUploadFailed indicates the raw byte transfer failed
	ErrUploadFailed = errors.New("upload failed")

	// ErrUploadCanceled indicates the transfer was canceled before completion
	ErrUploadCanceled = errors.New("upload canceled")

	// ErrWatchClosed indicates a status subscription was closed
	ErrWatchClosed = errors.New("status watch closed")
)

// AssetError represents an error related to a status record operation
type AssetError struct {
	OwnerID string
	AssetID string
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for %s/%s: %v", e.Op, e.OwnerID, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to raw object storage operations
type StorageError struct {
	Bucket string
	Key    string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s in bucket %s: %v", e.Op, e.Key, e.Bucket, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DispatchError represents a failed control-plane run request. The event
// handler maps it to a retry-eligible response so the delivery system
// redelivers.
type DispatchError struct {
	Job string
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed for job %s: %v", e.Job, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Package mediaingest implements the video ingestion and encoding
// orchestration pipeline: resumable uploads into a raw bucket, storage-event
// normalization and dispatch to an external encode job, and the shared
// per-asset status record both sides observe.
//
// The package defines the domain types and interfaces. Concrete
// implementations live in subpackages:
//
//   - uploader: client-side upload orchestration (validate, transfer, watch)
//   - envelope: event envelope normalization
//   - rawpath: raw object key encoding/decoding
//   - probe: best-effort container metadata probing for selection limits
//   - api: HTTP handlers for the event endpoint and the asset status API
//   - dispatch: batch-compute control-plane client
//   - statusstore/memory, statusstore/postgres: status record stores
//   - storage/memory, storage/s3: blob stores for the raw bucket
//   - config: declarative assembly of stores and dispatcher
package mediaingest

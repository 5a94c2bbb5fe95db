// Package postgres provides a pgx-backed StatusStore. Records live in the
// asset_status table (see migrations/0001_asset_status.sql); merge writes run
// inside a transaction holding a row lock so the field-level merge rules are
// applied exactly once per write.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// WatchPollInterval is how often a Watch subscription polls for changes.
// Postgres has no push channel wired here; polling keeps the store free of
// triggers and works against any plain database.
const WatchPollInterval = 2 * time.Second

// Store implements mediaingest.StatusStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool

	pollInterval time.Duration
	now          func() time.Time
}

// New creates a new PostgreSQL status store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, pollInterval: WatchPollInterval, now: time.Now}
}

func (s *Store) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "asset_status") {
				return mediaingest.ErrAssetExists
			}
			return fmt.Errorf("duplicate entry")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

const statusColumns = `owner_id, asset_id, file_name, file_size_bytes, content_type,
       raw_object_path, status, raw_url, processed_url, queued_at, uploaded_at,
       processing_error, metadata, created_at, updated_at`

func (s *Store) Create(ctx context.Context, rec *mediaingest.AssetStatus) error {
	now := s.now()
	recCopy := *rec
	if recCopy.Status == "" {
		recCopy.Status = mediaingest.StatusUploading
	}
	if recCopy.CreatedAt.IsZero() {
		recCopy.CreatedAt = now
	}
	recCopy.UpdatedAt = now

	metadata, err := json.Marshal(recCopy.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO asset_status (` + statusColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.pool.Exec(ctx, query,
		recCopy.OwnerID, recCopy.AssetID, recCopy.FileName, recCopy.FileSizeBytes,
		recCopy.ContentType, recCopy.RawObjectPath, recCopy.Status, recCopy.RawURL,
		recCopy.ProcessedURL, recCopy.QueuedAt, recCopy.UploadedAt,
		recCopy.ProcessingError, metadata, recCopy.CreatedAt, recCopy.UpdatedAt)
	if err != nil {
		err = s.handlePostgresError("create asset status", err)
		return &mediaingest.AssetError{OwnerID: rec.OwnerID, AssetID: rec.AssetID, Op: "create", Err: err}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ownerID, assetID string) (*mediaingest.AssetStatus, error) {
	query := `SELECT ` + statusColumns + ` FROM asset_status WHERE owner_id = $1 AND asset_id = $2`
	return s.scanOne(s.pool.QueryRow(ctx, query, ownerID, assetID))
}

// Apply merge-writes the patch inside a transaction with the row locked.
// A missing record is upserted from the patch so the normalizer firing ahead
// of the uploader's record write is not lost.
func (s *Store) Apply(ctx context.Context, ownerID, assetID string, patch mediaingest.StatusPatch) (*mediaingest.AssetStatus, error) {
	if patch.IsZero() {
		return nil, &mediaingest.AssetError{OwnerID: ownerID, AssetID: assetID, Op: "apply", Err: mediaingest.ErrEmptyPatch}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, s.handlePostgresError("begin apply", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	query := `SELECT ` + statusColumns + ` FROM asset_status WHERE owner_id = $1 AND asset_id = $2 FOR UPDATE`
	rec, err := s.scanOne(tx.QueryRow(ctx, query, ownerID, assetID))

	switch {
	case errors.Is(err, mediaingest.ErrAssetNotFound):
		rec = &mediaingest.AssetStatus{
			OwnerID:   ownerID,
			AssetID:   assetID,
			Status:    mediaingest.StatusUploading,
			CreatedAt: now,
			UpdatedAt: now,
		}
		rec.Apply(patch, now)
		inserted, err := s.insertTx(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		if !inserted {
			// Lost the insert race: another writer created the row after
			// our select. Lock the winner's row and merge onto it so this
			// patch is not dropped.
			rec, err = s.scanOne(tx.QueryRow(ctx, query, ownerID, assetID))
			if err != nil {
				return nil, err
			}
			if rec.Apply(patch, now) {
				if err := s.updateTx(ctx, tx, rec); err != nil {
					return nil, err
				}
			}
		}
	case err != nil:
		return nil, err
	default:
		if rec.Apply(patch, now) {
			if err := s.updateTx(ctx, tx, rec); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.handlePostgresError("commit apply", err)
	}
	return rec, nil
}

// insertTx inserts the record, reporting false when the row already exists.
// Callers treat a conflict as losing an insert race and re-read the row.
func (s *Store) insertTx(ctx context.Context, tx pgx.Tx, rec *mediaingest.AssetStatus) (bool, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}
	query := `
		INSERT INTO asset_status (` + statusColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (owner_id, asset_id) DO NOTHING`
	tag, err := tx.Exec(ctx, query,
		rec.OwnerID, rec.AssetID, rec.FileName, rec.FileSizeBytes, rec.ContentType,
		rec.RawObjectPath, rec.Status, rec.RawURL, rec.ProcessedURL, rec.QueuedAt,
		rec.UploadedAt, rec.ProcessingError, metadata, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, s.handlePostgresError("upsert asset status", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) updateTx(ctx context.Context, tx pgx.Tx, rec *mediaingest.AssetStatus) error {
	query := `
		UPDATE asset_status SET
			status = $3, raw_url = $4, processed_url = $5, queued_at = $6,
			uploaded_at = $7, processing_error = $8, updated_at = $9
		WHERE owner_id = $1 AND asset_id = $2`
	_, err := tx.Exec(ctx, query,
		rec.OwnerID, rec.AssetID, rec.Status, rec.RawURL, rec.ProcessedURL,
		rec.QueuedAt, rec.UploadedAt, rec.ProcessingError, rec.UpdatedAt)
	if err != nil {
		return s.handlePostgresError("update asset status", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, ownerID string) ([]*mediaingest.AssetStatus, error) {
	query := `SELECT ` + statusColumns + `
		FROM asset_status WHERE owner_id = $1
		ORDER BY created_at DESC, asset_id DESC`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, s.handlePostgresError("list asset status", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

func (s *Store) ListStalled(ctx context.Context, olderThan time.Duration) ([]*mediaingest.AssetStatus, error) {
	cutoff := s.now().Add(-olderThan)
	query := `SELECT ` + statusColumns + `
		FROM asset_status
		WHERE status NOT IN ($1, $2) AND updated_at < $3
		ORDER BY created_at DESC, asset_id DESC`
	rows, err := s.pool.Query(ctx, query, mediaingest.StatusReady, mediaingest.StatusFailed, cutoff)
	if err != nil {
		return nil, s.handlePostgresError("list stalled", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

func (s *Store) scanAll(rows pgx.Rows) ([]*mediaingest.AssetStatus, error) {
	var result []*mediaingest.AssetStatus
	for rows.Next() {
		rec, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) scanOne(row pgx.Row) (*mediaingest.AssetStatus, error) {
	var rec mediaingest.AssetStatus
	var metadata []byte
	err := row.Scan(
		&rec.OwnerID, &rec.AssetID, &rec.FileName, &rec.FileSizeBytes,
		&rec.ContentType, &rec.RawObjectPath, &rec.Status, &rec.RawURL,
		&rec.ProcessedURL, &rec.QueuedAt, &rec.UploadedAt, &rec.ProcessingError,
		&metadata, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaingest.ErrAssetNotFound
		}
		return nil, s.handlePostgresError("scan asset status", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

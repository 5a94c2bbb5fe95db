// Package memory provides an in-memory BlobStore used in tests and local
// development.
package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// Backend is an in-memory implementation of the mediaingest.BlobStore
// interface.
type Backend struct {
	mu          sync.RWMutex
	objects     map[string][]byte
	contentType map[string]string
}

// New creates a new in-memory storage backend.
func New() *Backend {
	return &Backend{
		objects:     make(map[string][]byte),
		contentType: make(map[string]string),
	}
}

// Upload writes the object in one shot.
func (b *Backend) Upload(ctx context.Context, key, contentType string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return &mediaingest.StorageError{Key: key, Op: "upload", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.contentType[key] = contentType
	return nil
}

// NewUploadSession starts a part-by-part upload. Nothing is visible under
// the key until Complete.
func (b *Backend) NewUploadSession(ctx context.Context, key, contentType string, totalSize int64) (mediaingest.UploadSession, error) {
	return &session{backend: b, key: key, contentType: contentType}, nil
}

// URL returns a synthetic memory:// URL for the object.
func (b *Backend) URL(ctx context.Context, key string) (string, error) {
	return "memory://" + key, nil
}

// Get returns the stored bytes; test helper.
func (b *Backend) Get(key string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// ContentType returns the stored content type; test helper.
func (b *Backend) ContentType(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ct, ok := b.contentType[key]
	return ct, ok
}

type session struct {
	backend     *Backend
	key         string
	contentType string

	mu       sync.Mutex
	buf      bytes.Buffer
	finished bool
}

func (s *session) UploadPart(ctx context.Context, reader io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return errors.New("upload session already finished")
	}
	n, err := io.Copy(&s.buf, io.LimitReader(reader, size))
	if err != nil {
		return &mediaingest.StorageError{Key: s.key, Op: "upload part", Err: err}
	}
	if n != size {
		return &mediaingest.StorageError{Key: s.key, Op: "upload part", Err: io.ErrUnexpectedEOF}
	}
	return nil
}

func (s *session) Complete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return errors.New("upload session already finished")
	}
	s.finished = true

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.objects[s.key] = s.buf.Bytes()
	s.backend.contentType[s.key] = s.contentType
	return nil
}

func (s *session) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.buf.Reset()
	return nil
}

func (s *session) BytesSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.buf.Len())
}

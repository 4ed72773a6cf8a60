// Package blob stores attachment payloads in a pebble key/value store.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/google/uuid"
	"github.com/matheus3301/qchat/internal/metrics"
	"go.uber.org/zap"
)

// Record is a stored attachment.
type Record struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Size    int64     `json:"size"`
	TS      time.Time `json:"ts"`
	Payload []byte    `json:"-"`
}

// Getter reads attachment records. A nil record with nil error means absent.
type Getter interface {
	Get(ctx context.Context, id string) (*Record, error)
}

// Store is the profile's Blob Store.
type Store struct {
	db  *pebble.DB
	log *zap.Logger
}

// Open opens (creating if needed) the blob store at dir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &Store{db: db, log: logger}, nil
}

func metaKey(id string) []byte { return []byte("m/" + id) }
func dataKey(id string) []byte { return []byte("b/" + id) }

// Put stores payload under a fresh id and returns it. Metadata and payload
// are committed in one batch.
func (s *Store) Put(ctx context.Context, payload []byte, name, mime string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()
	defer func() { metrics.BlobLatency.Observe(time.Since(start).Seconds()) }()

	rec := Record{
		ID:   uuid.NewString(),
		Name: name,
		Type: mime,
		Size: int64(len(payload)),
		TS:   time.Now().UTC(),
	}
	meta, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Set(dataKey(rec.ID), payload, nil); err != nil {
		return "", fmt.Errorf("stage payload: %w", err)
	}
	if err := b.Set(metaKey(rec.ID), meta, nil); err != nil {
		return "", fmt.Errorf("stage metadata: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return "", fmt.Errorf("commit attachment: %w", err)
	}
	s.log.Debug("attachment stored", zap.String("id", rec.ID), zap.Int64("size", rec.Size))
	return rec.ID, nil
}

// Get returns the record for id, or nil if it is not stored.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.BlobLatency.Observe(time.Since(start).Seconds()) }()

	meta, closer, err := s.db.Get(metaKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var rec Record
	err = json.Unmarshal(meta, &rec)
	_ = closer.Close()
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	data, closer, err := s.db.Get(dataKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	rec.Payload = append([]byte(nil), data...)
	_ = closer.Close()
	return &rec, nil
}

// Delete removes the attachment. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Delete(metaKey(id), nil); err != nil {
		return err
	}
	if err := b.Delete(dataKey(id), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Kind classifies a MIME type for display: image, video, audio or file.
func Kind(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	default:
		return "file"
	}
}

// Package storage archives uploaded statement files with local and GCS implementations.
// Every upload is kept under its own id so an import can be audited against its source.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no file has the requested id.
var ErrNotFound = errors.New("file not found")

// FileInfo describes one archived upload.
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // backend-specific location
	CreatedAt   time.Time `json:"created_at"`
}

// Storage is the statement archive. Lookups by an unknown id wrap ErrNotFound.
type Storage interface {
	Upload(ctx context.Context, filename string, contentType string, r io.Reader) (*FileInfo, error)
	Download(ctx context.Context, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error)
	Delete(ctx context.Context, fileID uuid.UUID) error
	// List is ordered oldest first.
	List(ctx context.Context) ([]*FileInfo, error)
	GetInfo(ctx context.Context, fileID uuid.UUID) (*FileInfo, error)
}

type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeGCS   StorageType = "gcs"
)

// Config selects and configures the archive backend. GCS credentials come from
// Application Default Credentials.
type Config struct {
	Type      StorageType
	LocalPath string
	GCSBucket string
	GCSPrefix string
}

func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeGCS:
		return NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// sanitizeFilename keeps a name safe to use as a single path segment or object
// name suffix.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "..", "_")
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." {
		return "upload"
	}
	return name
}

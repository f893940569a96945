package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// GCSStorage implements Storage on a Google Cloud Storage bucket. Objects are named
// <prefix><id>/<filename>, so the id alone locates a file.
type GCSStorage struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSStorage connects with Application Default Credentials.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket, prefix: normalizePrefix(prefix)}, nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) Upload(ctx context.Context, filename string, contentType string, r io.Reader) (*FileInfo, error) {
	fileID := uuid.New()
	name := objectName(s.prefix, fileID, filename)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"original-name": filename}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	return fileInfo(fileID, w.Attrs()), nil
}

func (s *GCSStorage) Download(ctx context.Context, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.client.Bucket(s.bucket).Object(info.Path).NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open GCS object reader: %w", err)
	}
	return rc, info, nil
}

func (s *GCSStorage) Delete(ctx context.Context, fileID uuid.UUID) error {
	info, err := s.GetInfo(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(info.Path).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}

func (s *GCSStorage) List(ctx context.Context) ([]*FileInfo, error) {
	files, err := s.query(ctx, s.prefix, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].CreatedAt.Before(files[j].CreatedAt) })
	return files, nil
}

func (s *GCSStorage) GetInfo(ctx context.Context, fileID uuid.UUID) (*FileInfo, error) {
	files, err := s.query(ctx, s.prefix+fileID.String()+"/", 1)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return files[0], nil
}

// query lists objects under prefix; limit 0 means all.
func (s *GCSStorage) query(ctx context.Context, prefix string, limit int) ([]*FileInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})

	var files []*FileInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		id, ok := parseObjectID(s.prefix, attrs.Name)
		if !ok {
			continue
		}
		files = append(files, fileInfo(id, attrs))
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func fileInfo(id uuid.UUID, attrs *gcs.ObjectAttrs) *FileInfo {
	name := attrs.Metadata["original-name"]
	if name == "" {
		name = path.Base(attrs.Name)
	}
	return &FileInfo{
		ID:          id,
		Name:        name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Path:        attrs.Name,
		CreatedAt:   attrs.Created,
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func objectName(prefix string, id uuid.UUID, filename string) string {
	return prefix + id.String() + "/" + sanitizeFilename(filename)
}

// parseObjectID extracts the id segment of an object named by objectName.
func parseObjectID(prefix, name string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return uuid.Nil, false
	}
	idPart, _, ok := strings.Cut(rest, "/")
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

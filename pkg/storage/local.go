package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// infoFile sits next to the archived content in each upload directory.
const infoFile = "info.json"

// LocalStorage archives uploads on disk, one directory per upload id:
//
//	<base>/<id>/info.json
//	<base>/<id>/<sanitized name>
type LocalStorage struct {
	basePath string
	now      func() time.Time
}

// NewLocalStorage creates the archive root if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, now: time.Now}, nil
}

func (s *LocalStorage) dir(id uuid.UUID) string {
	return filepath.Join(s.basePath, id.String())
}

// Upload writes the content to a temp file first so a failed copy never leaves a
// half-written archive entry behind.
func (s *LocalStorage) Upload(ctx context.Context, filename string, contentType string, r io.Reader) (*FileInfo, error) {
	id := uuid.New()
	dir := s.dir(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	stored := sanitizeFilename(filename)
	size, err := writeAtomic(filepath.Join(dir, stored), r)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	info := &FileInfo{
		ID:          id,
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		Path:        stored,
		CreatedAt:   s.now(),
	}
	raw, err := json.Marshal(info)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to encode file info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, infoFile), raw, 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write file info: %w", err)
	}
	return info, nil
}

func writeAtomic(dst string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write file: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to move file into place: %w", err)
	}
	return n, nil
}

func (s *LocalStorage) Download(ctx context.Context, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.dir(fileID), info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

func (s *LocalStorage) Delete(ctx context.Context, fileID uuid.UUID) error {
	if _, err := s.GetInfo(ctx, fileID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dir(fileID)); err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", fileID, err)
	}
	return nil
}

// List skips directories that are not upload ids or whose info file is unreadable.
func (s *LocalStorage) List(ctx context.Context) ([]*FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	var files []*FileInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		if info, err := s.GetInfo(ctx, id); err == nil {
			files = append(files, info)
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].CreatedAt.Before(files[j].CreatedAt) })
	return files, nil
}

func (s *LocalStorage) GetInfo(_ context.Context, fileID uuid.UUID) (*FileInfo, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir(fileID), infoFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	case err != nil:
		return nil, fmt.Errorf("failed to read file info: %w", err)
	}

	info := new(FileInfo)
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("failed to decode file info for %s: %w", fileID, err)
	}
	return info, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/syncdrive/internal/common"
)

// LocalBackend stores blobs as files under a base directory. Writes go to a
// temporary file first and are renamed into place, so readers never observe
// a partially written blob.
type LocalBackend struct {
	baseDir string
}

// NewLocalBackend creates the base directory if needed.
func NewLocalBackend(baseDir string) (*LocalBackend, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base dir required: %w", common.ErrorValidation)
	}
	if err := os.MkdirAll(baseDir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", baseDir, err)
	}
	return &LocalBackend{baseDir: baseDir}, nil
}

func (b *LocalBackend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q: %w", key, common.ErrorValidation)
	}
	return filepath.Join(b.baseDir, clean), nil
}

func (b *LocalBackend) Store(ctx context.Context, key string, data []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	return nil
}

func (b *LocalBackend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	return data, nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	return nil
}

func (b *LocalBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	data, err := b.Retrieve(ctx, srcKey)
	if err != nil {
		return err
	}
	return b.Store(ctx, dstKey, data)
}

func (b *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	path, err := b.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	return true, nil
}

func (b *LocalBackend) GetSize(ctx context.Context, key string) (int64, error) {
	path, err := b.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("%w: %v", common.ErrStorageBackend, err)
	}
	return info.Size(), nil
}

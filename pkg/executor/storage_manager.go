package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/storage"
)

// Work directories are created with this prefix and only those are removed
const workDirPrefix = "vidioai-"

// StorageManager moves files between storage backends and job work directories
type StorageManager struct {
	store storage.Storage
}

// NewStorageManager creates a storage manager over store
func NewStorageManager(store storage.Storage) *StorageManager {
	return &StorageManager{store: store}
}

// CreateWorkDir makes a fresh work directory under parent ("" for the OS default)
func (sm *StorageManager) CreateWorkDir(parent string) (string, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", fmt.Errorf("failed to create temp root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, workDirPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	return dir, nil
}

// Stage copies the object at uri to a local path
func (sm *StorageManager) Stage(ctx context.Context, uri, localPath string) error {
	reader, err := sm.store.Get(ctx, uri)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", uri, err)
	}
	defer reader.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	return file.Close()
}

// StageAssets writes every asset of a compiled spec into workDir
func (sm *StorageManager) StageAssets(ctx context.Context, workDir string, assets []operators.Asset) error {
	for _, asset := range assets {
		// Asset names are fixed by operators; reject anything that leaves the work dir
		if asset.Name == "" || filepath.Base(asset.Name) != asset.Name {
			return fmt.Errorf("invalid asset name %q", asset.Name)
		}
		dst := filepath.Join(workDir, asset.Name)

		if asset.URI != "" {
			if err := sm.Stage(ctx, asset.URI, dst); err != nil {
				return fmt.Errorf("failed to stage %s: %w", asset.Name, err)
			}
			continue
		}
		if err := os.WriteFile(dst, asset.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", asset.Name, err)
		}
	}
	return nil
}

// Upload stores a local file at destURI
func (sm *StorageManager) Upload(ctx context.Context, localPath, destURI string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	if err := sm.store.Put(ctx, destURI, file); err != nil {
		return fmt.Errorf("failed to upload to %s: %w", destURI, err)
	}
	return nil
}

// Copy copies an object between two URIs, possibly across backends
func (sm *StorageManager) Copy(ctx context.Context, srcURI, destURI string) error {
	reader, err := sm.store.Get(ctx, srcURI)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcURI, err)
	}
	defer reader.Close()

	if err := sm.store.Put(ctx, destURI, reader); err != nil {
		return fmt.Errorf("failed to write %s: %w", destURI, err)
	}
	return nil
}

// CleanupTempDir removes a work directory and all its contents
func (sm *StorageManager) CleanupTempDir(tempDir string) error {
	if tempDir == "" || tempDir == "/" || tempDir == "." {
		return fmt.Errorf("invalid temp directory: %s", tempDir)
	}

	// Only cleanup directories created by CreateWorkDir
	if !strings.HasPrefix(filepath.Base(tempDir), workDirPrefix) {
		return fmt.Errorf("refusing to cleanup non-work directory: %s", tempDir)
	}

	return os.RemoveAll(tempDir)
}

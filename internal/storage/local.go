package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

type LocalProvider struct {
	baseDir string
}

func (p *LocalProvider) fullpath(bucket, key string) string {
	return filepath.Join(p.baseDir, bucket, key)
}

var _ Provider = &LocalProvider{}

func NewLocalProvider(dir string) (*LocalProvider, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	for _, bucket := range []string{DocumentsBucket, DatasetsBucket} {
		if err := os.MkdirAll(filepath.Join(baseDir, bucket), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return &LocalProvider{baseDir: baseDir}, nil
}

func (p *LocalProvider) Path(bucket, key string) string {
	return p.fullpath(bucket, key)
}

func (p *LocalProvider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(p.fullpath(bucket, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (p *LocalProvider) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	path := p.fullpath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", bucket, key, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", bucket, key, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (p *LocalProvider) PutFile(ctx context.Context, bucket, key, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcPath, err)
	}
	defer src.Close()

	if err := p.PutObject(ctx, bucket, key, src); err != nil {
		// Don't leave a truncated copy behind.
		_ = os.Remove(p.fullpath(bucket, key))
		return err
	}
	return nil
}

func (p *LocalProvider) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := os.Remove(p.fullpath(bucket, key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("managed file already removed", "bucket", bucket, "key", key)
			return nil
		}
		return fmt.Errorf("failed to delete file %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (p *LocalProvider) ListObjects(ctx context.Context, bucket string) ([]Object, error) {
	files, err := os.ReadDir(p.fullpath(bucket, ""))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list files in %s: %w", bucket, err)
	}

	var objects []Object
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to get file info for %s/%s: %w", bucket, file.Name(), err)
		}

		objects = append(objects, Object{Name: file.Name(), Size: info.Size()})
	}

	return objects, nil
}

func (p *LocalProvider) ClearBucket(ctx context.Context, bucket string) error {
	dir := p.fullpath(bucket, "")
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear bucket %s: %w", bucket, err)
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to recreate bucket %s: %w", bucket, err)
	}
	return nil
}

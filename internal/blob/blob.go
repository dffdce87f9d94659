// Package blob is the local-filesystem-backed implementation of the blob
// store contract in SPEC_FULL.md §6.1. Cloud object storage (S3/GCS) is out
// of scope, so this is the only implementation; it exists as its own
// package purely so callers depend on an interface rather than a concrete
// filesystem layout.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"scancorpus/internal/util"
)

// Store is the blob store contract: put/get/exists/URL keyed by an
// arbitrary path-like key (the fetcher and core use "files/<sha256>.<ext>").
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type Local struct {
	Root string
}

func NewLocal(root string) (*Local, error) {
	if err := util.EnsureDir(root); err != nil {
		return nil, err
	}
	return &Local{Root: root}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

// Put writes r to key atomically: a temp file in the same directory is
// written first and renamed into place, following the temp-file-then-rename
// pattern used throughout this codebase for local artifacts.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	_ = ctx
	dst := l.path(key)
	dir := filepath.Dir(dst)
	if err := util.EnsureDir(dir); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "tmp-blob-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write temp blob: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("close temp blob: %w", closeErr)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("rename temp blob: %w", err)
	}
	return n, nil
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	f, err := os.Open(l.path(key))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return f, nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	_ = ctx
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) URL(ctx context.Context, key string) (string, error) {
	_ = ctx
	abs, err := filepath.Abs(l.path(key))
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	_ = ctx
	err := os.Remove(l.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Package storage persists rendered thumbnails so repeated requests skip the
// fetch and transform pipeline.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound denotes that the object does not exists.
var ErrNotFound = errors.New("not found")

// Store interface.
type Store interface {
	Store(ctx context.Context, name string, data []byte, opts ...StoreOpt) error
	Open(ctx context.Context, name string) (*File, error)
	Delete(ctx context.Context, name string) error
}

// File contents and info.
type File struct {
	io.ReadSeekCloser

	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// StoreOpts to set while storing.
type StoreOpts struct {
	ContentType  string
	CacheControl string
}

// StoreOpt type.
type StoreOpt func(*StoreOpts)

// WithContentType option.
func WithContentType(s string) StoreOpt {
	return func(opts *StoreOpts) {
		opts.ContentType = s
	}
}

// WithCacheControl option.
func WithCacheControl(s string) StoreOpt {
	return func(opts *StoreOpts) {
		opts.CacheControl = s
	}
}

// ApplyOpts folds opts into a StoreOpts value.
func ApplyOpts(opts []StoreOpt) StoreOpts {
	var out StoreOpts
	for _, o := range opts {
		o(&out)
	}
	return out
}

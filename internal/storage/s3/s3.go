package s3

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/menta2k/image-thumbnailer/internal/storage"
)

// SetupTimeout bounds client and bucket setup.
const SetupTimeout = 10 * time.Second

// Store keeps objects in a single S3 compatible bucket. The client and the
// bucket are set up lazily on first use, and setup is retried by later calls
// until it succeeds.
type Store struct {
	Secure    bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string

	mu     sync.Mutex
	ready  bool
	client *minio.Client
}

func (s *Store) init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	// setup is shared by every later caller, so it must not die with this one
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SetupTimeout)
	defer cancel()

	if err := s.setup(ctx); err != nil {
		s.client = nil
		return err
	}
	s.ready = true
	return nil
}

func (s *Store) setup(ctx context.Context) error {
	var err error
	s.client, err = minio.New(s.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
		Secure: s.Secure,
		Region: s.Region,
	})
	if err != nil {
		return fmt.Errorf("could not create minio client: %w", err)
	}

	err = s.client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{
		Region: s.Region,
	})
	if err == nil {
		return nil
	}

	exists, errExists := s.client.BucketExists(ctx, s.Bucket)
	if errExists != nil {
		return fmt.Errorf("could not check bucket %q existence: %w", s.Bucket, errExists)
	}
	if !exists {
		return fmt.Errorf("could not create bucket %q: %w", s.Bucket, err)
	}
	return nil
}

// Store an object.
func (s *Store) Store(ctx context.Context, name string, data []byte, opts ...storage.StoreOpt) error {
	if err := s.init(ctx); err != nil {
		return err
	}

	options := storage.ApplyOpts(opts)
	_, err := s.client.PutObject(ctx, s.Bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  options.ContentType,
		CacheControl: options.CacheControl,
	})
	if err != nil {
		return fmt.Errorf("could not put object: %w", err)
	}
	return nil
}

// Open an object.
func (s *Store) Open(ctx context.Context, name string) (*storage.File, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not get object: %w", err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if e := minio.ToErrorResponse(err); e.Code == "NoSuchKey" {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("could not stat %q: %w", name, err)
	}

	return &storage.File{
		ReadSeekCloser: obj,
		Size:           stat.Size,
		ContentType:    stat.ContentType,
		ETag:           stat.ETag,
		LastModified:   stat.LastModified,
	}, nil
}

// Delete an object. Missing keys return storage.ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.init(ctx); err != nil {
		return err
	}

	_, err := s.client.StatObject(ctx, s.Bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if e := minio.ToErrorResponse(err); e.Code == "NoSuchKey" {
			return storage.ErrNotFound
		}
		return fmt.Errorf("could not stat %q: %w", name, err)
	}

	if err := s.client.RemoveObject(ctx, s.Bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("could not delete object: %w", err)
	}
	return nil
}

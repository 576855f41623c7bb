package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/image-thumbnailer/internal/storage"
)

// Store keeps objects as files below Root. Names may contain forward
// slashes, which become subdirectories.
type Store struct {
	Root string
}

func (s *Store) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + name))
	if clean == string(filepath.Separator) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.Root, clean), nil
}

func (s *Store) Store(_ context.Context, name string, data []byte, _ ...storage.StoreOpt) error {
	filename, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filename), fs.ModePerm); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("could not move file into place: %w", err)
	}
	return nil
}

func (s *Store) Open(_ context.Context, name string) (*storage.File, error) {
	filename, err := s.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	// http.DetectContentType needs at most 512 bytes.
	firstBytes := make([]byte, 512)
	read, err := f.Read(firstBytes)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("could not read first 512 bytes from file: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not reset file reader after sniffing its content-type: %w", err)
	}

	return &storage.File{
		ReadSeekCloser: f,
		Size:           stat.Size(),
		ContentType:    http.DetectContentType(firstBytes[:read]),
		LastModified:   stat.ModTime(),
	}, nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	filename, err := s.path(name)
	if err != nil {
		return err
	}

	err = os.Remove(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("could not remove file: %w", err)
	}
	return nil
}

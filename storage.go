package herring

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

const gsPrefix = "gs://"

// IsGoogleStorage reports whether path names a Google Storage object.
func IsGoogleStorage(path string) bool {
	return strings.HasPrefix(path, gsPrefix)
}

// SplitGoogleStoragePath splits gs://bucket/some/object into its bucket and
// object names.
func SplitGoogleStoragePath(path string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(path, gsPrefix), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("%w: expected gs://bucket/object, got %q", ErrInvalidArgument, path)
	}

	return pathParts[0], pathParts[1], nil
}

// StagedWriter collects an output without touching its destination. Commit
// makes the output visible; Abort discards it and leaves any previous version
// in place.
type StagedWriter interface {
	io.Writer
	Commit() error
	Abort()
}

// GSWriteCloser decorates a Google Storage object writer. The object only
// becomes visible in the bucket once Close returns without error.
type GSWriteCloser struct {
	*storage.Writer
	cancel context.CancelFunc
}

// Close commits the object. If the upload failed, the error surfaces here.
func (w *GSWriteCloser) Close() error {
	defer w.cancel()

	return w.Writer.Close()
}

// Commit is Close.
func (w *GSWriteCloser) Commit() error {
	return w.Close()
}

// Abort cancels the upload so that no object is created.
func (w *GSWriteCloser) Abort() {
	w.cancel()
	_ = w.Writer.Close()
}

// localStagedFile writes into a temporary file next to dest and renames it
// over dest on Commit.
type localStagedFile struct {
	*os.File
	dest string
}

func (f *localStagedFile) Commit() error {
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return pfx.Err(err)
	}

	if err := os.Rename(f.Name(), f.dest); err != nil {
		os.Remove(f.Name())
		return pfx.Err(err)
	}

	return nil
}

func (f *localStagedFile) Abort() {
	f.File.Close()
	os.Remove(f.Name())
}

// MaybeCreateOnGoogleStorage stages a write to path. Paths starting with gs://
// are written through client, which must then be non-nil; anything else is
// staged on the local filesystem after ~ expansion, in the destination's
// directory, and replaces the destination on Commit.
func MaybeCreateOnGoogleStorage(ctx context.Context, path string, client *storage.Client) (StagedWriter, error) {
	if IsGoogleStorage(path) {
		if client == nil {
			return nil, fmt.Errorf("%w: %s requires a Google Storage client", ErrInvalidArgument, path)
		}

		bucketName, objectName, err := SplitGoogleStoragePath(path)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithCancel(ctx)
		wr := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
		wr.ContentType = contentTypeFor(objectName)

		return &GSWriteCloser{Writer: wr, cancel: cancel}, nil
	}

	localPath, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*")
	if err != nil {
		return nil, pfx.Err(err)
	}

	// CreateTemp uses 0600; outputs are reports meant to be shared.
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, pfx.Err(err)
	}

	return &localStagedFile{File: f, dest: localPath}, nil
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"):
		return "text/html; charset=utf-8"
	}

	return "application/octet-stream"
}

// MaybeOpenFromGoogleStorage opens path for reading, from Google Storage when
// it starts with gs:// (client must then be non-nil) and from the local
// filesystem otherwise.
func MaybeOpenFromGoogleStorage(ctx context.Context, path string, client *storage.Client) (io.ReadCloser, error) {
	if IsGoogleStorage(path) {
		if client == nil {
			return nil, fmt.Errorf("%w: %s requires a Google Storage client", ErrInvalidArgument, path)
		}

		bucketName, objectName, err := SplitGoogleStoragePath(path)
		if err != nil {
			return nil, err
		}

		r, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}

		return r, nil
	}

	localPath, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	return os.Open(localPath)
}

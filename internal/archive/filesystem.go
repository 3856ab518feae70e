package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"abus-go/internal/abus"
)

// FileSystemArchive reads an archive from a local directory:
//
//	<root>/
//	  <run>.gz              (content list of a run, ignored)
//	  <archive_dir>/
//	    <checksum>[.z]      (blobs)
//	    <run>.lst           (run indexes)
type FileSystemArchive struct {
	root string
}

var _ abus.ArchiveSource = (*FileSystemArchive)(nil)

// NewFileSystemArchive opens the archive rooted at root, which must be an
// existing directory.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	a := &FileSystemArchive{root: root}
	if err := a.ValidateSetup(); err != nil {
		return nil, err
	}
	return a, nil
}

// ValidateSetup verifies that the archive root is an accessible directory.
func (a *FileSystemArchive) ValidateSetup() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}
	return nil
}

func (a *FileSystemArchive) path(dir, name string) string {
	return filepath.Join(a.root, filepath.FromSlash(dir), name)
}

func (a *FileSystemArchive) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(a.path(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, joinKey(dir, name))
		}
		return nil, fmt.Errorf("opening archive file: %w", err)
	}
	return f, nil
}

func (a *FileSystemArchive) Walk(ctx context.Context, fn func(dir, name string) error) error {
	return filepath.WalkDir(a.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		dir := filepath.ToSlash(filepath.Dir(rel))
		if dir == "." {
			dir = ""
		}
		return fn(dir, d.Name())
	})
}

// Put stores the contents of r as dir/name, replacing any existing file.
// The write goes to a temp file that is renamed into place.
func (a *FileSystemArchive) Put(dir, name string, r io.Reader) error {
	dest := a.path(dir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", joinKey(dir, name), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

func joinKey(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

package abus

import (
	"context"
	"io"
	"iter"
)

// ArchiveSource gives read access to the files of an archive by their
// archive-relative location.
type ArchiveSource interface {
	// Open opens the file name inside dir for reading. dir is '/'-separated and
	// relative to the archive root; an empty dir is the root itself.
	Open(ctx context.Context, dir string, name string) (io.ReadCloser, error)

	// Walk calls fn for every file in the archive in lexical order.
	Walk(ctx context.Context, fn func(dir string, name string) error) error
}

// BlockReader opens archived blobs for sequential reading.
type BlockReader interface {
	// Open opens the blob for checksum stored in dir, decompressing it when
	// compressed is set and decrypting it when the archive is encrypted.
	Open(ctx context.Context, dir string, checksum string, compressed bool) (BlockStream, error)
}

// BlockStream is an open blob. Blocks yields its contents in file order and
// can be ranged over only once. The caller must Close the stream.
type BlockStream interface {
	Blocks() iter.Seq2[[]byte, error]
	Close() error
}

// BlobName returns the archive file name of a blob.
func BlobName(checksum string, compressed bool) string {
	if compressed {
		return checksum + ".z"
	}
	return checksum
}

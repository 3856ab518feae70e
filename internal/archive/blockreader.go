package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/klauspost/compress/zstd"

	"abus-go/internal/abus"
)

// BlockSize is the size of the blocks yielded by a BlockStream. The last
// block of a blob may be shorter.
const BlockSize = 64 * 1024

var errStreamConsumed = errors.New("block stream already consumed")

// BlockReader opens blobs of an archive. Blobs are decrypted with the
// session's DecryptionContext; compressed (".z") blobs are zstd frames
// inside the encryption.
type BlockReader struct {
	source    abus.ArchiveSource
	decryptor abus.DecryptionContext
}

var _ abus.BlockReader = (*BlockReader)(nil)

// NewBlockReader creates a BlockReader for source.
func NewBlockReader(source abus.ArchiveSource, decryptor abus.DecryptionContext) *BlockReader {
	return &BlockReader{source: source, decryptor: decryptor}
}

func (b *BlockReader) Open(ctx context.Context, dir, checksum string, compressed bool) (abus.BlockStream, error) {
	name := abus.BlobName(checksum, compressed)
	src, err := b.source.Open(ctx, dir, name)
	if err != nil {
		return nil, err
	}

	plain, err := b.decryptor.DecryptReader(src)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("decrypting %s: %w", name, err)
	}

	s := &blockStream{src: src, r: plain}
	if compressed {
		zr, err := zstd.NewReader(plain, zstd.WithDecoderConcurrency(1))
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("decompressing %s: %w", name, err)
		}
		s.zr = zr
		s.r = zr
	}
	return s, nil
}

type blockStream struct {
	src  io.ReadCloser
	r    io.Reader
	zr   *zstd.Decoder
	used bool
}

// Blocks yields the blob in order. A yielded slice is only valid until the
// next iteration.
func (s *blockStream) Blocks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.used {
			yield(nil, errStreamConsumed)
			return
		}
		s.used = true

		buf := make([]byte, BlockSize)
		for {
			n, err := readBlock(s.r, buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// readBlock fills buf unless the reader ends or fails first. Unlike
// io.ReadFull it passes io.ErrUnexpectedEOF from r through, so a truncated
// blob is an error and not a short last block.
func readBlock(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *blockStream) Close() error {
	if s.zr != nil {
		s.zr.Close()
	}
	return s.src.Close()
}

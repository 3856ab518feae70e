package testutil

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"abus-go/internal/abus"
)

// Putter stores archive files. Implemented by the archive package's
// filesystem and memory archives.
type Putter interface {
	Put(dir, name string, r io.Reader) error
}

// ArchiveFixture writes blobs and run indexes the way the backup write
// path lays them out.
type ArchiveFixture struct {
	t   *testing.T
	dst Putter
	enc abus.Encryptor
}

// NewArchiveFixture creates a fixture writing to dst, encrypting with enc.
func NewArchiveFixture(t *testing.T, dst Putter, enc abus.Encryptor) *ArchiveFixture {
	t.Helper()
	return &ArchiveFixture{t: t, dst: dst, enc: enc}
}

// AddBlob stores content in dir and returns its checksum. Compressed blobs
// are zstd encoded before encryption and get the ".z" suffix.
func (f *ArchiveFixture) AddBlob(dir string, content []byte, compressed bool) string {
	f.t.Helper()

	checksum := SHA256Hex(content)
	data := content
	if compressed {
		zw, err := zstd.NewWriter(nil)
		if err != nil {
			f.t.Fatalf("creating zstd writer: %v", err)
		}
		data = zw.EncodeAll(content, nil)
		zw.Close()
	}
	f.put(dir, abus.BlobName(checksum, compressed), data)
	return checksum
}

// AddRunIndex stores the index of run in dir. Each line is
// "checksum timestamp path".
func (f *ArchiveFixture) AddRunIndex(dir, run string, lines ...string) {
	f.t.Helper()
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	f.put(dir, run+abus.RunIndexExt, []byte(b.String()))
}

// IndexLine formats a run index line.
func IndexLine(checksum string, timestamp float64, path string) string {
	return fmt.Sprintf("%s %s %s", checksum, strconv.FormatFloat(timestamp, 'f', -1, 64), path)
}

// AddRaw stores data unencrypted.
func (f *ArchiveFixture) AddRaw(dir, name string, data []byte) {
	f.t.Helper()
	if err := f.dst.Put(dir, name, bytes.NewReader(data)); err != nil {
		f.t.Fatalf("Put(%s/%s) error = %v", dir, name, err)
	}
}

func (f *ArchiveFixture) put(dir, name string, plain []byte) {
	f.t.Helper()
	var sealed bytes.Buffer
	if err := f.enc.Encrypt(bytes.NewReader(plain), &sealed); err != nil {
		f.t.Fatalf("encrypting %s: %v", name, err)
	}
	f.AddRaw(dir, name, sealed.Bytes())
}

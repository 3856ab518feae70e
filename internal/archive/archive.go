// Package archive provides read access to backup archives on local disk,
// in memory and in S3, and the BlockReader that streams blobs out of them.
package archive

import "errors"

// ErrNotFound is returned by Open when the requested file does not exist.
var ErrNotFound = errors.New("not found in archive")

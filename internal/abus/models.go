package abus

import "time"

// Sentinel checksum values that may appear in a run index instead of a content hash.
const (
	ChecksumError   = "error"
	ChecksumDeleted = "deleted"
)

// LocationRecord says where the one stored blob for a checksum lives.
type LocationRecord struct {
	Checksum     string
	ArchiveDir   string // relative to the archive root, '/'-separated
	IsCompressed bool
}

// ContentRecord maps a path to a checksum for one backup run.
// (RunName, Path) is the identity of a row.
type ContentRecord struct {
	RunName   string
	Path      string
	Timestamp float64 // original mtime, seconds since epoch
	Checksum  string
}

// RunRecord is one backup run and the archive directory it was written to.
type RunRecord struct {
	RunName    string
	ArchiveDir string
}

// DeletionRecord is a tombstone: Path was found deleted as of Timestamp.
type DeletionRecord struct {
	Path      string
	Timestamp float64
}

// ContentObservation is one line of a run index as observed during a scan:
// the checksum (or a sentinel), the mtime as written, and the path.
type ContentObservation struct {
	Checksum  string
	Timestamp string
	Path      string
}

// LocationCounts reports the writes made by Catalog.ReconcileLocations.
type LocationCounts struct {
	Updates int
	Inserts int
	Deletes int
}

// ContentCounts reports the writes made by Catalog.ReconcileContent.
type ContentCounts struct {
	Changed int
	New     int
	Removed int
}

// PruneCounts reports the writes made by Catalog.PruneRuns.
type PruneCounts struct {
	Carried int64 // inherited rows copied into kept runs
	Removed int64 // run and content rows deleted
}

// RestoreItem is one archived file version selected for restore.
type RestoreItem struct {
	Path         string
	Timestamp    float64
	ArchiveDir   string
	Checksum     string
	IsCompressed bool
}

// ModTime converts the archived float timestamp to a time.Time.
func (i RestoreItem) ModTime() time.Time {
	return FloatToTime(i.Timestamp)
}

// ArchiveQuery selects which archived files ArchiveContents returns.
type ArchiveQuery struct {
	// Patterns are glob patterns matched against the archived path; empty matches all.
	Patterns []string
	// Before limits the query to runs started at or before this time. Zero means latest.
	Before time.Time
	// AllVersions returns every recorded version instead of the latest one per path.
	AllVersions bool
}

// Operation is a recorded CLI operation that mutated the catalog.
type Operation struct {
	ID         string
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Summary    string
}

// FloatToTime converts seconds since the epoch with a fractional part to a time.Time.
func FloatToTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

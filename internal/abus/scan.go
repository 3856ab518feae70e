package abus

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RunIndexExt is the file extension of a run index inside an archive directory.
const RunIndexExt = ".lst"

var blobPattern = regexp.MustCompile(`^([0-9a-f]{64})(\.z)?$`)

// maxIndexLine bounds a single run index line; paths can be long.
const maxIndexLine = 1 << 20

// ArchiveScan is what a Scanner found in an archive.
type ArchiveScan struct {
	// Locations has one entry per checksum.
	Locations []LocationRecord
	// Runs is ordered by run name.
	Runs []RunRecord
}

// Scanner derives the observed state of an archive from its files.
type Scanner struct {
	source    ArchiveSource
	decryptor DecryptionContext
	logger    Logger
}

// NewScanner creates a Scanner reading source. Run indexes are decrypted
// with decryptor.
func NewScanner(source ArchiveSource, decryptor DecryptionContext, logger Logger) *Scanner {
	return &Scanner{source: source, decryptor: decryptor, logger: logger}
}

// Scan walks the archive and collects every blob location and every run
// index. A checksum stored in more than one directory keeps the location
// walked last.
func (s *Scanner) Scan(ctx context.Context) (*ArchiveScan, error) {
	locations := make(map[string]LocationRecord)
	runs := make(map[string]RunRecord)

	err := s.source.Walk(ctx, func(dir, name string) error {
		if dir == "" {
			return nil
		}
		if m := blobPattern.FindStringSubmatch(name); m != nil {
			locations[m[1]] = LocationRecord{
				Checksum:     m[1],
				ArchiveDir:   dir,
				IsCompressed: m[2] != "",
			}
			return nil
		}
		if run, ok := strings.CutSuffix(name, RunIndexExt); ok && run != "" {
			if prev, dup := runs[run]; dup {
				s.logger.Warn("run index found twice", "run", run, "dir", prev.ArchiveDir, "other", dir)
			}
			runs[run] = RunRecord{RunName: run, ArchiveDir: dir}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking archive: %w", err)
	}

	scan := &ArchiveScan{
		Locations: make([]LocationRecord, 0, len(locations)),
		Runs:      make([]RunRecord, 0, len(runs)),
	}
	for _, loc := range locations {
		scan.Locations = append(scan.Locations, loc)
	}
	sort.Slice(scan.Locations, func(i, j int) bool {
		return scan.Locations[i].Checksum < scan.Locations[j].Checksum
	})
	for _, run := range runs {
		scan.Runs = append(scan.Runs, run)
	}
	sort.Slice(scan.Runs, func(i, j int) bool {
		return scan.Runs[i].RunName < scan.Runs[j].RunName
	})

	s.logger.Debug("archive scanned", "blobs", len(scan.Locations), "runs", len(scan.Runs))
	return scan, nil
}

// ReadRunIndex decrypts and parses the index of run. Each line is
// "checksum timestamp path"; the path may contain spaces. Malformed lines
// are logged and skipped.
func (s *Scanner) ReadRunIndex(ctx context.Context, run RunRecord) ([]ContentObservation, error) {
	rc, err := s.source.Open(ctx, run.ArchiveDir, run.RunName+RunIndexExt)
	if err != nil {
		return nil, fmt.Errorf("opening index of run %s: %w", run.RunName, err)
	}
	defer rc.Close()

	plain, err := s.decryptor.DecryptReader(rc)
	if err != nil {
		return nil, fmt.Errorf("decrypting index of run %s: %w", run.RunName, err)
	}

	var observed []ContentObservation
	sc := bufio.NewScanner(plain)
	sc.Buffer(make([]byte, 0, 64*1024), maxIndexLine)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 || fields[0] == "" || fields[2] == "" {
			s.logger.Warn("skipping malformed index line", "run", run.RunName, "line", lineNo)
			continue
		}
		observed = append(observed, ContentObservation{
			Checksum:  fields[0],
			Timestamp: fields[1],
			Path:      fields[2],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading index of run %s: %w", run.RunName, err)
	}
	return observed, nil
}

package database

import (
	"fmt"
	"strings"

	"abus-go/internal/abus"
	"abus-go/internal/fs"
)

// ArchiveContents resolves q against the catalog. In the default mode it
// returns, per path, the row of the latest run at or before the cutoff,
// leaving out paths deleted since that version. With AllVersions every
// distinct version is returned.
func (s *SQLiteCatalog) ArchiveContents(q abus.ArchiveQuery) ([]*abus.RestoreItem, error) {
	matcher, err := fs.NewPathMatcher(q.Patterns)
	if err != nil {
		return nil, err
	}

	var (
		query strings.Builder
		args  []any
	)
	cutoff := ""
	if !q.Before.IsZero() {
		cutoff = q.Before.Format(abus.RunNameLayout)
	}

	if q.AllVersions {
		query.WriteString(`SELECT DISTINCT c.path, c.timestamp, l.archive_dir, c.checksum, l.is_compressed
			FROM content c
			JOIN location l ON l.checksum = c.checksum`)
		if cutoff != "" {
			query.WriteString(` WHERE c.run_name <= ?`)
			args = append(args, cutoff)
		}
		query.WriteString(` ORDER BY c.path, c.timestamp`)
	} else {
		query.WriteString(`SELECT c.path, c.timestamp, l.archive_dir, c.checksum, l.is_compressed
			FROM content c
			JOIN location l ON l.checksum = c.checksum
			WHERE c.run_name = (SELECT MAX(p.run_name) FROM content p WHERE p.path = c.path`)
		if cutoff != "" {
			query.WriteString(` AND p.run_name <= ?`)
			args = append(args, cutoff)
		}
		query.WriteString(`)
			AND NOT EXISTS (SELECT 1 FROM deletion d WHERE d.path = c.path AND d.timestamp >= c.timestamp`)
		if cutoff != "" {
			// A tombstone newer than the cutoff does not hide what existed then.
			query.WriteString(` AND d.timestamp <= ?`)
			args = append(args, float64(q.Before.Unix()))
		}
		query.WriteString(`) ORDER BY c.path`)
	}

	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive contents: %w", err)
	}
	defer rows.Close()

	var items []*abus.RestoreItem
	for rows.Next() {
		it := &abus.RestoreItem{}
		if err := rows.Scan(&it.Path, &it.Timestamp, &it.ArchiveDir, &it.Checksum, &it.IsCompressed); err != nil {
			return nil, fmt.Errorf("scanning archive item: %w", err)
		}
		if !matcher.Match(abus.LivePath(it.Path)) {
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying archive contents: %w", err)
	}
	return items, nil
}

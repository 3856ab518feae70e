package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"abus-go/internal/abus"
)

// metaLastRun holds the greatest run name reconciled since the last
// location pass.
const metaLastRun = "last_reconciled_run"

func (s *SQLiteCatalog) ReconcileLocations(locations []abus.LocationRecord) (abus.LocationCounts, error) {
	var counts abus.LocationCounts

	remaining := make(map[string]abus.LocationRecord, len(locations))
	for _, loc := range locations {
		remaining[loc.Checksum] = loc
	}

	err := s.withTx("reconciling locations", func(tx *sql.Tx) error {
		// Tombstones are recomputed by the content pass that follows.
		if _, err := tx.Exec(`DELETE FROM deletion`); err != nil {
			return fmt.Errorf("clearing deletions: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM catalog_meta WHERE key = ?`, metaLastRun); err != nil {
			return fmt.Errorf("resetting run watermark: %w", err)
		}

		existing, err := loadLocations(tx)
		if err != nil {
			return err
		}

		var updates []abus.LocationRecord
		var deletes []string
		for _, old := range existing {
			loc, ok := remaining[old.Checksum]
			if !ok {
				deletes = append(deletes, old.Checksum)
				continue
			}
			if loc.ArchiveDir != old.ArchiveDir || loc.IsCompressed != old.IsCompressed {
				updates = append(updates, loc)
			}
			delete(remaining, old.Checksum)
		}

		inserts := make([]abus.LocationRecord, 0, len(remaining))
		for _, loc := range remaining {
			inserts = append(inserts, loc)
		}
		sort.Slice(inserts, func(i, j int) bool { return inserts[i].Checksum < inserts[j].Checksum })

		if err := execEach(tx, `DELETE FROM location WHERE checksum = ?`, len(deletes), func(i int) []any {
			return []any{deletes[i]}
		}); err != nil {
			return fmt.Errorf("deleting locations: %w", err)
		}
		if err := execEach(tx, `UPDATE location SET archive_dir = ?, is_compressed = ? WHERE checksum = ?`, len(updates), func(i int) []any {
			return []any{updates[i].ArchiveDir, updates[i].IsCompressed, updates[i].Checksum}
		}); err != nil {
			return fmt.Errorf("updating locations: %w", err)
		}
		if err := execEach(tx, `INSERT INTO location (checksum, archive_dir, is_compressed) VALUES (?, ?, ?)`, len(inserts), func(i int) []any {
			return []any{inserts[i].Checksum, inserts[i].ArchiveDir, inserts[i].IsCompressed}
		}); err != nil {
			return fmt.Errorf("inserting locations: %w", err)
		}

		counts = abus.LocationCounts{Updates: len(updates), Inserts: len(inserts), Deletes: len(deletes)}
		return nil
	})
	if err != nil {
		return abus.LocationCounts{}, err
	}

	s.logger.Debug("locations reconciled", "updates", counts.Updates, "inserts", counts.Inserts, "deletes", counts.Deletes)
	return counts, nil
}

func loadLocations(tx *sql.Tx) ([]abus.LocationRecord, error) {
	rows, err := tx.Query(`SELECT checksum, archive_dir, is_compressed FROM location`)
	if err != nil {
		return nil, fmt.Errorf("loading locations: %w", err)
	}
	defer rows.Close()

	var locs []abus.LocationRecord
	for rows.Next() {
		var loc abus.LocationRecord
		if err := rows.Scan(&loc.Checksum, &loc.ArchiveDir, &loc.IsCompressed); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// execEach runs query once per argument set with a prepared statement.
func execEach(tx *sql.Tx, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(args(i)...); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileContent replaces the rows of run with observed, minus paths whose
// state is unchanged since the latest earlier run.
func (s *SQLiteCatalog) ReconcileContent(run abus.RunRecord, observed []abus.ContentObservation) (abus.ContentCounts, error) {
	var counts abus.ContentCounts

	err := s.withTx("reconciling run "+run.RunName, func(tx *sql.Tx) error {
		if err := checkRunOrder(tx, run.RunName); err != nil {
			return err
		}

		if _, err := tx.Exec(`CREATE TEMP TABLE required_content (
			path      TEXT PRIMARY KEY,
			timestamp REAL NOT NULL,
			checksum  TEXT NOT NULL
		)`); err != nil {
			return fmt.Errorf("creating staging table: %w", err)
		}

		if err := stageContent(tx, observed); err != nil {
			return err
		}

		steps := []struct {
			what  string
			query string
			args  []any
		}{
			{"clearing reappeared deletions",
				`DELETE FROM deletion WHERE path IN (SELECT path FROM required_content WHERE checksum != ?)`,
				[]any{abus.ChecksumDeleted}},
			{"dropping unreadable files",
				`DELETE FROM required_content WHERE checksum = ?`,
				[]any{abus.ChecksumError}},
			{"recording deletions",
				`INSERT OR REPLACE INTO deletion (path, timestamp)
				 SELECT path, timestamp FROM required_content WHERE checksum = ?`,
				[]any{abus.ChecksumDeleted}},
			{"dropping deleted files",
				`DELETE FROM required_content WHERE checksum = ?`,
				[]any{abus.ChecksumDeleted}},
			{"dropping files without a blob",
				`DELETE FROM required_content WHERE checksum NOT IN (SELECT checksum FROM location)`,
				nil},
			{"dropping files unchanged since the previous run",
				`DELETE FROM required_content WHERE EXISTS (
					SELECT 1 FROM content c
					WHERE c.path = required_content.path
					  AND c.run_name = (SELECT MAX(p.run_name) FROM content p
					                    WHERE p.path = required_content.path AND p.run_name < ?)
					  AND c.checksum = required_content.checksum
					  AND c.timestamp = required_content.timestamp)`,
				[]any{run.RunName}},
		}
		for _, step := range steps {
			if _, err := tx.Exec(step.query, step.args...); err != nil {
				return fmt.Errorf("%s: %w", step.what, err)
			}
		}

		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM required_content r
			 JOIN content c ON c.run_name = ? AND c.path = r.path
			 WHERE c.checksum != r.checksum OR c.timestamp != r.timestamp`, run.RunName,
		).Scan(&counts.Changed); err != nil {
			return fmt.Errorf("counting changed files: %w", err)
		}
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM required_content r
			 WHERE NOT EXISTS (SELECT 1 FROM content c WHERE c.run_name = ? AND c.path = r.path)`, run.RunName,
		).Scan(&counts.New); err != nil {
			return fmt.Errorf("counting new files: %w", err)
		}
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM content
			 WHERE run_name = ? AND path NOT IN (SELECT path FROM required_content)`, run.RunName,
		).Scan(&counts.Removed); err != nil {
			return fmt.Errorf("counting removed files: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM content WHERE run_name = ?`, run.RunName); err != nil {
			return fmt.Errorf("clearing run content: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO content (run_name, path, timestamp, checksum)
			 SELECT ?, path, timestamp, checksum FROM required_content`, run.RunName,
		); err != nil {
			return fmt.Errorf("writing run content: %w", err)
		}
		if _, err := tx.Exec(`DROP TABLE required_content`); err != nil {
			return fmt.Errorf("dropping staging table: %w", err)
		}

		changed, inserted, err := upsertRun(tx, run)
		if err != nil {
			return err
		}
		if changed {
			counts.Changed++
		}
		if inserted {
			counts.New++
		}

		if _, err := tx.Exec(
			`INSERT INTO catalog_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaLastRun, run.RunName,
		); err != nil {
			return fmt.Errorf("advancing run watermark: %w", err)
		}
		return nil
	})
	if err != nil {
		return abus.ContentCounts{}, err
	}

	s.logger.Debug("run content reconciled", "run", run.RunName,
		"changed", counts.Changed, "new", counts.New, "removed", counts.Removed)
	return counts, nil
}

func checkRunOrder(tx *sql.Tx, runName string) error {
	var last string
	err := tx.QueryRow(`SELECT value FROM catalog_meta WHERE key = ?`, metaLastRun).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading run watermark: %w", err)
	}
	if runName < last {
		return &abus.OutOfOrderReconciliationError{Run: runName, Last: last}
	}
	return nil
}

// stageContent loads observed into required_content. A later row for the
// same path replaces an earlier one.
func stageContent(tx *sql.Tx, observed []abus.ContentObservation) error {
	if len(observed) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO required_content (path, timestamp, checksum) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing staging insert: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observed {
		ts, err := strconv.ParseFloat(strings.TrimSpace(obs.Timestamp), 64)
		if err != nil {
			if obs.Checksum != abus.ChecksumError {
				return fmt.Errorf("parsing timestamp %q of %s: %w", obs.Timestamp, obs.Path, err)
			}
			// Unreadable files are dropped before the timestamp is used.
			ts = 0
		}
		if _, err := stmt.Exec(obs.Path, ts, obs.Checksum); err != nil {
			return fmt.Errorf("staging %s: %w", obs.Path, err)
		}
	}
	return nil
}

// upsertRun creates or updates the run row and reports which it did.
func upsertRun(tx *sql.Tx, run abus.RunRecord) (changed bool, inserted bool, err error) {
	var dir string
	err = tx.QueryRow(`SELECT archive_dir FROM run WHERE run_name = ?`, run.RunName).Scan(&dir)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(`INSERT INTO run (run_name, archive_dir) VALUES (?, ?)`, run.RunName, run.ArchiveDir); err != nil {
			return false, false, fmt.Errorf("inserting run: %w", err)
		}
		return false, true, nil
	case err != nil:
		return false, false, fmt.Errorf("finding run: %w", err)
	case dir != run.ArchiveDir:
		if _, err := tx.Exec(`UPDATE run SET archive_dir = ? WHERE run_name = ?`, run.ArchiveDir, run.RunName); err != nil {
			return false, false, fmt.Errorf("updating run: %w", err)
		}
		return true, false, nil
	}
	return false, false, nil
}

func (s *SQLiteCatalog) RemoveRuns(otherThan []string) (int64, error) {
	var removed int64

	err := s.withTx("removing runs", func(tx *sql.Tx) error {
		if err := createRetainTable(tx, otherThan); err != nil {
			return err
		}
		n, err := deleteUnretained(tx)
		if err != nil {
			return err
		}
		removed = n
		return dropRetainTable(tx)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("runs removed", "rows", removed)
	return removed, nil
}

// PruneRuns removes every run not in keep. Rows a kept run inherits from a
// removed run are first copied into the kept run, so every kept run still
// resolves to the same files. Removed run names are recorded and reported
// by PrunedRuns.
func (s *SQLiteCatalog) PruneRuns(keep []string) (abus.PruneCounts, error) {
	var counts abus.PruneCounts

	err := s.withTx("pruning runs", func(tx *sql.Tx) error {
		if err := createRetainTable(tx, keep); err != nil {
			return err
		}

		kept, err := retainedRuns(tx)
		if err != nil {
			return err
		}
		// Ascending order: a row carried into one kept run is what the
		// next kept run inherits.
		for _, run := range kept {
			n, err := carryInherited(tx, run)
			if err != nil {
				return err
			}
			counts.Carried += n
		}

		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO pruned_run (run_name)
			 SELECT run_name FROM run WHERE run_name NOT IN (SELECT run_name FROM retain_run)`,
		); err != nil {
			return fmt.Errorf("recording pruned runs: %w", err)
		}

		n, err := deleteUnretained(tx)
		if err != nil {
			return err
		}
		counts.Removed = n
		return dropRetainTable(tx)
	})
	if err != nil {
		return abus.PruneCounts{}, err
	}

	s.logger.Debug("runs pruned", "carried", counts.Carried, "removed", counts.Removed)
	return counts, nil
}

// PrunedRuns returns the names of runs removed by PruneRuns, in order.
func (s *SQLiteCatalog) PrunedRuns() ([]string, error) {
	rows, err := s.db.Query(`SELECT run_name FROM pruned_run ORDER BY run_name`)
	if err != nil {
		return nil, fmt.Errorf("listing pruned runs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning pruned run: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func createRetainTable(tx *sql.Tx, names []string) error {
	if _, err := tx.Exec(`CREATE TEMP TABLE retain_run (run_name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("creating retain table: %w", err)
	}
	if err := execEach(tx, `INSERT OR IGNORE INTO retain_run (run_name) VALUES (?)`, len(names), func(i int) []any {
		return []any{names[i]}
	}); err != nil {
		return fmt.Errorf("filling retain table: %w", err)
	}
	return nil
}

func dropRetainTable(tx *sql.Tx) error {
	if _, err := tx.Exec(`DROP TABLE retain_run`); err != nil {
		return fmt.Errorf("dropping retain table: %w", err)
	}
	return nil
}

// deleteUnretained deletes the content and run rows of runs missing from
// retain_run and returns how many rows went.
func deleteUnretained(tx *sql.Tx) (int64, error) {
	var removed int64
	for _, table := range []string{"content", "run"} {
		res, err := tx.Exec(`DELETE FROM ` + table + ` WHERE run_name NOT IN (SELECT run_name FROM retain_run)`)
		if err != nil {
			return 0, fmt.Errorf("deleting from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("counting deleted %s rows: %w", table, err)
		}
		removed += n
	}
	return removed, nil
}

func retainedRuns(tx *sql.Tx) ([]string, error) {
	rows, err := tx.Query(`SELECT run_name FROM run
		WHERE run_name IN (SELECT run_name FROM retain_run) ORDER BY run_name`)
	if err != nil {
		return nil, fmt.Errorf("listing kept runs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning kept run: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// carryInherited copies into run every row it resolves to that belongs to a
// run about to be removed. Rows already hidden by a tombstone as of run are
// left behind, using the same rule as ArchiveContents with a cutoff.
func carryInherited(tx *sql.Tx, run string) (int64, error) {
	query := `INSERT INTO content (run_name, path, timestamp, checksum)
		SELECT ?, c.path, c.timestamp, c.checksum FROM content c
		WHERE c.run_name NOT IN (SELECT run_name FROM retain_run)
		  AND c.run_name = (SELECT MAX(p.run_name) FROM content p
		                    WHERE p.path = c.path AND p.run_name <= ?)
		  AND NOT EXISTS (SELECT 1 FROM deletion d
		                  WHERE d.path = c.path AND d.timestamp >= c.timestamp`
	args := []any{run, run}
	if at, ok := abus.ParseRunTime(run); ok {
		query += ` AND d.timestamp <= ?`
		args = append(args, float64(at.Unix()))
	}
	query += `)`

	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("carrying inherited rows into %s: %w", run, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting carried rows: %w", err)
	}
	return n, nil
}

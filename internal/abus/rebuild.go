package abus

import (
	"context"
	"fmt"
)

// RebuildTotals sums the catalog writes of a rebuild.
type RebuildTotals struct {
	Updates int
	Inserts int
	Deletes int
}

func (t RebuildTotals) String() string {
	return fmt.Sprintf("%d updates, %d inserts, %d deletes", t.Updates, t.Inserts, t.Deletes)
}

// Rebuilder brings the catalog in line with the archive contents.
type Rebuilder struct {
	catalog Catalog
	scanner *Scanner
	logger  Logger
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(catalog Catalog, scanner *Scanner, logger Logger) *Rebuilder {
	return &Rebuilder{catalog: catalog, scanner: scanner, logger: logger}
}

// Rebuild scans the archive, reconciles blob locations, drops catalog runs
// that are no longer in the archive and then reconciles the content of every
// run in run name order. Runs removed by a prune are skipped even though
// their indexes are still archived. Each step is its own transaction; a
// failure stops the rebuild and leaves earlier steps committed.
func (r *Rebuilder) Rebuild(ctx context.Context) (RebuildTotals, error) {
	var totals RebuildTotals

	scan, err := r.scanner.Scan(ctx)
	if err != nil {
		return totals, err
	}
	pruned, err := r.catalog.PrunedRuns()
	if err != nil {
		return totals, fmt.Errorf("listing pruned runs: %w", err)
	}
	runs := withoutPruned(scan.Runs, pruned)
	if skipped := len(scan.Runs) - len(runs); skipped > 0 {
		r.logger.Info("pruned runs skipped", "runs", skipped)
	}

	loc, err := r.catalog.ReconcileLocations(scan.Locations)
	if err != nil {
		return totals, fmt.Errorf("reconciling locations: %w", err)
	}
	totals.Updates += loc.Updates
	totals.Inserts += loc.Inserts
	totals.Deletes += loc.Deletes
	r.logger.Info("locations reconciled", "updates", loc.Updates, "inserts", loc.Inserts, "deletes", loc.Deletes)

	// Stale runs go first so no remaining run inherits rows from them.
	names := make([]string, 0, len(runs))
	for _, run := range runs {
		names = append(names, run.RunName)
	}
	removed, err := r.catalog.RemoveRuns(names)
	if err != nil {
		return totals, fmt.Errorf("removing stale runs: %w", err)
	}
	totals.Deletes += int(removed)
	if removed > 0 {
		r.logger.Info("stale runs removed", "rows", removed)
	}

	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return totals, err
		}

		observed, err := r.scanner.ReadRunIndex(ctx, run)
		if err != nil {
			return totals, err
		}
		counts, err := r.catalog.ReconcileContent(run, observed)
		if err != nil {
			return totals, fmt.Errorf("reconciling run %s: %w", run.RunName, err)
		}
		totals.Updates += counts.Changed
		totals.Inserts += counts.New
		totals.Deletes += counts.Removed

		r.logger.Info("run reconciled", "run", run.RunName,
			"changed", counts.Changed, "new", counts.New, "removed", counts.Removed)
	}

	return totals, nil
}

func withoutPruned(runs []RunRecord, pruned []string) []RunRecord {
	if len(pruned) == 0 {
		return runs
	}
	skip := make(map[string]bool, len(pruned))
	for _, name := range pruned {
		skip[name] = true
	}
	kept := make([]RunRecord, 0, len(runs))
	for _, run := range runs {
		if !skip[run.RunName] {
			kept = append(kept, run)
		}
	}
	return kept
}

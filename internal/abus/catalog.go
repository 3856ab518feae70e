package abus

// Catalog is the persistent index of runs, per-run content and blob locations.
// Every mutating method runs in a single transaction: it either applies all of
// its writes or none of them and returns a *CatalogTransactionError.
type Catalog interface {
	// ReconcileLocations makes the location table equal to locations, which must
	// describe every blob currently in the archive. It is a full, global pass:
	// the deletion table is cleared and the run ordering watermark is reset, so
	// callers must follow it with ReconcileContent for every run.
	ReconcileLocations(locations []LocationRecord) (LocationCounts, error)

	// ReconcileContent replaces the content rows of one run with observed.
	// Runs must be reconciled in non-decreasing run name order after a
	// ReconcileLocations pass; a smaller run name returns
	// *OutOfOrderReconciliationError.
	ReconcileContent(run RunRecord, observed []ContentObservation) (ContentCounts, error)

	// RemoveRuns deletes every run and content row whose run name is not in
	// otherThan and returns the number of rows deleted.
	RemoveRuns(otherThan []string) (int64, error)

	// PruneRuns removes every run not in keep for retention. Unlike
	// RemoveRuns it keeps the state of each kept run intact and remembers
	// the removed names so a rebuild does not bring them back.
	PruneRuns(keep []string) (PruneCounts, error)

	// PrunedRuns returns the run names removed by PruneRuns.
	PrunedRuns() ([]string, error)

	// ListRuns returns all runs ordered by run name.
	ListRuns() ([]*RunRecord, error)

	// ArchiveContents returns the archived files matching q, ordered by path.
	ArchiveContents(q ArchiveQuery) ([]*RestoreItem, error)

	// Operation tracking

	CreateOperation(op *Operation) error
	FinishOperation(id string, status string, summary string) error
	ListOperations(limit int) ([]*Operation, error)

	// Close closes the catalog connection.
	Close() error
}

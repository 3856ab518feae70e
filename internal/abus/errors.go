package abus

import "fmt"

// CannotOverwriteError is returned when a restore target, or its parent path,
// already exists. It is an expected outcome and is never retried.
type CannotOverwriteError struct {
	Path string
}

func (e *CannotOverwriteError) Error() string {
	return fmt.Sprintf("cannot overwrite %s", e.Path)
}

// TransientIOError wraps an I/O failure while restoring a single file.
type TransientIOError struct {
	Path string
	Err  error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("restoring %s: %v", e.Path, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// CatalogTransactionError is returned when a catalog transaction fails.
// Nothing from the failed call was committed.
type CatalogTransactionError struct {
	Op  string
	Err error
}

func (e *CatalogTransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CatalogTransactionError) Unwrap() error { return e.Err }

// OutOfOrderReconciliationError is returned when a run is reconciled after a
// run with a greater name in the same pass.
type OutOfOrderReconciliationError struct {
	Run  string
	Last string
}

func (e *OutOfOrderReconciliationError) Error() string {
	return fmt.Sprintf("run %q reconciled after %q: runs must be reconciled in order", e.Run, e.Last)
}

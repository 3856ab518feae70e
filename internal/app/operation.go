package app

const (
	statusRunning = "running"
	statusSuccess = "success"
	statusError   = "error"
)

// trackedOperation is a CLI operation that may mutate the catalog.
// Operations start in memory without an ID. Only catalog-mutating commands
// persist them, which assigns the ID.
type trackedOperation struct {
	id      string
	name    string
	status  string
	summary string
}

// newTrackedOperation creates a new in-memory operation.
func newTrackedOperation(name string) *trackedOperation {
	return &trackedOperation{
		name:   name,
		status: statusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the catalog.
func (op *trackedOperation) Persisted() bool {
	return op.id != ""
}

func (op *trackedOperation) fail(err error) {
	op.status = statusError
	op.summary = err.Error()
}

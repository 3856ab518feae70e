package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"abus-go/internal/abus"
	"abus-go/internal/archive"
	"abus-go/internal/config"
	"abus-go/internal/database"
	"abus-go/internal/encryption"
)

// App is the application layer between the CLI and the abus engine.
// It constructs all dependencies from config, exposes the CLI operations and
// records mutating operations in the catalog's operation log on Close.
type App struct {
	cfg        *config.Config
	catalog    *database.SQLiteCatalog
	source     abus.ArchiveSource
	encryptor  abus.Encryptor
	passphrase PassphraseFunc
	decryptor  abus.DecryptionContext
	logger     abus.Logger
	clock      abus.Clock
	ids        abus.IDGenerator
	op         *trackedOperation
	logFile    *os.File
}

// NewApp creates a fully wired App from the given config.
// operation names the CLI command being run (e.g. "Rebuild", "Prune").
// passphrase is only called when an operation has to decrypt the archive.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string, passphrase PassphraseFunc) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	source, err := archive.NewArchiveFromConfig(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, operation, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	catalog, err := database.NewCatalogFromConfig(cfg, log)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := catalog.CheckMigrations(); err != nil {
		catalog.Close()
		logFile.Close()
		return nil, fmt.Errorf("catalog schema out of date: %w", err)
	}

	return &App{
		cfg:        cfg,
		catalog:    catalog,
		source:     source,
		encryptor:  enc,
		passphrase: passphrase,
		logger:     log,
		clock:      abus.RealClock{},
		ids:        abus.UUIDGenerator{},
		op:         newTrackedOperation(operation),
		logFile:    logFile,
	}, nil
}

// persistOperation records the operation in the catalog. Only commands that
// mutate the catalog call it.
func (a *App) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	rec := &abus.Operation{
		ID:        a.ids.New(),
		Name:      a.op.name,
		StartedAt: a.clock.Now(),
		Status:    statusRunning,
	}
	if err := a.catalog.CreateOperation(rec); err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.id = rec.ID
	return nil
}

// unlock returns the session's DecryptionContext, asking for the passphrase
// the first time it is needed.
func (a *App) unlock() (abus.DecryptionContext, error) {
	if a.decryptor != nil {
		return a.decryptor, nil
	}

	var pass string
	if encryption.NeedsPassphrase(a.cfg.Encryption) {
		if !a.encryptor.IsConfigured() {
			return nil, fmt.Errorf("archive keys not found: run 'abus config init' or check the encryption key paths")
		}
		if a.passphrase == nil {
			return nil, fmt.Errorf("archive is encrypted and no passphrase source is available")
		}
		p, err := a.passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		pass = p
	}

	dc, err := a.encryptor.Unlock(pass)
	if err != nil {
		return nil, fmt.Errorf("unlocking archive key: %w", err)
	}
	a.decryptor = dc
	return dc, nil
}

// Rebuild brings the catalog in line with the archive.
func (a *App) Rebuild(ctx context.Context) (abus.RebuildTotals, error) {
	if err := a.persistOperation(); err != nil {
		return abus.RebuildTotals{}, err
	}

	dc, err := a.unlock()
	if err != nil {
		a.op.fail(err)
		return abus.RebuildTotals{}, err
	}

	scanner := abus.NewScanner(a.source, dc, a.logger)
	totals, err := abus.NewRebuilder(a.catalog, scanner, a.logger).Rebuild(ctx)
	if err != nil {
		a.op.fail(err)
		return totals, err
	}
	a.op.summary = totals.String()
	return totals, nil
}

// BackupCatalog writes a copy of the catalog to path.
func (a *App) BackupCatalog(path string) error {
	return a.catalog.BackupTo(path)
}

// List returns the archived files selected by q.
func (a *App) List(q abus.ArchiveQuery) ([]*abus.RestoreItem, error) {
	return a.catalog.ArchiveContents(q)
}

// Restore writes the files selected by q below dest, reporting progress to status.
func (a *App) Restore(ctx context.Context, q abus.ArchiveQuery, dest string, status abus.StatusPrinter) (abus.RestoreProgress, error) {
	items, err := a.catalog.ArchiveContents(q)
	if err != nil {
		return abus.RestoreProgress{}, err
	}
	if len(items) == 0 {
		return abus.RestoreProgress{}, nil
	}

	dc, err := a.unlock()
	if err != nil {
		return abus.RestoreProgress{}, err
	}

	opts := abus.RestoreOptions{
		Workers:     a.cfg.Restore.Workers,
		TaskTimeout: a.cfg.Restore.TaskTimeout.Duration,
		Retries:     a.cfg.Restore.Retries,
		AllVersions: q.AllVersions,
	}
	blocks := archive.NewBlockReader(a.source, dc)
	coord := abus.NewRestoreCoordinator(blocks, abus.NewPathLockRegistry(), status, a.logger, a.clock, opts)
	return coord.Restore(ctx, items, dest)
}

// PruneResult reports what Prune kept and deleted.
type PruneResult struct {
	Kept    []string
	Removed []string
	Rows    int64 // catalog rows deleted
	Carried int64 // rows copied into kept runs
}

// Prune removes runs the retention policy does not keep. With dryRun the
// catalog is left untouched.
func (a *App) Prune(dryRun bool) (*PruneResult, error) {
	runs, err := a.catalog.ListRuns()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(runs))
	for _, r := range runs {
		names = append(names, r.RunName)
	}

	keep := retentionPolicy(a.cfg.Retention).Keep(names, a.clock.Now())
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	res := &PruneResult{Kept: keep}
	for _, n := range names {
		if !kept[n] {
			res.Removed = append(res.Removed, n)
		}
	}
	if dryRun || len(res.Removed) == 0 {
		return res, nil
	}

	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	counts, err := a.catalog.PruneRuns(keep)
	if err != nil {
		a.op.fail(err)
		return nil, err
	}
	res.Rows = counts.Removed
	res.Carried = counts.Carried
	a.op.summary = fmt.Sprintf("%d runs removed, %d rows deleted, %d rows carried", len(res.Removed), counts.Removed, counts.Carried)
	a.logger.Info("runs pruned", "runs", len(res.Removed), "rows", counts.Removed, "carried", counts.Carried)
	return res, nil
}

func retentionPolicy(cfg config.RetentionConfig) abus.RetentionPolicy {
	return abus.RetentionPolicy{
		KeepAllDays:         cfg.KeepAllDays,
		KeepDailyDays:       cfg.KeepDailyDays,
		KeepIntervalDays:    cfg.KeepIntervalDays,
		KeepIntervalForDays: cfg.KeepIntervalForDays,
	}
}

// Runs returns all runs in the catalog.
func (a *App) Runs() ([]*abus.RunRecord, error) {
	return a.catalog.ListRuns()
}

// History returns the most recent operations.
func (a *App) History(limit int) ([]*abus.Operation, error) {
	return a.catalog.ListOperations(limit)
}

// Close finalizes the operation record and closes all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.catalog.FinishOperation(a.op.id, a.op.status, a.op.summary); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.catalog.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing catalog: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

package abus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// DefaultRestoreWorkers is the restore concurrency when none is configured.
const DefaultRestoreWorkers = 4

// RestoreOptions tunes a RestoreCoordinator.
type RestoreOptions struct {
	// Workers is the number of files restored concurrently.
	Workers int
	// TaskTimeout bounds a single file restore; zero means no limit.
	TaskTimeout time.Duration
	// Retries is how many times a failed file is retried with backoff.
	Retries int
	// AllVersions appends a -YYYYMMDD-HHMM suffix to every restored file name
	// so several versions of the same path can be restored together.
	AllVersions bool
}

// RestoreCoordinator writes archived files to the live filesystem with a
// bounded pool of workers. It never overwrites an existing file.
type RestoreCoordinator struct {
	blocks BlockReader
	locks  *PathLockRegistry
	status StatusPrinter
	logger Logger
	clock  Clock
	opts   RestoreOptions
}

// NewRestoreCoordinator creates a RestoreCoordinator. locks may be shared
// between coordinators that write into the same tree.
func NewRestoreCoordinator(blocks BlockReader, locks *PathLockRegistry, status StatusPrinter, logger Logger, clock Clock, opts RestoreOptions) *RestoreCoordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultRestoreWorkers
	}
	return &RestoreCoordinator{
		blocks: blocks,
		locks:  locks,
		status: status,
		logger: logger,
		clock:  clock,
		opts:   opts,
	}
}

type restoreTask struct {
	item *RestoreItem
	live string
}

type restoreResult struct {
	path string
	err  error
}

// Restore materializes items below dest, relative to the common root of
// their live paths. Errors for single files are reported through the status
// printer and counted; they never stop the batch. The returned error is only
// set when ctx is cancelled before every item was admitted.
func (c *RestoreCoordinator) Restore(ctx context.Context, items []*RestoreItem, dest string) (RestoreProgress, error) {
	progress := RestoreProgress{Total: len(items), Started: c.clock.Now()}

	tasks := make([]restoreTask, len(items))
	lives := make([]string, len(items))
	for i, item := range items {
		lives[i] = LivePath(item.Path)
		tasks[i] = restoreTask{item: item, live: lives[i]}
	}
	root := CommonRoot(lives)
	c.logger.Info("restore started", "files", len(items), "root", root, "dest", dest)

	limit := 2 * c.opts.Workers
	inflight := make(chan struct{}, limit)
	queue := make(chan restoreTask)
	results := make(chan restoreResult, limit)

	wg, wgCtx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		defer close(queue)
		for _, t := range tasks {
			select {
			case inflight <- struct{}{}:
			case <-wgCtx.Done():
				return wgCtx.Err()
			}
			queue <- t
		}
		return nil
	})
	for i := 0; i < c.opts.Workers; i++ {
		wg.Go(func() error {
			for t := range queue {
				results <- restoreResult{path: t.item.Path, err: c.restoreWithRetry(wgCtx, t, root, dest)}
			}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- wg.Wait()
		close(results)
	}()

	window := newProgressWindow(progressWindowSize)
	batch := make([]restoreResult, 0, limit)
	for res := range results {
		batch = append(batch[:0], res)
		batch = drainResults(results, batch)

		last := ""
		for _, r := range batch {
			<-inflight
			c.record(&progress, r)
			if r.err == nil {
				last = r.path
			}
		}

		now := c.clock.Now()
		window.Observe(now, len(batch))
		c.status.SetStatus(statusLine(progress, window.Rate(now), last))
	}

	err := <-waitErr
	elapsed := c.clock.Now().Sub(progress.Started)
	c.status.Print(summaryLine(progress, elapsed))
	c.logger.Info("restore finished",
		"restored", progress.Restored(),
		"errors", progress.Errors,
		"not_overwritten", progress.NotOverwritten,
	)
	if err != nil {
		return progress, fmt.Errorf("restore interrupted: %w", err)
	}
	return progress, nil
}

// drainResults appends every result that is ready without blocking.
func drainResults(results <-chan restoreResult, batch []restoreResult) []restoreResult {
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return batch
			}
			batch = append(batch, r)
		default:
			return batch
		}
	}
}

func (c *RestoreCoordinator) record(p *RestoreProgress, r restoreResult) {
	p.Completed++
	if r.err == nil {
		return
	}

	var coe *CannotOverwriteError
	if errors.As(r.err, &coe) {
		p.NotOverwritten++
		c.status.Print(r.err.Error())
		c.logger.Warn("file not overwritten", "path", coe.Path)
		return
	}

	p.Errors++
	c.status.Print(fmt.Sprintf("error restoring %s: %v", r.path, r.err))
	c.logger.Error("restore failed", "path", r.path, "error", r.err)
}

func (c *RestoreCoordinator) restoreWithRetry(ctx context.Context, t restoreTask, root, dest string) error {
	if c.opts.Retries <= 0 {
		return c.restoreOne(ctx, t, root, dest)
	}

	op := func() error {
		err := c.restoreOne(ctx, t, root, dest)
		var coe *CannotOverwriteError
		if errors.As(err, &coe) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.opts.Retries)), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		c.logger.Warn("retrying restore", "path", t.item.Path, "error", err, "delay", d)
	})
}

// restoreOne writes a single item. The target path stays locked from the
// existence check until the file is complete.
func (c *RestoreCoordinator) restoreOne(ctx context.Context, t restoreTask, root, dest string) error {
	if c.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.TaskTimeout)
		defer cancel()
	}

	target, err := TargetPath(dest, root, t.live)
	if err != nil {
		return err
	}
	if c.opts.AllVersions {
		target = VersionedName(target, t.item.Timestamp)
	}

	unlock := c.locks.Lock(target)
	defer unlock()

	if _, err := os.Lstat(target); err == nil {
		return &CannotOverwriteError{Path: target}
	} else if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
		return &TransientIOError{Path: target, Err: err}
	}

	if err := c.ensureDir(filepath.Dir(target)); err != nil {
		return err
	}

	stream, err := c.blocks.Open(ctx, t.item.ArchiveDir, t.item.Checksum, t.item.IsCompressed)
	if err != nil {
		return &TransientIOError{Path: target, Err: fmt.Errorf("opening blob %s: %w", t.item.Checksum, err)}
	}
	defer stream.Close()

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &CannotOverwriteError{Path: target}
		}
		return &TransientIOError{Path: target, Err: err}
	}

	if err := copyBlocks(ctx, f, stream); err != nil {
		f.Close()
		os.Remove(target)
		return &TransientIOError{Path: target, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(target)
		return &TransientIOError{Path: target, Err: err}
	}

	mtime := t.item.ModTime()
	if err := os.Chtimes(target, mtime, mtime); err != nil {
		c.logger.Warn("setting file times", "path", target, "error", err)
	}

	c.logger.Debug("file restored", "path", target)
	return nil
}

// ensureDir creates dir unless it exists. Sibling tasks share parents, so
// the check and mkdir happen under the directory's own lock.
func (c *RestoreCoordinator) ensureDir(dir string) error {
	unlock := c.locks.Lock(dir)
	defer unlock()

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return &CannotOverwriteError{Path: dir}
	case !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR):
		return &TransientIOError{Path: dir, Err: err}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, fs.ErrExist) {
			return &CannotOverwriteError{Path: dir}
		}
		return &TransientIOError{Path: dir, Err: err}
	}
	return nil
}

func copyBlocks(ctx context.Context, w io.Writer, stream BlockStream) error {
	for block, err := range stream.Blocks() {
		if err != nil {
			return fmt.Errorf("reading blob: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Write(block); err != nil {
			return fmt.Errorf("writing file: %w", err)
		}
	}
	return nil
}

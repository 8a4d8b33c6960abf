package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/tomoima525/daily-diary/internal/infra"
)

const (
	dirPrefix = "job-"
	lockName  = ".lock"
)

// ErrInUse is returned when another execution already holds a job's workspace.
var ErrInUse = errors.New("workspace: already in use")

// Manager hands out job-scoped directories under a single root.
type Manager struct {
	root   string
	logger infra.Logger
}

// NewManager ensures root exists.
func NewManager(root string, logger infra.Logger) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("workspace: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create root: %w", err)
	}
	return &Manager{root: root, logger: logger}, nil
}

// Root returns the directory that holds all job workspaces.
func (m *Manager) Root() string {
	return m.root
}

// Workspace is exclusively owned by one job execution until Release.
type Workspace struct {
	jobID string
	dir   string
	lock  *flock.Flock
	once  sync.Once
	err   error
}

// Acquire creates and locks the workspace for jobID. A leftover directory from
// a killed execution is wiped first; a live one yields ErrInUse.
func (m *Manager) Acquire(jobID string) (*Workspace, error) {
	if jobID == "" || filepath.Base(jobID) != jobID || strings.HasPrefix(jobID, ".") {
		return nil, fmt.Errorf("workspace: invalid job id %q", jobID)
	}
	dir := filepath.Join(m.root, dirPrefix+jobID)

	if _, err := os.Stat(dir); err == nil {
		probe := flock.New(filepath.Join(dir, lockName))
		ok, err := probe.TryLock()
		if err != nil {
			return nil, fmt.Errorf("workspace: probe lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInUse, jobID)
		}
		_ = probe.Unlock()
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("workspace: remove leftover: %w", err)
		}
		m.logger.Warn().Str("job_id", jobID).Msg("workspace: removed leftover directory")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		_ = os.RemoveAll(dir)
		if err == nil {
			err = ErrInUse
		}
		return nil, fmt.Errorf("workspace: lock: %w", err)
	}
	return &Workspace{jobID: jobID, dir: dir, lock: lock}, nil
}

// Dir is the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Release unlocks and removes the workspace. It is safe to call more than once.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		unlockErr := w.lock.Unlock()
		removeErr := os.RemoveAll(w.dir)
		w.err = errors.Join(unlockErr, removeErr)
	})
	return w.err
}

// SweepResult reports a stale sweep.
type SweepResult struct {
	Removed []string
	Skipped []string
	Errors  []error
}

// SweepStale removes job workspaces older than maxAge whose lock is not held.
// Directories of live executions are skipped regardless of age.
func (m *Manager) SweepStale(ctx context.Context, maxAge time.Duration) SweepResult {
	var result SweepResult
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, err)
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err())
			return result
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		dir := filepath.Join(m.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		lock := flock.New(filepath.Join(dir, lockName))
		ok, err := lock.TryLock()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("lock %s: %w", dir, err))
			continue
		}
		if !ok {
			result.Skipped = append(result.Skipped, dir)
			continue
		}
		removeErr := os.RemoveAll(dir)
		_ = lock.Unlock()
		if removeErr != nil {
			result.Errors = append(result.Errors, removeErr)
			m.logger.Warn().Err(removeErr).Str("path", dir).Msg("workspace: failed to remove stale directory")
			continue
		}
		result.Removed = append(result.Removed, dir)
		m.logger.Info().
			Str("path", dir).
			Dur("age", time.Since(info.ModTime())).
			Msg("workspace: removed stale directory")
	}
	return result
}

// Package taskinfo coordinates the content-addressed cache of task
// snapshots: checksum-validated downloads, single-flight refresh per task,
// and the holding queue that parks submissions until their task data is
// current.
package taskinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cpjudge/internal/judge/model"
	"cpjudge/internal/judge/queue"
	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

// Frontend is the subset of the frontend client the cache needs.
type Frontend interface {
	GetChecksum(ctx context.Context, taskID string) (string, error)
	DownloadTaskInfo(ctx context.Context, taskID string, w io.Writer) error
}

const (
	defaultStateFile  = "task_info_path.json"
	defaultCacheDir   = "task_info_cache"
	refreshQueueDepth = 256

	// refreshRetryDelay paces re-scheduling after a failed refresh.
	refreshRetryDelay = time.Second
)

// Config holds cache coordinator settings.
type Config struct {
	CacheDir     string
	StateFile    string
	MemoEntries  int
	MemoTTL      time.Duration
	JudgeQueue   queue.Queue
	Frontend     Frontend
	DisableFetch bool // debug mode: never refresh, trust local snapshots
}

// Manager owns the task_id to snapshot-path mapping. All mutations of the
// mapping and the per-task waiting queues happen under one mutex; workers
// only ever see installed, immutable snapshot files.
type Manager struct {
	cacheDir     string
	stateFile    string
	frontend     Frontend
	judgeQueue   queue.Queue
	memo         *currencyMemo
	disableFetch bool

	mu       sync.Mutex
	pathDict map[string]string
	// waiting holds submissions parked behind an in-flight refresh. The
	// presence of a key is the single-flight marker for its task.
	waiting map[string][]model.JudgeRequest

	refreshCh chan string
	draining  atomic.Bool
}

// NewManager creates a cache coordinator.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.JudgeQueue == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("judge queue is required")
	}
	if cfg.Frontend == nil && !cfg.DisableFetch {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("frontend client is required")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir
	}
	if cfg.StateFile == "" {
		cfg.StateFile = defaultStateFile
	}
	return &Manager{
		cacheDir:     cfg.CacheDir,
		stateFile:    cfg.StateFile,
		frontend:     cfg.Frontend,
		judgeQueue:   cfg.JudgeQueue,
		memo:         newCurrencyMemo(cfg.MemoEntries, cfg.MemoTTL),
		disableFetch: cfg.DisableFetch,
		pathDict:     make(map[string]string),
		waiting:      make(map[string][]model.JudgeRequest),
		refreshCh:    make(chan string, refreshQueueDepth),
	}, nil
}

// Load restores the persisted mapping and sweeps the cache directory:
// entries whose snapshot vanished are dropped, snapshot files nothing
// references are deleted. Referenced snapshots are never touched.
func (m *Manager) Load(ctx context.Context) error {
	if err := os.MkdirAll(m.cacheDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create cache dir failed")
	}

	data, err := os.ReadFile(m.stateFile)
	if err == nil {
		if err := json.Unmarshal(data, &m.pathDict); err != nil {
			logger.Warn(ctx, "task info state file is corrupt, starting empty", zap.Error(err))
			m.pathDict = make(map[string]string)
		}
	} else if !os.IsNotExist(err) {
		return appErr.Wrapf(err, appErr.CacheError, "read state file failed")
	}

	for taskID, path := range m.pathDict {
		if _, err := os.Stat(path); err != nil {
			logger.Warn(ctx, "dropping cache entry with missing snapshot",
				zap.String("task_id", taskID), zap.String("path", path))
			delete(m.pathDict, taskID)
		}
	}

	referenced := make(map[string]bool, len(m.pathDict))
	for _, path := range m.pathDict {
		referenced[filepath.Clean(path)] = true
	}
	entries, err := os.ReadDir(m.cacheDir)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "list cache dir failed")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(m.cacheDir, entry.Name())
		if !referenced[filepath.Clean(full)] {
			logger.Info(ctx, "removing unreferenced snapshot", zap.String("path", full))
			_ = os.Remove(full)
		}
	}
	return nil
}

// Save persists the mapping. Called once during shutdown.
func (m *Manager) Save() error {
	m.mu.Lock()
	data, err := json.Marshal(m.pathDict)
	m.mu.Unlock()
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode state failed")
	}
	if err := os.WriteFile(m.stateFile, data, 0644); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "write state file failed")
	}
	return nil
}

// CurrentPath returns the installed snapshot path for a task.
func (m *Manager) CurrentPath(taskID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.pathDict[taskID]
	return path, ok
}

// IsUpToDate reports whether the installed snapshot for taskID matches the
// frontend's advertised checksum. Results are memoized briefly.
func (m *Manager) IsUpToDate(ctx context.Context, taskID string) (bool, error) {
	path, ok := m.CurrentPath(taskID)
	if !ok {
		return false, nil
	}
	return m.isUpToDate(ctx, taskID, path)
}

func (m *Manager) isUpToDate(ctx context.Context, taskID, path string) (bool, error) {
	if m.disableFetch {
		return true, nil
	}
	key := memoKey{taskID: taskID, path: path}
	if upToDate, ok := m.memo.get(key); ok {
		return upToDate, nil
	}

	local, err := ComputeChecksum(path)
	if err != nil {
		return false, err
	}
	advertised, err := m.frontend.GetChecksum(ctx, taskID)
	if err != nil {
		return false, err
	}
	upToDate := strings.EqualFold(local, advertised)
	m.memo.put(key, upToDate)
	return upToDate, nil
}

// Submit routes one judge request: straight onto the judge queue when the
// task's snapshot is current, parked behind a refresh otherwise. Parking
// is single-flight: the first stale submission schedules the refresh,
// later ones only park.
func (m *Manager) Submit(ctx context.Context, req model.JudgeRequest) error {
	taskID := req.TaskInfo.TaskID
	// The id becomes part of the snapshot file name; never let it walk
	// out of the cache directory.
	if !model.ValidTaskID(taskID) {
		return appErr.Newf(appErr.InvalidParams, "unsafe task id %q", taskID)
	}

	// A refresh already in flight wins over any currency check: a
	// submission arriving during a refresh must observe the new snapshot.
	m.mu.Lock()
	if _, inFlight := m.waiting[taskID]; inFlight {
		m.waiting[taskID] = append(m.waiting[taskID], req)
		m.mu.Unlock()
		return nil
	}
	path, havePath := m.pathDict[taskID]
	m.mu.Unlock()

	if havePath {
		current, err := m.isUpToDate(ctx, taskID, path)
		if err != nil {
			logger.Warn(ctx, "currency check failed, scheduling refresh",
				zap.String("task_id", taskID), zap.Error(err))
		} else if current {
			req.SnapshotPath = path
			return m.judgeQueue.Enqueue(ctx, req)
		}
	}

	return m.park(ctx, taskID, req)
}

// park stores the request on the task's waiting queue and schedules a
// refresh when none is pending.
func (m *Manager) park(ctx context.Context, taskID string, req model.JudgeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, inFlight := m.waiting[taskID]; !inFlight {
		select {
		case m.refreshCh <- taskID:
		default:
			return appErr.New(appErr.QueueError).WithMessage("refresh queue is full")
		}
		m.waiting[taskID] = nil
		logger.Info(ctx, "scheduled task info refresh", zap.String("task_id", taskID))
	}
	m.waiting[taskID] = append(m.waiting[taskID], req)
	return nil
}

// BeginDrain makes RunUpdateWorker exit once its backlog is empty.
func (m *Manager) BeginDrain() {
	m.draining.Store(true)
}

// RunUpdateWorker drains the refresh queue, one task at a time. It is the
// only goroutine that downloads snapshots, so refreshes for one task can
// never overlap. A failed refresh is retried until it succeeds or the
// context is cancelled; parked submissions stay parked meanwhile.
func (m *Manager) RunUpdateWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case taskID := <-m.refreshCh:
			for {
				err := m.refresh(ctx, taskID)
				if err == nil {
					break
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error(ctx, "task info refresh failed, retrying",
					zap.String("task_id", taskID), zap.Error(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(refreshRetryDelay):
				}
			}
		case <-time.After(time.Second):
			if m.draining.Load() && len(m.refreshCh) == 0 {
				return nil
			}
		}
	}
}

// refresh downloads a fresh snapshot under a new random name, validates
// its checksum against the frontend, installs it and releases the parked
// submissions. The previous snapshot file is left in place: a running
// judge may still be streaming from it, and startup GC reclaims it.
func (m *Manager) refresh(ctx context.Context, taskID string) error {
	path := filepath.Join(m.cacheDir, fmt.Sprintf("%s_%s.json", taskID, randomHex()))

	f, err := os.Create(path)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create snapshot file failed")
	}
	if err := m.frontend.DownloadTaskInfo(ctx, taskID, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return appErr.Wrapf(err, appErr.CacheError, "finish snapshot file failed")
	}

	// The download may have raced a frontend-side edit or been truncated;
	// never install a snapshot whose bytes do not match the frontend.
	current, err := m.isUpToDate(ctx, taskID, path)
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	if !current {
		_ = os.Remove(path)
		m.memo.invalidate(taskID)
		return appErr.Newf(appErr.ChecksumMismatch, "snapshot checksum mismatch for task %s", taskID)
	}

	m.mu.Lock()
	m.pathDict[taskID] = path
	parked := m.waiting[taskID]
	delete(m.waiting, taskID)
	m.mu.Unlock()

	logger.Info(ctx, "installed task info snapshot",
		zap.String("task_id", taskID),
		zap.String("path", path),
		zap.Int("released", len(parked)),
	)
	for _, req := range parked {
		req.SnapshotPath = path
		if err := m.judgeQueue.Enqueue(ctx, req); err != nil {
			logger.Error(ctx, "release parked submission failed",
				zap.Int64("submission_id", req.Submission.ID), zap.Error(err))
		}
	}
	return nil
}

func randomHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

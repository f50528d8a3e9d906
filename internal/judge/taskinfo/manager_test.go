package taskinfo

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cpjudge/internal/judge/model"
	"cpjudge/internal/judge/queue"
	appErr "cpjudge/pkg/errors"
)

// fakeFrontend serves one snapshot body per task and advertises a
// checksum independently, so mismatches can be staged.
type fakeFrontend struct {
	bodies    map[string]string
	checksums map[string]string

	checksumCalls int
	downloads     int
}

func (f *fakeFrontend) GetChecksum(ctx context.Context, taskID string) (string, error) {
	f.checksumCalls++
	sum, ok := f.checksums[taskID]
	if !ok {
		return "", appErr.New(appErr.FrontendError)
	}
	return sum, nil
}

func (f *fakeFrontend) DownloadTaskInfo(ctx context.Context, taskID string, w io.Writer) error {
	f.downloads++
	body, ok := f.bodies[taskID]
	if !ok {
		return appErr.New(appErr.FrontendError)
	}
	_, err := io.WriteString(w, body)
	return err
}

func sha384hex(s string) string {
	sum := sha512.Sum384([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newTestManager(t *testing.T, fe *fakeFrontend) (*Manager, *queue.MemoryQueue) {
	t.Helper()
	dir := t.TempDir()
	q := queue.NewMemoryQueue()
	m, err := NewManager(Config{
		CacheDir:   filepath.Join(dir, "task_info_cache"),
		StateFile:  filepath.Join(dir, "task_info_path.json"),
		JudgeQueue: q,
		Frontend:   fe,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m, q
}

func request(taskID string, subID int64) model.JudgeRequest {
	return model.JudgeRequest{
		TaskInfo:   model.TaskInfo{TaskID: taskID},
		Submission: model.Submission{ID: subID, Language: model.LanguageCpp},
	}
}

func drainOne(t *testing.T, q *queue.MemoryQueue) model.JudgeRequest {
	t.Helper()
	req, ok, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected a queued request, ok=%v err=%v", ok, err)
	}
	return req
}

func TestComputeChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ComputeChecksum(path)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if got != sha384hex("hello") {
		t.Fatalf("checksum = %s", got)
	}
}

func TestLoadSweepsCacheDir(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "task_info_cache")
	stateFile := filepath.Join(dir, "task_info_path.json")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	kept := filepath.Join(cacheDir, "alpha_aaaa.json")
	orphan := filepath.Join(cacheDir, "beta_bbbb.json")
	for _, p := range []string{kept, orphan} {
		if err := os.WriteFile(p, []byte("{}"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	missing := filepath.Join(cacheDir, "gone_cccc.json")
	state := `{"alpha":"` + kept + `","gone":"` + missing + `"}`
	if err := os.WriteFile(stateFile, []byte(state), 0644); err != nil {
		t.Fatalf("write state: %v", err)
	}

	q := queue.NewMemoryQueue()
	m, err := NewManager(Config{
		CacheDir:   cacheDir,
		StateFile:  stateFile,
		JudgeQueue: q,
		Frontend:   &fakeFrontend{},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, ok := m.CurrentPath("alpha"); !ok {
		t.Fatalf("entry with existing snapshot must survive")
	}
	if _, ok := m.CurrentPath("gone"); ok {
		t.Fatalf("entry with missing snapshot must be dropped")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("referenced snapshot must not be deleted: %v", err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("unreferenced snapshot must be deleted, stat err=%v", err)
	}
}

func TestSubmitEnqueuesWhenCurrent(t *testing.T) {
	fe := &fakeFrontend{checksums: map[string]string{}}
	m, q := newTestManager(t, fe)

	path := filepath.Join(m.cacheDir, "alpha_dddd.json")
	if err := os.WriteFile(path, []byte(`{"metadata":{}}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.pathDict["alpha"] = path
	fe.checksums["alpha"] = sha384hex(`{"metadata":{}}`)

	if err := m.Submit(context.Background(), request("alpha", 1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	req := drainOne(t, q)
	if req.SnapshotPath != path {
		t.Fatalf("snapshot path = %q, want %q", req.SnapshotPath, path)
	}
}

func TestSubmitRejectsUnsafeTaskID(t *testing.T) {
	fe := &fakeFrontend{checksums: map[string]string{}}
	m, q := newTestManager(t, fe)

	for _, id := range []string{"", "..", "../alpha", "a/b", `a\b`} {
		err := m.Submit(context.Background(), request(id, 1))
		if !appErr.Is(err, appErr.InvalidParams) {
			t.Fatalf("id %q: expected invalid params, got %v", id, err)
		}
	}
	if n, _ := q.Len(context.Background()); n != 0 {
		t.Fatalf("nothing may be enqueued for an unsafe id, len=%d", n)
	}
	if got := len(m.refreshCh); got != 0 {
		t.Fatalf("no refresh may be scheduled for an unsafe id, got %d", got)
	}
}

func TestSubmitParksAndSingleFlights(t *testing.T) {
	fe := &fakeFrontend{checksums: map[string]string{}}
	m, q := newTestManager(t, fe)

	for i := int64(1); i <= 3; i++ {
		if err := m.Submit(context.Background(), request("alpha", i)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	if n, _ := q.Len(context.Background()); n != 0 {
		t.Fatalf("nothing should reach the judge queue while stale, len=%d", n)
	}
	if got := len(m.refreshCh); got != 1 {
		t.Fatalf("exactly one refresh must be scheduled, got %d", got)
	}
	m.mu.Lock()
	parked := len(m.waiting["alpha"])
	m.mu.Unlock()
	if parked != 3 {
		t.Fatalf("all submissions must be parked, got %d", parked)
	}
}

func TestRefreshInstallsAndReleases(t *testing.T) {
	body := `{"metadata":{"task_id":"alpha"},"test_cases":[]}`
	fe := &fakeFrontend{
		bodies:    map[string]string{"alpha": body},
		checksums: map[string]string{"alpha": sha384hex(body)},
	}
	m, q := newTestManager(t, fe)

	for i := int64(1); i <= 2; i++ {
		if err := m.Submit(context.Background(), request("alpha", i)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	<-m.refreshCh // consume the scheduled marker like the update worker would
	if err := m.refresh(context.Background(), "alpha"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	path, ok := m.CurrentPath("alpha")
	if !ok {
		t.Fatalf("snapshot must be installed")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != body {
		t.Fatalf("installed snapshot wrong: %q err=%v", data, err)
	}

	for i := int64(1); i <= 2; i++ {
		req := drainOne(t, q)
		if req.SnapshotPath != path {
			t.Fatalf("released request %d missing snapshot path: %+v", i, req)
		}
	}
	m.mu.Lock()
	_, stillWaiting := m.waiting["alpha"]
	m.mu.Unlock()
	if stillWaiting {
		t.Fatalf("waiting entry must be cleared after release")
	}
}

func TestRefreshChecksumMismatch(t *testing.T) {
	fe := &fakeFrontend{
		bodies:    map[string]string{"alpha": "payload"},
		checksums: map[string]string{"alpha": "not-the-checksum"},
	}
	m, _ := newTestManager(t, fe)

	err := m.refresh(context.Background(), "alpha")
	if !appErr.Is(err, appErr.ChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	if _, ok := m.CurrentPath("alpha"); ok {
		t.Fatalf("mismatched snapshot must not be installed")
	}
	entries, _ := os.ReadDir(m.cacheDir)
	if len(entries) != 0 {
		t.Fatalf("mismatched snapshot file must be removed, found %d files", len(entries))
	}
}

func TestUpdateWorkerDrivesRefresh(t *testing.T) {
	body := `{"metadata":{},"test_cases":[]}`
	fe := &fakeFrontend{
		bodies:    map[string]string{"alpha": body},
		checksums: map[string]string{"alpha": sha384hex(body)},
	}
	m, q := newTestManager(t, fe)

	if err := m.Submit(context.Background(), request("alpha", 9)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunUpdateWorker(ctx) }()

	req := drainOne(t, q)
	if req.Submission.ID != 9 || req.SnapshotPath == "" {
		t.Fatalf("released request = %+v", req)
	}

	m.BeginDrain()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("drained worker returned %v", err)
		}
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatalf("update worker did not drain")
	}
	cancel()
}

func TestSaveAndReload(t *testing.T) {
	fe := &fakeFrontend{}
	m, _ := newTestManager(t, fe)

	path := filepath.Join(m.cacheDir, "alpha_eeee.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.pathDict["alpha"] = path
	if err := m.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	q := queue.NewMemoryQueue()
	m2, err := NewManager(Config{
		CacheDir:   m.cacheDir,
		StateFile:  m.stateFile,
		JudgeQueue: q,
		Frontend:   fe,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m2.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got, ok := m2.CurrentPath("alpha"); !ok || got != path {
		t.Fatalf("mapping not persisted: %q %v", got, ok)
	}
}

func TestIsUpToDateMemoizes(t *testing.T) {
	fe := &fakeFrontend{checksums: map[string]string{"alpha": sha384hex("{}")}}
	m, _ := newTestManager(t, fe)

	path := filepath.Join(m.cacheDir, "alpha_ffff.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.pathDict["alpha"] = path

	for i := 0; i < 5; i++ {
		ok, err := m.IsUpToDate(context.Background(), "alpha")
		if err != nil || !ok {
			t.Fatalf("IsUpToDate = %v %v", ok, err)
		}
	}
	if fe.checksumCalls != 1 {
		t.Fatalf("checksum endpoint must be hit once within the TTL, got %d", fe.checksumCalls)
	}
}

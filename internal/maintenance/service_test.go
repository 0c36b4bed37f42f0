package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataagent/dataagent/internal/storage"
	"github.com/dataagent/dataagent/internal/store"
)

type objectStore struct {
	mu        sync.Mutex
	objects   map[string]int64
	deleteErr error
}

func newObjectStore(keys ...string) *objectStore {
	o := &objectStore{objects: map[string]int64{}}
	for _, key := range keys {
		o.objects[key] = 1
	}
	return o
}

func (o *objectStore) Put(_ context.Context, key string, _ io.Reader, size int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = size
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (o *objectStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (o *objectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	size, ok := o.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (o *objectStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []storage.ObjectInfo
	for key, size := range o.objects {
		if strings.HasPrefix(key, prefix+"/") {
			out = append(out, storage.ObjectInfo{Key: key, Size: size})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (o *objectStore) Delete(_ context.Context, key string) error {
	if o.deleteErr != nil {
		return o.deleteErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *objectStore) keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.objects))
	for key := range o.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func makeSessionDir(t *testing.T, baseDir, sessionID string, modified time.Time) {
	t.Helper()
	dir := filepath.Join(baseDir, sessionID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sql_query.sql"), []byte("SELECT 1"), 0o644))
	require.NoError(t, os.Chtimes(dir, modified, modified))
}

func TestRunRetentionOnceRemovesExpiredSessions(t *testing.T) {
	now := time.Now()
	baseDir := t.TempDir()
	makeSessionDir(t, baseDir, "old_session__01_00_00", now.Add(-10*24*time.Hour))
	makeSessionDir(t, baseDir, "new_session__02_00_00", now.Add(-time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "stray.txt"), []byte("x"), 0o644))

	objects := newObjectStore(
		"sessions/old_session__01_00_00/result.parquet",
		"sessions/old_session__01_00_00/sql_query.sql",
		"sessions/new_session__02_00_00/sql_query.sql",
	)
	svc := &Service{
		BaseDir:     baseDir,
		ObjectStore: objects,
		Config:      Config{SessionMaxAge: 7 * 24 * time.Hour},
		Clock:       clockwork.NewFakeClockAt(now),
	}

	summary, err := svc.RunRetentionOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetentionSummary{SessionsScanned: 2, SessionsDeleted: 1, ObjectsDeleted: 2}, summary)

	_, err = os.Stat(filepath.Join(baseDir, "old_session__01_00_00"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(filepath.Join(baseDir, "new_session__02_00_00"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"sessions/new_session__02_00_00/sql_query.sql"}, objects.keys())
}

func TestRunRetentionOnceKeepsDirectoryWhenArchiveDeleteFails(t *testing.T) {
	now := time.Now()
	baseDir := t.TempDir()
	makeSessionDir(t, baseDir, "old_session__01_00_00", now.Add(-30*24*time.Hour))

	objects := newObjectStore("sessions/old_session__01_00_00/sql_query.sql")
	objects.deleteErr = errors.New("access denied")
	svc := &Service{BaseDir: baseDir, ObjectStore: objects, Clock: clockwork.NewFakeClockAt(now)}

	summary, err := svc.RunRetentionOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 0, summary.SessionsDeleted)
	_, statErr := os.Stat(filepath.Join(baseDir, "old_session__01_00_00"))
	assert.NoError(t, statErr)
}

func TestRunRetentionOnceToleratesMissingBaseDir(t *testing.T) {
	svc := &Service{BaseDir: filepath.Join(t.TempDir(), "missing")}
	summary, err := svc.RunRetentionOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetentionSummary{}, summary)

	_, err = (&Service{}).RunRetentionOnce(context.Background())
	require.Error(t, err)
}

func TestRunIntegrityCheckOnceCountsMissingArchives(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemory()
	save := func(id, prefix string, result json.RawMessage) {
		_, err := sessions.SaveResult(ctx, store.SaveResultInput{SessionID: id, Prompt: id, RunMode: "Direct", Success: true, ArchivePrefix: prefix, ResultJSON: result})
		require.NoError(t, err)
	}
	save("complete__01_00_00", "sessions/complete__01_00_00", json.RawMessage(`[{"n":1}]`))
	save("no_parquet__02_00_00", "sessions/no_parquet__02_00_00", json.RawMessage(`[{"n":1}]`))
	save("gone__03_00_00", "sessions/gone__03_00_00", nil)
	save("local_only__04_00_00", "", nil)

	objects := newObjectStore(
		"sessions/complete__01_00_00/result.parquet",
		"sessions/complete__01_00_00/sql_query.sql",
		"sessions/no_parquet__02_00_00/sql_query.sql",
	)
	svc := &Service{Sessions: sessions, ObjectStore: objects}

	summary, err := svc.RunIntegrityCheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, IntegritySummary{
		SessionsScanned:  4,
		ArchivedSessions: 3,
		ObjectsChecked:   3,
		MissingArchives:  2,
	}, summary)
}

func TestRunIntegrityCheckOnceRequiresDependencies(t *testing.T) {
	_, err := (&Service{ObjectStore: newObjectStore()}).RunIntegrityCheckOnce(context.Background())
	require.Error(t, err)
	_, err = (&Service{Sessions: store.NewMemory()}).RunIntegrityCheckOnce(context.Background())
	require.Error(t, err)
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &Service{BaseDir: t.TempDir(), Clock: clock, Config: Config{RetentionInterval: time.Minute, IntegrityInterval: time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

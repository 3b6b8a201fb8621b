package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// memStorage keeps uploaded objects in memory, reading sources from fs.
type memStorage struct {
	fs afero.Fs

	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	calls    int
	// failures makes the first n uploads return err.
	failures int
	err      error
}

func newMemStorage(fs afero.Fs) *memStorage {
	return &memStorage{fs: fs, objects: map[string][]byte{}, modified: map[string]time.Time{}}
}

func (m *memStorage) Upload(ctx context.Context, localPath, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.calls <= m.failures {
		return m.err
	}

	data, err := afero.ReadFile(m.fs, localPath)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, localPath)
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, domain.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return errors.New("no such key")
	}
	delete(m.objects, key)
	return nil
}

func (m *memStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// uploadOnly hides List/Delete so cleanup skips the target.
type uploadOnly struct {
	domain.Storage
}

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) Notify(ctx context.Context, message string) error {
	r.messages = append(r.messages, message)
	return nil
}

type recordingJournal struct {
	reports []*domain.RunReport
}

func (r *recordingJournal) Record(ctx context.Context, report *domain.RunReport) error {
	r.reports = append(r.reports, report)
	return nil
}

type recordingRecorder struct {
	stages []domain.StageResult
	runs   int
}

func (r *recordingRecorder) ObserveStage(result domain.StageResult) {
	r.stages = append(r.stages, result)
}

func (r *recordingRecorder) ObserveRun(*domain.RunReport) {
	r.runs++
}

func fastRetry(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func writeFile(fs afero.Fs, path, content string, mtime time.Time) {
	if err := afero.WriteFile(fs, path, []byte(content), 0640); err != nil {
		panic(err)
	}
	if err := fs.Chtimes(path, mtime, mtime); err != nil {
		panic(err)
	}
}

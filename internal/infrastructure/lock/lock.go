package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/semmidev/rotabak/internal/domain"
)

// FileLock keeps two rotabak processes from working on the same destination.
// The OS drops the lock when the holder exits, so a crash never leaves a
// stale lock behind.
type FileLock struct {
	mu   sync.Mutex
	lock *flock.Flock
	held bool
}

func New(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &FileLock{lock: flock.New(path)}, nil
}

// TryAcquire returns domain.ErrLocked when another process holds the lock.
func (l *FileLock) TryAcquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("%w: already held by this process", domain.ErrLocked)
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrLocked, l.lock.Path())
	}

	l.held = true
	return nil
}

func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}

	l.held = false
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *FileLock) Path() string {
	return l.lock.Path()
}

package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFileName   = "local.lock"
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 50 * time.Millisecond
)

// writeLocker serializes writers across processes with an OS file lock.
// The OS drops the lock when the holder exits, even on a crash.
type writeLocker struct {
	path string
	f    *os.File
}

func newWriteLocker(dir string) *writeLocker {
	return &writeLocker{path: filepath.Join(dir, lockFileName)}
}

// acquire takes the exclusive lock, retrying with capped exponential backoff
// until timeout. The timeout error names the current holder when known.
func (l *writeLocker) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.f = f

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff
	for {
		if err := l.tryLock(); err == nil {
			l.stampHolder()
			return nil
		}
		if time.Now().After(deadline) {
			holder := l.holder()
			l.f.Close()
			l.f = nil
			return fmt.Errorf("local store locked for %v (holder %s)", timeout, holder)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *writeLocker) release() {
	if l.f == nil {
		return
	}
	l.f.Truncate(0)
	l.unlock()
	l.f.Close()
	l.f = nil
}

func (l *writeLocker) stampHolder() {
	l.f.Truncate(0)
	l.f.Seek(0, 0)
	fmt.Fprintf(l.f, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
}

// holder describes the process recorded in the lock file.
func (l *writeLocker) holder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	var pid, since string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if v, ok := strings.CutPrefix(line, "pid:"); ok {
			pid = v
		} else if v, ok := strings.CutPrefix(line, "time:"); ok {
			since = v
		}
	}
	if pid == "" {
		return "unknown"
	}
	if n, err := strconv.Atoi(pid); err == nil && !isProcessAlive(n) {
		return fmt.Sprintf("pid %s since %s, stale", pid, since)
	}
	return fmt.Sprintf("pid %s since %s", pid, since)
}

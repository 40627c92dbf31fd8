//go:build unix

package localstore

import (
	"os"
	"syscall"
)

func (l *writeLocker) tryLock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *writeLocker) unlock() {
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}

func isProcessAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks the process exists without delivering anything
	return p.Signal(syscall.Signal(0)) == nil
}

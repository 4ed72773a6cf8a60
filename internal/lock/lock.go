// Package lock keeps a profile to one daemon with an flock(2) on
// <profile>/LOCK. The file records the holder for diagnostics.
package lock

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID     int
	Started time.Time
}

// LockHeldError is returned when another process holds the profile lock.
type LockHeldError struct {
	PID  int
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("profile lock held by PID %d (%s)", e.PID, e.Path)
}

// Lock is a held profile lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock on dir, creating it if needed. It fails with
// *LockHeldError when another open file holds it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		owner := readOwner(f)
		_ = f.Close()
		return nil, &LockHeldError{PID: owner.PID, Path: path}
	}
	if err := writeOwner(f, Owner{PID: os.Getpid(), Started: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

// Release drops the lock and removes the file. Nil and repeated calls are no-ops.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}

// Holder reports the PID of the process holding the lock on dir, or
// 0, false when nobody holds it.
func Holder(dir string) (int, bool) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return 0, false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return 0, false
	}
	return readOwner(f).PID, true
}

func writeOwner(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", o.PID, o.Started.Format(time.RFC3339))
	if err != nil {
		return err
	}
	return f.Sync()
}

func readOwner(f *os.File) Owner {
	var o Owner
	if _, err := f.Seek(0, 0); err != nil {
		return o
	}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch k {
		case "pid":
			o.PID, _ = strconv.Atoi(v)
		case "time":
			o.Started, _ = time.Parse(time.RFC3339, v)
		}
	}
	return o
}

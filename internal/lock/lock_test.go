package lock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Lock file should exist and contain our PID.
	data, err := os.ReadFile(filepath.Join(dir, "LOCK"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "pid=") {
		t.Errorf("lock file content = %q, want pid= line", string(data))
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}

	// Lock file should be removed after release.
	if _, err := os.Stat(filepath.Join(dir, "LOCK")); !os.IsNotExist(err) {
		t.Error("lock file still exists after release")
	}
}

func TestDoubleAcquireSameProcess(t *testing.T) {
	// flock is per-fd, so a second open in the same process still conflicts
	// when using LOCK_NB on a distinct file descriptor.
	dir := t.TempDir()

	l1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dir)
	if err == nil {
		t.Fatal("second Acquire() succeeded, want HeldError")
	}
	var held *HeldError
	if !asHeldError(err, &held) {
		t.Fatalf("second Acquire() error = %T, want *HeldError", err)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("Release() on nil = %v, want nil", err)
	}
}

func asHeldError(err error, target **HeldError) bool {
	he, ok := err.(*HeldError)
	if ok {
		*target = he
	}
	return ok
}

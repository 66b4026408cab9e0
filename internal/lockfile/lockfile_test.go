package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	defer lock.Release()

	lockPath := filepath.Join(dir, LockFileName)
	assert.Equal(t, lockPath, lock.Path())
	content, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), fmt.Sprintf("pid=%d\n", os.Getpid())))
	assert.Contains(t, string(content), "started=")
}

func TestLockConflictKeepsHolderInfo(t *testing.T) {
	dir := t.TempDir()
	lock1, err := AcquireLock(dir)
	require.NoError(t, err)
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("second lock acquisition should have failed")
	}
	var lockErr *LockError
	require.True(t, errors.As(err, &lockErr))
	assert.Contains(t, lockErr.Holder, fmt.Sprintf("PID %d (running", os.Getpid()))
	assert.Contains(t, err.Error(), "another LeadPipe instance")
	assert.Contains(t, err.Error(), dir)

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	assert.Contains(t, string(content), fmt.Sprintf("pid=%d", os.Getpid()))
}

func TestLockRelease(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, lock.Release(), "second release is a no-op")

	lock2, err := AcquireLock(dir)
	require.NoError(t, err)
	lock2.Release()
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	defer lock.Release()
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestExtractPIDFromLockInfo(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{"valid pid", "pid=12345\n", 12345},
		{"pid with extra content", "pid=67890\nstarted=2024-03-04T09:00:00Z", 67890},
		{"no pid", "other=info", 0},
		{"empty content", "", 0},
		{"invalid pid", "pid=abc", 0},
		{"no equals", "pid12345", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractPIDFromLockInfo(tt.content))
		})
	}
}

func TestDescribeHolderStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	require.NoError(t, os.WriteFile(path, []byte("pid=999999999\nstarted=2024-03-04T09:00:00Z\n"), 0o644))
	assert.Equal(t, "PID 999999999 (not running, started 2024-03-04T09:00:00Z)", describeHolder(path))
	assert.Equal(t, "unknown", describeHolder(filepath.Join(t.TempDir(), "missing")))
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, isProcessRunning(os.Getpid()))
}

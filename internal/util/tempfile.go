package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

var tempDirSeq atomic.Uint64

// RunTempDir is a run-scoped temporary directory. It exclusively owns every
// sample clip and encode output written beneath it; Cleanup removes the whole
// tree. The directory name begins with "." so a run in the working directory
// stays out of the way.
type RunTempDir struct {
	path string
	keep bool
}

// NewRunTempDir creates the run temp dir under base. When base is empty the
// working directory is used. The directory name carries a unique suffix so
// concurrent runs do not collide.
func NewRunTempDir(base, prefix string) (*RunTempDir, error) {
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		base = wd
	}

	suffix := fmt.Sprintf("%d.%d.%d", os.Getpid(), time.Now().UnixNano()%1_000_000, tempDirSeq.Add(1))
	path := filepath.Join(base, fmt.Sprintf(".%s-%s", prefix, suffix))
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}

	return &RunTempDir{path: path}, nil
}

// Path returns the directory path.
func (d *RunTempDir) Path() string {
	return d.path
}

// Join returns a path inside the temp dir.
func (d *RunTempDir) Join(name string) string {
	return filepath.Join(d.path, name)
}

// SetKeep marks the directory to survive Cleanup.
func (d *RunTempDir) SetKeep(keep bool) {
	d.keep = keep
}

// Cleanup removes the directory and everything beneath it unless keep is
// set. Safe to call more than once.
func (d *RunTempDir) Cleanup() error {
	if d == nil || d.keep {
		return nil
	}
	if d.path == "" {
		return nil
	}
	err := os.RemoveAll(d.path)
	d.path = ""
	return err
}

// EnsureDirectoryWritable verifies the path is an existing, writable
// directory by creating and removing a probe file.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	probe := filepath.Join(path, fmt.Sprintf(".write-probe-%d", os.Getpid()))
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", path, err)
	}
	_ = f.Close()
	return os.Remove(probe)
}

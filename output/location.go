// Package output owns the artifact produced by a job run.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Location is a file path plus the metadata last read from the file system.
// Metadata only changes on Refresh and Remove.
type Location struct {
	fs   afero.Fs
	path string

	mu   sync.RWMutex
	info fs.FileInfo
}

func New(fsys afero.Fs, path string) *Location {
	return &Location{fs: fsys, path: path}
}

func (l *Location) Path() string { return l.path }

func (l *Location) Name() string { return filepath.Base(l.path) }

func (l *Location) Exists() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.info != nil
}

func (l *Location) Size() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.info == nil {
		return 0
	}
	return l.info.Size()
}

func (l *Location) ModTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.info == nil {
		return time.Time{}
	}
	return l.info.ModTime()
}

// Remove deletes the file at the path. A missing file counts as removed.
func (l *Location) Remove() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info = nil

	err := l.fs.Remove(l.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", l.path, err)
	}
	return nil
}

// Refresh re-reads the file metadata.
func (l *Location) Refresh() error {
	info, err := l.fs.Stat(l.path)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.info = nil
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", l.path, err)
	}
	l.info = info
	return nil
}

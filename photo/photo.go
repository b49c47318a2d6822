// Package photo describes the source photo of a job.
package photo

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Local is a photo stored on the local file system. Results are written to
// OutputDir, or next to the source when OutputDir is empty.
type Local struct {
	Path      string
	OutputDir string
}

// Open checks that path is a regular file no larger than maxSize bytes.
// A maxSize of zero disables the size check.
func Open(fsys afero.Fs, path, outputDir string, maxSize int64) (*Local, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not open photo: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("photo %s is not a regular file", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("photo size %d exceeds limit of %d bytes", info.Size(), maxSize)
	}

	if outputDir != "" {
		if err := fsys.MkdirAll(outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create output directory: %w", err)
		}
	}
	return &Local{Path: path, OutputDir: outputDir}, nil
}

func (p *Local) SourceName() string { return filepath.Base(p.Path) }

func (p *Local) SourcePath() string { return p.Path }

func (p *Local) FolderPath(filename string) string {
	dir := p.OutputDir
	if dir == "" {
		dir = filepath.Dir(p.Path)
	}
	return filepath.Join(dir, filename)
}

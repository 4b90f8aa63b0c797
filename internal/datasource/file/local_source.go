// Package file provides datasets read from the local disk: single files, a
// directory of CSV exports, or a manifest listing them.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local opens one file. It holds no handle between calls, so one Local may
// be opened again for the whole-file fallback after a streaming attempt.
type Local struct{ path string }

func NewLocal(path string) *Local { return &Local{path: path} }

func (l *Local) Path() string { return l.path }

// Open returns the file with a sequential-read hint. A done ctx is reported
// before the filesystem is touched; open errors keep os.ErrNotExist and
// friends reachable through errors.Is.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", l.path, err)
	}
	adviseSequential(f)
	return f, nil
}

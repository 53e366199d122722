package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Workspace tracks the temporary files written while serving one request.
// Release removes all of them; callers defer it right after construction.
type Workspace struct {
	dir string

	mu    sync.Mutex
	files []string
}

// NewWorkspace returns a workspace writing into dir, creating it if needed.
func NewWorkspace(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload folder %s: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the directory files are written to.
func (w *Workspace) Dir() string {
	return w.dir
}

// Save copies src into a new uuid-named file with extension ext and returns
// its path and the number of bytes written. The file is tracked even when
// the copy fails part way.
func (w *Workspace) Save(ext string, src io.Reader) (string, int64, error) {
	name := uuid.New().String()
	if ext != "" {
		name += "." + ext
	}
	path := filepath.Join(w.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	w.mu.Lock()
	w.files = append(w.files, path)
	w.mu.Unlock()

	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return path, n, fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, n, nil
}

// Release removes every file created by Save. It is safe to call more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	files := w.files
	w.files = nil
	w.mu.Unlock()

	var firstErr error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

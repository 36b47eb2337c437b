// Package testutil holds small fixture helpers shared by the test files
// under core and pkg. It has no dependency on the rest of the module so it
// can be imported from any package's tests without import cycles.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Sandbox is an isolated temporary directory for writing fixture files, such
// as genesis allocation manifests or config overrides, that a test needs on
// disk rather than in memory.
type Sandbox struct {
	Root string
}

// NewSandbox creates a new Sandbox rooted at a fresh temporary directory.
func NewSandbox() (*Sandbox, error) {
	dir, err := os.MkdirTemp("", "sovereignd_sandbox")
	if err != nil {
		return nil, err
	}
	return &Sandbox{Root: dir}, nil
}

// Path returns the absolute path for a file within the sandbox.
func (s *Sandbox) Path(name string) string {
	return filepath.Join(s.Root, name)
}

// WriteFile writes data to the named file inside the sandbox using the
// provided permissions, creating parent directories as needed.
func (s *Sandbox) WriteFile(name string, data []byte, perm fs.FileMode) error {
	path := s.Path(name)
	if dir := filepath.Dir(path); dir != s.Root {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, perm)
}

// ReadFile reads and returns data from the named file inside the sandbox.
func (s *Sandbox) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Cleanup removes all files within the sandbox and deletes the root
// directory.
func (s *Sandbox) Cleanup() error {
	return os.RemoveAll(s.Root)
}

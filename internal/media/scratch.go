package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scratch is a per-recording working directory. Everything the pipeline
// downloads or transcodes for one event lives here and is removed together,
// on success and on every failure path alike.
type Scratch struct {
	dir string
}

func NewScratch(base string) (*Scratch, error) {
	dir, err := os.MkdirTemp(base, "scribed-*")
	if err != nil {
		return nil, fmt.Errorf("media: scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Path returns the location for a named file inside the scratch directory.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Scratch) Cleanup() error {
	return os.RemoveAll(s.dir)
}

package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/michaelrsweet/pappl-sub004/internal/job"
	"github.com/michaelrsweet/pappl-sub004/internal/printer"
)

// Spool stores each job's spooled document body as a plain file under dir,
// named by job id (spec.md §6 "spool directory layout"). It implements
// printer.SourceOpener.
type Spool struct {
	dir string
}

// NewSpool creates dir if needed and returns a Spool rooted there.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("core: create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

func (s *Spool) path(jobID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("job-%d.dat", jobID))
}

// Create opens a new spool file for jobID for writing, truncating any
// stale file left from a prior crash.
func (s *Spool) Create(jobID int) (*os.File, string, error) {
	p := s.path(jobID)
	f, err := os.Create(p)
	if err != nil {
		return nil, "", fmt.Errorf("core: create spool file: %w", err)
	}
	return f, p, nil
}

// Open returns the spooled document body for j, satisfying
// printer.SourceOpener.
func (s *Spool) Open(j *job.Job) (printer.ReadCloserSize, error) {
	f, err := os.Open(j.Filename)
	if err != nil {
		return nil, fmt.Errorf("core: open spool file: %w", err)
	}
	return f, nil
}

// Remove deletes the spooled file for jobID, called once a job is
// retention-expired.
func (s *Spool) Remove(jobID int) error {
	err := os.Remove(s.path(jobID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Package sink persists completion records, one file per task id.
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is the result of a successful task.
type Record struct {
	ID         string `json:"id"`
	TargetUsed string `json:"target_used"`
	Text       string `json:"text"`
}

// Sink stores completion records keyed by id.
type Sink interface {
	Write(rec Record) error
}

// FileSink writes <dir>/<id>.json. Readers see either the previous file or
// the complete new one, never a partial write, and a record is durable
// (file contents and directory entry) once Write returns nil.
type FileSink struct {
	dir string
}

// NewFileSink creates the output directory if needed
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Path returns the location of the record for id
func (s *FileSink) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Write stores rec, replacing any earlier record for the same id
func (s *FileSink) Write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+rec.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// Removing after a successful rename is a no-op error we ignore
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(rec.ID)); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	if err := s.syncDir(); err != nil {
		return fmt.Errorf("failed to sync output directory: %w", err)
	}
	return nil
}

// syncDir flushes the directory so the rename survives a power loss before
// the id reaches the ledger
func (s *FileSink) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

// Read loads the record stored for id
func (s *FileSink) Read(id string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return rec, fmt.Errorf("failed to read record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// Package task loads the descriptors a run works through.
package task

import (
	"errors"
	"fmt"
	"strings"
)

// Task is one unit of work sent to the generation service.
type Task struct {
	ID      string
	Target  string
	Payload string
}

// Set is the immutable snapshot of descriptors taken at the start of a run.
type Set struct {
	Tasks   []Task
	Invalid []*DescriptorError
}

// Descriptor validation errors
var (
	ErrMalformed      = errors.New("malformed descriptor")
	ErrMissingID      = errors.New("missing id")
	ErrMissingTarget  = errors.New("missing target")
	ErrMissingPayload = errors.New("missing payload")
	ErrUnsafeID       = errors.New("id is not usable as a file name")
	ErrDuplicateID    = errors.New("duplicate id")
)

// DescriptorError describes a record that was skipped while loading.
type DescriptorError struct {
	Source string
	Line   int
	ID     string
	Err    error
}

func (e *DescriptorError) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	if e.ID != "" {
		return fmt.Sprintf("%s: %s: %v", loc, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", loc, e.Err)
}

func (e *DescriptorError) Unwrap() error {
	return e.Err
}

// validate checks the fields every task needs. The id doubles as the output
// file name, so it must be a single path element.
func (t Task) validate() error {
	switch {
	case t.ID == "":
		return ErrMissingID
	case t.Target == "":
		return ErrMissingTarget
	case t.Payload == "":
		return ErrMissingPayload
	}
	if t.ID == "." || t.ID == ".." || strings.ContainsAny(t.ID, "/\\\x00") {
		return ErrUnsafeID
	}
	return nil
}

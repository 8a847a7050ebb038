package task

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// maxRecordSize bounds a single descriptor line; prompts carry data tables.
const maxRecordSize = 16 * 1024 * 1024

// descriptor is the on-disk shape. The prompt builder writes group_id, model
// and prompt; newer producers use id, target and payload.
type descriptor struct {
	ID      string `json:"id"`
	Target  string `json:"target"`
	Payload string `json:"payload"`

	GroupID string `json:"group_id"`
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
}

func (d descriptor) task() Task {
	t := Task{ID: d.ID, Target: d.Target, Payload: d.Payload}
	if t.ID == "" {
		t.ID = d.GroupID
	}
	if t.Target == "" {
		t.Target = d.Model
	}
	if t.Payload == "" {
		t.Payload = d.Prompt
	}
	return t
}

// LoadDir reads every .json and .jsonl file in dir, in lexical order.
// Only an unreadable directory is an error; bad records end up in Set.Invalid.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".jsonl":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	set := &Set{}
	seen := make(map[string]string)
	for _, name := range files {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			set.Invalid = append(set.Invalid, &DescriptorError{Source: name, Err: err})
			continue
		}
		tasks, invalid := Parse(f, name)
		f.Close()

		set.Invalid = append(set.Invalid, invalid...)
		for _, t := range tasks {
			if first, dup := seen[t.ID]; dup {
				set.Invalid = append(set.Invalid, &DescriptorError{
					Source: name,
					ID:     t.ID,
					Err:    fmt.Errorf("%w (first seen in %s)", ErrDuplicateID, first),
				})
				continue
			}
			seen[t.ID] = name
			set.Tasks = append(set.Tasks, t)
		}
	}

	return set, nil
}

// Parse reads one JSON descriptor per non-blank line. A line longer than
// maxRecordSize is reported and skipped; parsing resumes at the next line.
func Parse(r io.Reader, source string) ([]Task, []*DescriptorError) {
	var (
		tasks   []Task
		invalid []*DescriptorError
	)

	br := bufio.NewReaderSize(r, 64*1024)
	for line := 1; ; line++ {
		raw, err := readLine(br)
		if errors.Is(err, errLineTooLong) {
			invalid = append(invalid, &DescriptorError{
				Source: source,
				Line:   line,
				Err:    fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, maxRecordSize),
			})
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			invalid = append(invalid, &DescriptorError{
				Source: source,
				Line:   line,
				Err:    fmt.Errorf("%w: %v", ErrMalformed, err),
			})
			break
		}

		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			if t, derr := decode(trimmed, source, line); derr != nil {
				invalid = append(invalid, derr)
			} else {
				tasks = append(tasks, t)
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	return tasks, invalid
}

func decode(raw []byte, source string, line int) (Task, *DescriptorError) {
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Task{}, &DescriptorError{
			Source: source,
			Line:   line,
			Err:    fmt.Errorf("%w: %v", ErrMalformed, err),
		}
	}

	t := d.task()
	if err := t.validate(); err != nil {
		return Task{}, &DescriptorError{Source: source, Line: line, ID: t.ID, Err: err}
	}
	return t, nil
}

var errLineTooLong = errors.New("line too long")

// readLine returns the next line without its terminator. An overlong line
// is drained up to its newline and errLineTooLong returned. io.EOF comes
// with the final unterminated line, if any.
func readLine(br *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(buf)+len(chunk) > maxRecordSize+1 {
			if errors.Is(err, bufio.ErrBufferFull) {
				if derr := discardLine(br); derr != nil && !errors.Is(derr, io.EOF) {
					return nil, derr
				}
			}
			return nil, errLineTooLong
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return bytes.TrimSuffix(buf, []byte("\n")), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return buf, err
		}
	}
}

// discardLine skips input up to and including the next newline
func discardLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

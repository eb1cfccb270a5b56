package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lineecho/lineecho-go/pkg/log"
)

// Criteria holds event selection flags as given on the command line.
// Empty fields match everything.
type Criteria struct {
	SessionID string
	Peer      string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// Filter parses the criteria into a log.Filter.
func (c Criteria) Filter() (log.Filter, error) {
	filter := log.Filter{
		SessionID:  c.SessionID,
		RemoteAddr: c.Peer,
	}

	var err error
	if filter.TimeStart, err = parseTime("time-start", c.TimeStart); err != nil {
		return filter, err
	}
	if filter.TimeEnd, err = parseTime("time-end", c.TimeEnd); err != nil {
		return filter, err
	}
	if c.Layer != "" {
		l, err := ParseLayerFlag(c.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if c.Direction != "" {
		d, err := ParseDirectionFlag(c.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if c.Category != "" {
		cat, err := ParseCategoryFlag(c.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &cat
	}
	return filter, nil
}

func parseTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return &t, nil
}

// RunFilter copies the events matching c into a new trace file at output
// and returns how many were written. An existing output file is replaced.
func RunFilter(path, output string, c Criteria) (int, error) {
	filter, err := c.Filter()
	if err != nil {
		return 0, err
	}
	if sameFile(path, output) {
		return 0, fmt.Errorf("output %s would overwrite the input", output)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	// FileLogger appends, so start from an empty file
	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to replace output: %w", err)
	}
	out, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output trace: %w", err)
	}

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = out.Close()
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		out.Log(event)
		count++
	}

	if dropped := out.Dropped(); dropped > 0 {
		_ = out.Close()
		return count - dropped, fmt.Errorf("%d events could not be written", dropped)
	}
	return count, out.Close()
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

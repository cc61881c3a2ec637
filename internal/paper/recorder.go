package paper

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/execution"
)

// ErrIOFailure wraps every failure to write the durable transaction log.
var ErrIOFailure = errors.New("transaction log write failed")

// CSVRecorder appends transactions to a CSV log that lives for one session.
type CSVRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// NewCSVRecorder clears dir, recreates it, and opens dir/name with a fresh header.
func NewCSVRecorder(dir, name string) (*CSVRecorder, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear %s: %w", dir, errors.Join(ErrIOFailure, err))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, errors.Join(ErrIOFailure, err))
	}
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, errors.Join(ErrIOFailure, err))
	}
	rec := &CSVRecorder{path: path, file: file, w: csv.NewWriter(file)}
	if err := rec.write(dataset.Header); err != nil {
		_ = file.Close()
		return nil, err
	}
	return rec, nil
}

// Path is the log file location.
func (r *CSVRecorder) Path() string { return r.path }

// Record appends a single transaction and flushes it to disk.
func (r *CSVRecorder) Record(tx execution.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return fmt.Errorf("record %s: %w", tx.Symbol, errors.Join(ErrIOFailure, os.ErrClosed))
	}
	return r.write([]string{
		tx.Time.Format(dataset.TimeLayout),
		tx.Symbol,
		strconv.FormatFloat(tx.Amount, 'f', -1, 64),
		strconv.FormatFloat(tx.Rate, 'f', -1, 64),
	})
}

func (r *CSVRecorder) write(row []string) error {
	if err := r.w.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", r.path, errors.Join(ErrIOFailure, err))
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", r.path, errors.Join(ErrIOFailure, err))
	}
	return nil
}

// Close flushes and closes the file handle.
func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	r.w.Flush()
	err := errors.Join(r.w.Error(), r.file.Close())
	r.file = nil
	return err
}

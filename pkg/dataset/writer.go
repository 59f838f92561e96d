package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hazmate/pkg/logger"
	"hazmate/pkg/models"
)

// Writer appends collected items to a JSONL dataset file, one record per
// line. The stream is append-only: on resume the writer reopens the existing
// file and reloads the identifiers already written, so a restarted run never
// duplicates a line.
type Writer struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	buf     *bufio.Writer
	written map[string]bool
	count   int
	logger  logger.Logger
}

// NewWriter opens (or creates) the dataset file for appending
func NewWriter(path string, log logger.Logger) (*Writer, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	w := &Writer{
		path:    path,
		written: make(map[string]bool),
		logger:  log,
	}

	if err := w.scanExisting(); err != nil {
		return nil, fmt.Errorf("failed to scan existing dataset: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	w.file = file
	w.buf = bufio.NewWriter(file)

	return w, nil
}

// scanExisting reloads the identifiers already present in the dataset file
func (w *Writer) scanExisting() error {
	file, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var record struct {
			ItemID string `json:"item_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return fmt.Errorf("malformed record on line %d: %w", line, err)
		}
		if record.ItemID != "" {
			w.written[record.ItemID] = true
			w.count++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if w.count > 0 {
		w.logger.InfoWithFields("resuming existing dataset", map[string]interface{}{
			"path":  w.path,
			"items": w.count,
		})
	}
	return nil
}

// Write appends one item. Implements collector.Sink. Re-writing an
// identifier already in the file is a silent no-op, which keeps the file
// consistent with the accumulator's dedup across resumed runs.
func (w *Writer) Write(item *models.CollectedItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written[item.ItemID] {
		return nil
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", item.ItemID, err)
	}

	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("failed to write item %s: %w", item.ItemID, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write item %s: %w", item.ItemID, err)
	}

	w.written[item.ItemID] = true
	w.count++
	return nil
}

// Count returns the number of records in the dataset, resumed lines included
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count
}

// Contains reports whether an identifier is already in the dataset
func (w *Writer) Contains(itemID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.written[itemID]
}

// Flush forces buffered records to disk
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.buf.Flush()
}

// Close flushes and closes the dataset file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to sync dataset: %w", err)
	}
	return w.file.Close()
}

// Read loads every record from a dataset file, for inspection tooling
func Read(path string) ([]models.CollectedItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	var items []models.CollectedItem
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var item models.CollectedItem
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			return nil, fmt.Errorf("malformed record on line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

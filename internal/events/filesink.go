package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFilename is the name of the progress log inside the events directory.
const DefaultFilename = "rounds.jsonl"

// FileSink appends ProgressEvents to a JSONL file. It is safe for concurrent use.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewFileSink opens dir/rounds.jsonl for appending, creating dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create events dir: %w", err)
	}
	path := filepath.Join(dir, DefaultFilename)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}

	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write writes a batch of events, one JSON object per line, and flushes.
func (s *FileSink) Write(events []ProgressEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("events file %s is closed", s.path)
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		data = append(data, '\n')
		if _, err := s.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush events: %w", err)
	}
	return nil
}

// WriteOne writes a single event.
func (s *FileSink) WriteOne(event ProgressEvent) error {
	return s.Write([]ProgressEvent{event})
}

// Close flushes any remaining data and closes the file. Closing twice is safe.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.file = nil

	if flushErr != nil {
		return fmt.Errorf("failed to flush before close: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close events file: %w", closeErr)
	}
	return nil
}

// Path returns the path to the events file.
func (s *FileSink) Path() string {
	return s.path
}

// ReadEvents reads all events from a JSONL file.
func ReadEvents(path string) ([]ProgressEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var events []ProgressEvent
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event ProgressEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse event on line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	return events, nil
}

// FilterByType filters events by event type. No types returns all events.
func FilterByType(events []ProgressEvent, types ...EventType) []ProgressEvent {
	if len(types) == 0 {
		return events
	}

	typeSet := make(map[EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	var filtered []ProgressEvent
	for _, event := range events {
		if typeSet[event.Type] {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// FilterByRound filters events by round number; round <= 0 returns all events.
func FilterByRound(events []ProgressEvent, round int) []ProgressEvent {
	if round <= 0 {
		return events
	}

	var filtered []ProgressEvent
	for _, event := range events {
		if event.Round == round {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

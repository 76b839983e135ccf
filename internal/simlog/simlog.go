// Package simlog writes simulation records as tab-separated log lines and
// reads them back.
package simlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"nkinnov/internal/model"
)

// Sink accepts the records of one stream in emission order.
type Sink interface {
	AppendRecords(ctx context.Context, stream model.Stream, records []model.Record) error
}

// MultiSink forwards to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) AppendRecords(ctx context.Context, stream model.Stream, records []model.Record) error {
	for _, s := range m {
		if err := s.AppendRecords(ctx, stream, records); err != nil {
			return err
		}
	}
	return nil
}

// FileSink appends each stream to a file named after the stream in Dir.
// Files are opened in append mode for every call and closed before it
// returns, so output accumulates across cases, runs and invocations.
type FileSink struct {
	Dir string

	mu sync.Mutex
}

func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &FileSink{Dir: dir}, nil
}

// Path returns the file a stream is written to.
func (s *FileSink) Path(stream model.Stream) string {
	return filepath.Join(s.Dir, stream.Name)
}

func (s *FileSink) AppendRecords(ctx context.Context, stream model.Stream, records []model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(stream), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", stream.Name, err)
	}
	if err := WriteRecords(f, records); err != nil {
		_ = f.Close()
		return fmt.Errorf("write log %s: %w", stream.Name, err)
	}
	return f.Close()
}

// WriteRecords writes one line per record.
func WriteRecords(w io.Writer, records []model.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(r.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadRecords parses log lines, skipping blank ones.
func ReadRecords(r io.Reader) ([]model.Record, error) {
	var out []model.Record
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		rec, err := model.ParseRecord(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

// ReadFile reads a whole log file.
func ReadFile(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Discard is a sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) AppendRecords(context.Context, model.Stream, []model.Record) error { return nil }

// Package chunk splits a delimited-text dataset into size- and row-bounded
// chunks suitable for submission as independent batches.
//
// The dataset's first row is the field-name header; every chunk begins with
// an identical copy of it so each chunk is a valid standalone dataset.
// Splitting is streaming and single-pass: the input reader is consumed
// exactly once and chunks are produced lazily through Next.
package chunk

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/bulkloader/internal/staging"
)

// Default limits, matching the remote service's batch constraints.
const (
	DefaultMaxBytes = 10_000_000
	DefaultMaxRows  = 10_000
)

// ErrMissingHeader is returned when the dataset has no header row.
var ErrMissingHeader = errors.New("dataset has no header row")

// Chunk is one bounded, header-prefixed slice of the input dataset, staged
// through a staging provider until its batch is submitted.
type Chunk struct {
	Seq   int   // 0-based position in the dataset
	Rows  int   // data rows, header excluded
	Bytes int64 // serialized size, header included

	ref      string
	provider staging.Provider
}

// Open returns a reader over the staged chunk payload.
func (c *Chunk) Open(ctx context.Context) (io.ReadCloser, error) {
	return c.provider.Open(ctx, c.ref)
}

// Discard releases the staged payload. Safe to call more than once.
func (c *Chunk) Discard(ctx context.Context) error {
	return c.provider.Discard(ctx, c.ref)
}

// Splitter produces chunks from a header + row stream. Not safe for
// concurrent use; the underlying stream is not restartable.
type Splitter struct {
	r        *bufio.Reader
	provider staging.Provider

	maxBytes int
	maxRows  int

	header     []byte
	headerRead bool
	seq        int
	done       bool

	buf  bytes.Buffer
	rows int
	// row carried over from the previous Next call that triggered a flush
	pending []byte
}

// NewSplitter creates a splitter over dataset with the given limits.
// Zero or negative limits fall back to the defaults.
func NewSplitter(dataset io.Reader, provider staging.Provider, maxBytes, maxRows int) *Splitter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Splitter{
		r:        bufio.NewReader(dataset),
		provider: provider,
		maxBytes: maxBytes,
		maxRows:  maxRows,
	}
}

// Next returns the next chunk, staging its payload before returning.
// It returns io.EOF once the dataset is exhausted.
//
// A chunk never exceeds maxBytes or maxRows, except when a single row alone
// exceeds maxBytes: that row is emitted as its own oversized chunk rather
// than dropped or rejected.
func (s *Splitter) Next(ctx context.Context) (*Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	if !s.headerRead {
		header, err := s.readRow()
		if err == io.EOF || (err == nil && len(bytes.TrimSpace(header)) == 0) {
			s.done = true
			return nil, ErrMissingHeader
		}
		if err != nil {
			s.done = true
			return nil, fmt.Errorf("read header: %w", err)
		}
		s.header = header
		s.headerRead = true
	}

	s.buf.Reset()
	s.buf.Write(s.header)
	s.rows = 0

	if s.pending != nil {
		s.buf.Write(s.pending)
		s.rows++
		s.pending = nil
	}

	for {
		if err := ctx.Err(); err != nil {
			s.done = true
			return nil, err
		}

		row, err := s.readRow()
		if err == io.EOF {
			s.done = true
			if s.rows == 0 {
				return nil, io.EOF
			}
			return s.finalize(ctx)
		}
		if err != nil {
			s.done = true
			return nil, fmt.Errorf("read row: %w", err)
		}

		// Flush before appending when the row would push the chunk past
		// either limit. A chunk always keeps at least one data row, so a
		// row larger than maxBytes still goes out as its own chunk.
		if s.rows > 0 && (s.buf.Len()+len(row) > s.maxBytes || s.rows >= s.maxRows) {
			s.pending = row
			return s.finalize(ctx)
		}

		s.buf.Write(row)
		s.rows++
	}
}

// finalize stages the accumulated chunk. Callers set done before invoking
// when the source is exhausted; a pending carried row keeps the splitter
// open for one more chunk.
func (s *Splitter) finalize(ctx context.Context) (*Chunk, error) {
	ref := staging.NewRef(s.seq)
	size := int64(s.buf.Len())
	if err := s.provider.Put(ctx, ref, bytes.NewReader(s.buf.Bytes()), size); err != nil {
		s.done = true
		return nil, fmt.Errorf("stage chunk %d: %w", s.seq, err)
	}

	c := &Chunk{
		Seq:      s.seq,
		Rows:     s.rows,
		Bytes:    size,
		ref:      ref,
		provider: s.provider,
	}
	s.seq++
	return c, nil
}

// readRow reads one newline-terminated row, normalizing line endings so the
// serialized form always ends with a single '\n'. A zero-length final
// fragment (input ending in a newline) reads as io.EOF.
func (s *Splitter) readRow() ([]byte, error) {
	line, err := s.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if line == "" && err == io.EOF {
		return nil, io.EOF
	}

	line = strings.TrimRight(line, "\r\n")
	return append([]byte(line), '\n'), nil
}

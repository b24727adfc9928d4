package chunk

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/JonMunkholm/bulkloader/internal/staging"
)

func drain(t *testing.T, s *Splitter) []*Chunk {
	t.Helper()
	var chunks []*Chunk
	for {
		c, err := s.Next(context.Background())
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		chunks = append(chunks, c)
	}
}

func payload(t *testing.T, c *Chunk) string {
	t.Helper()
	rc, err := c.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return string(data)
}

func TestSplitter_SingleChunk(t *testing.T) {
	input := "Name,Email\nAda,ada@example.com\nAlan,alan@example.com\n"
	s := NewSplitter(strings.NewReader(input), staging.NewMemoryProvider(0), 0, 0)

	chunks := drain(t, s)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Rows != 2 {
		t.Errorf("Rows = %d, want 2", chunks[0].Rows)
	}
	if got := payload(t, chunks[0]); got != input {
		t.Errorf("payload = %q, want %q", got, input)
	}
}

func TestSplitter_RowLimit(t *testing.T) {
	// 25,000 data rows with a 10,000-row limit must split 10000/10000/5000.
	var b strings.Builder
	b.WriteString("Id,Value\n")
	for i := 0; i < 25000; i++ {
		fmt.Fprintf(&b, "%d,v%d\n", i, i)
	}

	s := NewSplitter(strings.NewReader(b.String()), staging.NewMemoryProvider(1<<30), 0, 10000)
	chunks := drain(t, s)

	wantRows := []int{10000, 10000, 5000}
	if len(chunks) != len(wantRows) {
		t.Fatalf("chunks = %d, want %d", len(chunks), len(wantRows))
	}
	for i, c := range chunks {
		if c.Rows != wantRows[i] {
			t.Errorf("chunk %d Rows = %d, want %d", i, c.Rows, wantRows[i])
		}
		if c.Seq != i {
			t.Errorf("chunk %d Seq = %d", i, c.Seq)
		}
	}
}

func TestSplitter_ByteLimit(t *testing.T) {
	input := "h1,h2\naaaa,bbbb\ncccc,dddd\neeee,ffff\n"
	// Header (6) + one row (10) = 16; a second row would exceed 20.
	s := NewSplitter(strings.NewReader(input), staging.NewMemoryProvider(0), 20, 0)

	chunks := drain(t, s)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.Rows != 1 {
			t.Errorf("chunk %d Rows = %d, want 1", i, c.Rows)
		}
		if c.Bytes > 20 {
			t.Errorf("chunk %d Bytes = %d, exceeds limit", i, c.Bytes)
		}
	}
}

func TestSplitter_HeaderRepeatedPerChunk(t *testing.T) {
	input := "Name,Email\na,a@x\nb,b@x\nc,c@x\n"
	s := NewSplitter(strings.NewReader(input), staging.NewMemoryProvider(0), 0, 1)

	chunks := drain(t, s)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		if got := payload(t, c); !strings.HasPrefix(got, "Name,Email\n") {
			t.Errorf("chunk %d payload %q missing header", i, got)
		}
	}
}

func TestSplitter_Lossless(t *testing.T) {
	// Concatenating all chunk payloads minus repeated headers must
	// reproduce the input rows in order.
	var b strings.Builder
	b.WriteString("Id\n")
	for i := 0; i < 57; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	input := b.String()

	s := NewSplitter(strings.NewReader(input), staging.NewMemoryProvider(0), 0, 10)
	chunks := drain(t, s)

	var rebuilt strings.Builder
	rebuilt.WriteString("Id\n")
	for _, c := range chunks {
		rebuilt.WriteString(strings.TrimPrefix(payload(t, c), "Id\n"))
	}
	if rebuilt.String() != input {
		t.Errorf("reassembled dataset does not match input")
	}
}

func TestSplitter_OversizedRowEmittedAlone(t *testing.T) {
	big := strings.Repeat("x", 100)
	input := "h\nsmall\n" + big + "\nsmall2\n"
	s := NewSplitter(strings.NewReader(input), staging.NewMemoryProvider(0), 30, 0)

	chunks := drain(t, s)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if chunks[1].Rows != 1 {
		t.Errorf("oversized chunk Rows = %d, want 1", chunks[1].Rows)
	}
	if !strings.Contains(payload(t, chunks[1]), big) {
		t.Errorf("oversized row missing from its chunk")
	}
	if got := payload(t, chunks[2]); got != "h\nsmall2\n" {
		t.Errorf("trailing chunk payload = %q", got)
	}
}

func TestSplitter_MissingHeader(t *testing.T) {
	for _, input := range []string{"", "\n", "   \n"} {
		s := NewSplitter(strings.NewReader(input), staging.NewMemoryProvider(0), 0, 0)
		_, err := s.Next(context.Background())
		if err != ErrMissingHeader {
			t.Errorf("input %q: error = %v, want ErrMissingHeader", input, err)
		}
	}
}

func TestSplitter_HeaderOnly(t *testing.T) {
	s := NewSplitter(strings.NewReader("Name,Email\n"), staging.NewMemoryProvider(0), 0, 0)
	_, err := s.Next(context.Background())
	if err != io.EOF {
		t.Fatalf("error = %v, want io.EOF", err)
	}
}

func TestSplitter_NormalizesCRLF(t *testing.T) {
	input := "a,b\r\n1,2\r\n3,4\r\n"
	s := NewSplitter(strings.NewReader(input), staging.NewMemoryProvider(0), 0, 0)

	chunks := drain(t, s)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if got := payload(t, chunks[0]); got != "a,b\n1,2\n3,4\n" {
		t.Errorf("payload = %q", got)
	}
}

func TestSplitter_MissingTrailingNewline(t *testing.T) {
	s := NewSplitter(strings.NewReader("h\nrow1\nrow2"), staging.NewMemoryProvider(0), 0, 0)

	chunks := drain(t, s)
	if len(chunks) != 1 || chunks[0].Rows != 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	if got := payload(t, chunks[0]); got != "h\nrow1\nrow2\n" {
		t.Errorf("payload = %q", got)
	}
}

func TestSplitter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSplitter(strings.NewReader("h\nrow\n"), staging.NewMemoryProvider(0), 0, 0)
	if _, err := s.Next(ctx); err != context.Canceled {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSplitter_DiscardReleasesPayload(t *testing.T) {
	provider := staging.NewMemoryProvider(0)
	s := NewSplitter(strings.NewReader("h\nrow\n"), provider, 0, 0)

	chunks := drain(t, s)
	if provider.TotalBytes() == 0 {
		t.Fatal("payload not staged")
	}
	if err := chunks[0].Discard(context.Background()); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if provider.TotalBytes() != 0 {
		t.Errorf("TotalBytes = %d after discard, want 0", provider.TotalBytes())
	}
	// Discard is idempotent
	if err := chunks[0].Discard(context.Background()); err != nil {
		t.Errorf("second Discard() error = %v", err)
	}
}

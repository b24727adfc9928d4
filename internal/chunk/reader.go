package chunk

// reader.go provides streaming wrappers for the input dataset:
//
//   - BOMSkippingReader: removes the UTF-8 BOM (0xEF 0xBB 0xBF) that
//     Windows tools prepend to CSV exports
//   - CountingReader: tracks bytes read for progress reporting
//
// Use WrapDataset to apply both in the correct order.

import (
	"io"
)

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	bufData    []byte
	bufOffset  int
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if n == 0 {
			return 0, err
		}

		if n >= 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF {
			r.bufData = nil
		} else {
			r.bufData = r.buf[:n]
			r.bufOffset = 0
		}

		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		if len(r.bufData) > 0 {
			copied := copy(p, r.bufData[r.bufOffset:])
			r.bufOffset += copied
			if r.bufOffset >= len(r.bufData) {
				r.bufData = nil
			}
			if copied < len(p) && err != io.EOF {
				n2, err2 := r.reader.Read(p[copied:])
				return copied + n2, err2
			}
			return copied, err
		}
	}

	if len(r.bufData) > r.bufOffset {
		copied := copy(p, r.bufData[r.bufOffset:])
		r.bufOffset += copied
		if r.bufOffset >= len(r.bufData) {
			r.bufData = nil
		}
		return copied, nil
	}

	return r.reader.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read.
// Used for progress reporting while chunking large datasets.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if the total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

// WrapDataset wraps a dataset reader with BOM skipping and byte counting.
func WrapDataset(r io.Reader, totalSize int64) *CountingReader {
	return NewCountingReader(NewBOMSkippingReader(r), totalSize)
}

// Package recordlog implements the shared append-only frame format used by
// the WAL, the MANIFEST, and the value log: every record is written as
//
//	[u64 checksum_be][u32 payload_len_be][payload]
//
// checksum is the XXH3-64 of payload. The three log kinds differ only in
// what they put in the payload (a WriteBatch encoding, a VersionEdit
// encoding, or a raw value) and in how the caller reacts to a truncated
// final record (WAL/MANIFEST treat it as "stop replay here"; the value log
// never truncates because writes are fsynced before being acknowledged).
package recordlog

import (
	"errors"
	"fmt"
	"io"

	"github.com/crwen/ckv/internal/checksum"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
)

// HeaderSize is the size of the fixed frame header (checksum + length).
const HeaderSize = 8 + 4

// AppendRecord appends one framed record for payload to dst and returns
// the extended slice.
func AppendRecord(dst []byte, payload []byte) []byte {
	sum := checksum.Of(payload)
	dst = encoding.AppendFixed64(dst, sum)
	dst = encoding.AppendFixed32(dst, uint32(len(payload)))
	dst = append(dst, payload...)
	return dst
}

// ErrTruncated indicates a record header or payload was cut short — the
// normal end-of-log condition after a crash mid-write.
var ErrTruncated = errors.New("recordlog: truncated record")

// Reader sequentially decodes records from an io.Reader.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader wraps r for sequential record decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads and validates the next record, returning its payload.
// Returns io.EOF when the underlying reader is exhausted cleanly (at a
// record boundary). Returns ErrTruncated if a partial header or payload is
// encountered (a torn write from an unclean shutdown) — the caller should
// stop replaying at that point, not treat it as corruption of prior
// records. Returns a wrapped errs.ErrChecksumMismatch if a complete
// record's checksum does not match.
func (r *Reader) Next() ([]byte, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.r, header)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil || n < HeaderSize {
		return nil, ErrTruncated
	}

	wantSum := encoding.DecodeFixed64(header[0:8])
	length := encoding.DecodeFixed32(header[8:12])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, ErrTruncated
	}

	if !checksum.Verify(payload, wantSum) {
		return nil, fmt.Errorf("recordlog: %w", errs.ErrChecksumMismatch)
	}
	return payload, nil
}

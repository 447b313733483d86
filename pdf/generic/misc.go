package generic

import (
	"fmt"
	"hash"
	"io"
	"strconv"
	"time"
)

// DefaultChunkSize is the default chunk size for stream I/O.
const DefaultChunkSize = 4096

// OffsetWriter counts the bytes written through it so that serializers can
// learn the absolute position of the objects they emit.
type OffsetWriter struct {
	w      io.Writer
	offset int64
}

// NewOffsetWriter wraps w. base is the number of bytes already present in the
// destination before the first write.
func NewOffsetWriter(w io.Writer, base int64) *OffsetWriter {
	return &OffsetWriter{w: w, offset: base}
}

// Write implements io.Writer.
func (o *OffsetWriter) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	o.offset += int64(n)
	return n, err
}

// Offset returns the absolute offset of the next byte to be written.
func (o *OffsetWriter) Offset() int64 {
	return o.offset
}

// Offsetter is implemented by writers that know their absolute position.
type Offsetter interface {
	Offset() int64
}

// ChunkedDigest feeds r into h in chunkSize pieces, reading at most maxRead
// bytes when maxRead is positive.
func ChunkedDigest(r io.Reader, h hash.Hash, chunkSize int, maxRead int64) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	var total int64

	for maxRead <= 0 || total < maxRead {
		toRead := int64(chunkSize)
		if maxRead > 0 && total+toRead > maxRead {
			toRead = maxRead - total
		}

		n, err := r.Read(buf[:toRead])
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// FormatDate formats a time as a PDF date string (D:YYYYMMDDHHmmSS+HH'mm').
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}

	return fmt.Sprintf("D:%04d%02d%02d%02d%02d%02d%s%02d'%02d'",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
		sign, offset/3600, (offset%3600)/60)
}

// ParseDate parses a PDF date string. Missing trailing fields default to
// their minimum value and a missing offset means UTC.
func ParseDate(s string) (time.Time, error) {
	raw := s
	if len(s) >= 2 && s[:2] == "D:" {
		s = s[2:]
	}
	if len(s) < 4 {
		return time.Time{}, fmt.Errorf("invalid PDF date %q", raw)
	}

	fields := []int{0, 1, 1, 0, 0, 0}
	widths := []int{4, 2, 2, 2, 2, 2}
	for i, width := range widths {
		if len(s) < width || s[0] < '0' || s[0] > '9' {
			break
		}
		v, err := strconv.Atoi(s[:width])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid PDF date %q: %w", raw, err)
		}
		fields[i] = v
		s = s[width:]
	}

	loc := time.UTC
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		sign := 1
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
		var hh, mm int
		if len(s) >= 2 {
			hh, _ = strconv.Atoi(s[:2])
			s = s[2:]
		}
		if len(s) > 0 && s[0] == '\'' {
			s = s[1:]
		}
		if len(s) >= 2 {
			mm, _ = strconv.Atoi(s[:2])
		}
		loc = time.FixedZone("", sign*(hh*3600+mm*60))
	}

	return time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], 0, loc), nil
}

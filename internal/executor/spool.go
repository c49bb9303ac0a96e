package executor

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// DefaultSpoolRows is the number of matched rows a query keeps in memory
// before spilling the rest to a temporary file.
const DefaultSpoolRows = 100_000

func init() {
	gob.Register(time.Time{})
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

type spooled struct {
	Coord int64
	Row   core.Row
}

// spool collects the matches of one query in scan order. The first limit
// rows stay in memory and later ones are gob-encoded to a temporary file.
// Coordinates are always kept in memory.
type spool struct {
	dir    string
	limit  int
	mem    []match
	coords []int64

	file *os.File
	buf  *bufio.Writer
	enc  *gob.Encoder
}

func newSpool(dir string, limit int) *spool {
	return &spool{dir: dir, limit: limit}
}

// Len returns the number of rows added.
func (s *spool) Len() int { return len(s.coords) }

// Coords returns the coordinates of the spooled rows in order.
func (s *spool) Coords() []int64 { return s.coords }

// Spilled reports whether any row went to disk.
func (s *spool) Spilled() bool { return s.file != nil }

func (s *spool) add(m match) error {
	s.coords = append(s.coords, m.coord)
	if len(s.mem) < s.limit {
		s.mem = append(s.mem, m)
		return nil
	}
	if s.file == nil {
		f, err := os.CreateTemp(s.dir, "leapquery-spool-*")
		if err != nil {
			return fmt.Errorf("failed to create spool file: %w", err)
		}
		s.file = f
		s.buf = bufio.NewWriter(f)
		s.enc = gob.NewEncoder(s.buf)
	}
	if err := s.enc.Encode(spooled{Coord: m.coord, Row: m.row}); err != nil {
		return fmt.Errorf("failed to spool row %d: %w", m.coord, err)
	}
	return nil
}

// each calls fn for every row in the order they were added.
func (s *spool) each(fn func(match) error) error {
	for _, m := range s.mem {
		if err := fn(m); err != nil {
			return err
		}
	}
	if s.file == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush spool file: %w", err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}
	dec := gob.NewDecoder(bufio.NewReader(s.file))
	for range len(s.coords) - len(s.mem) {
		var rec spooled
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("failed to read spool file: %w", err)
		}
		if err := fn(match{coord: rec.Coord, row: rec.Row}); err != nil {
			return err
		}
	}
	return nil
}

// Close removes the spool file, if any.
func (s *spool) Close() error {
	s.mem = nil
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := errors.Join(s.file.Close(), os.Remove(name))
	s.file, s.buf, s.enc = nil, nil, nil
	return err
}

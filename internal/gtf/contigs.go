// Package gtf reads gene annotations and derives a pseudo contig-length table
// from them.
package gtf

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
)

// Record is one line of a GTF file.
type Record struct {
	Contig     string
	Source     string
	Feature    string
	Start      int
	End        int
	Score      string // "." when absent
	Strand     string
	Frame      string
	Attributes string
}

// ContigLength is one row of the derived contigs table.
type ContigLength struct {
	Contig string
	Length int
}

// EmptyInputError is returned when the annotation holds no records, so no
// contig can be named.
type EmptyInputError struct {
	Source string
}

func (e *EmptyInputError) Error() string {
	if e == nil || e.Source == "" {
		return "gtf: no annotation records"
	}
	return fmt.Sprintf("gtf: no annotation records in %s", e.Source)
}

// Deriver accumulates the running maximum end coordinate per contiguous
// contig block. Records of one contig are expected to be adjacent; a contig
// that reappears after another one is emitted again as a new row.
type Deriver struct {
	started bool
	contig  string
	maxEnd  int
	out     []ContigLength
}

// Add feeds one record.
func (d *Deriver) Add(contig string, end int) {
	if d.started && contig != d.contig {
		d.out = append(d.out, ContigLength{Contig: d.contig, Length: d.maxEnd})
		d.maxEnd = 0
	}
	if end > d.maxEnd {
		d.maxEnd = end
	}
	d.contig = contig
	d.started = true
}

// Finish emits the last block and returns the table.
func (d *Deriver) Finish() ([]ContigLength, error) {
	if !d.started {
		return nil, &EmptyInputError{}
	}
	return append(d.out, ContigLength{Contig: d.contig, Length: d.maxEnd}), nil
}

// DeriveContigLengths approximates each contig's length as the largest end
// coordinate among its records.
func DeriveContigLengths(records []Record) ([]ContigLength, error) {
	var d Deriver
	for _, r := range records {
		d.Add(r.Contig, r.End)
	}
	return d.Finish()
}

// Scan calls fn for every record in r. Lines starting with '#' are skipped.
func Scan(r io.Reader, fn func(Record) error) error {
	tr := tsv.NewReader(bufio.NewReaderSize(r, 64<<10))
	tr.Comment = '#'
	tr.LazyQuotes = true
	var rec Record
	for {
		if err := tr.Read(&rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Open opens a plain or gzip-compressed annotation file. The returned closer
// releases both layers.
func Open(path string) (io.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.E(err, "open annotation", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, nil, errors.E(err, "gunzip annotation", path)
	}
	return zr, closers{zr, f}, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteContigs writes the table as two tab-separated columns without a
// header.
func WriteContigs(w io.Writer, lengths []ContigLength) error {
	tw := tsv.NewWriter(w)
	for _, l := range lengths {
		tw.WriteString(l.Contig)
		tw.WriteInt64(int64(l.Length))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// DeriveFile reads the annotation at in and writes the contigs table to out.
func DeriveFile(ctx context.Context, in, out string) (err error) {
	r, c, err := Open(in)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = errors.E(cerr, "close annotation", in)
		}
	}()

	var d Deriver
	if err := Scan(r, func(rec Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.Add(rec.Contig, rec.End)
		return nil
	}); err != nil {
		return errors.E(err, "read annotation", in)
	}
	lengths, err := d.Finish()
	if err != nil {
		if eerr, ok := err.(*EmptyInputError); ok {
			eerr.Source = in
		}
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return errors.E(err, "create contigs table", out)
	}
	if err := WriteContigs(f, lengths); err != nil {
		f.Close() // nolint: errcheck
		return errors.E(err, "write contigs table", out)
	}
	return f.Close()
}

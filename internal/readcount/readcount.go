// Package readcount counts the mapped records of BAM files.
package readcount

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"golang.org/x/sync/errgroup"
)

// Row is one line of the read count table.
type Row struct {
	Path  string
	Count int64
}

// Count returns the number of records in the BAM file at path that do not
// carry the unmapped flag.
func Count(ctx context.Context, path string) (n int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.E(err, "open", path)
	}
	defer f.Close() // nolint: errcheck

	r, err := bam.NewReader(f, 1)
	if err != nil {
		return 0, errors.E(err, "read BAM header", path)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = errors.E(cerr, "close BAM", path)
		}
	}()

	for i := 0; ; i++ {
		if i%(1<<16) == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		rec, err := r.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, errors.E(err, "read BAM record", path)
		}
		if rec.Flags&sam.Unmapped == 0 {
			n++
		}
	}
}

// CountAll counts every BAM in paths, at most parallelism at a time.
// Relative paths are resolved against dir. Rows are returned in the order
// of paths.
func CountAll(ctx context.Context, dir string, paths []string, parallelism int) ([]Row, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	rows := make([]Row, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			full := p
			if !filepath.IsAbs(full) {
				full = filepath.Join(dir, filepath.FromSlash(p))
			}
			n, err := Count(ctx, full)
			if err != nil {
				return err
			}
			rows[i] = Row{Path: p, Count: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteTable writes rows as path<TAB>count lines without a header.
func WriteTable(w io.Writer, rows []Row) error {
	tw := tsv.NewWriter(w)
	for _, r := range rows {
		tw.WriteString(r.Path)
		tw.WriteInt64(r.Count)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// CountFile counts the BAMs in paths and writes the table to out. Both are
// resolved against dir when relative.
func CountFile(ctx context.Context, dir string, paths []string, out string, parallelism int) error {
	rows, err := CountAll(ctx, dir, paths, parallelism)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(dir, filepath.FromSlash(out))
	}
	f, err := os.Create(out)
	if err != nil {
		return errors.E(err, "create read count table", out)
	}
	if err := WriteTable(f, rows); err != nil {
		f.Close() // nolint: errcheck
		return errors.E(err, "write read count table", out)
	}
	return f.Close()
}

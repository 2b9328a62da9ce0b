package elog

import (
	"bufio"
	"io"
	"os"

	"github.com/exardb/exar/exarerr"
)

// IndexedReader wraps a sequential reader with SeekLine, which uses
// the sparse line index to bound a seek to O(1) plus a forward scan
// of at most granularity-1 lines.
//
// An IndexedReader takes a snapshot of both the index and the data
// file length at open time, replaced only by Refresh. It never reads
// past the length in its current snapshot; events appended after
// that point are the Publisher's responsibility to deliver.
type IndexedReader struct {
	log    *Log
	f      *os.File
	br     *bufio.Reader
	idx    *Index
	limit  int64 // snapshot byte length
	pos    uint64
	offset int64
}

// OpenIndexedLineReader opens a Reader attached to a snapshot of the
// current index and the current data file length.
func (l *Log) OpenIndexedLineReader() (*IndexedReader, error) {
	f, err := os.Open(l.dataPath)
	if err != nil {
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	return &IndexedReader{
		log:   l,
		f:     f,
		idx:   l.snap.load(),
		limit: info.Size(),
	}, nil
}

// Limit returns the byte length of the data file observed when this
// reader was opened or last Refresh-ed.
func (r *IndexedReader) Limit() int64 { return r.limit }

// Refresh reloads r's index and data-file-length snapshot without
// closing and reopening the underlying file descriptor, so a caller
// that reuses one IndexedReader across many SeekLine calls (a scanner
// worker sharing it between subscriptions) can observe growth that
// happened after the reader was first opened.
func (r *IndexedReader) Refresh() error {
	info, err := r.f.Stat()
	if err != nil {
		return exarerr.Wrap(exarerr.IoError, err)
	}
	r.idx = r.log.snap.load()
	r.limit = info.Size()
	return nil
}

// SeekLine positions the reader so that the next call to ReadLine
// returns line n. n == 0 and n == 1 are equivalent and both start at
// byte 0. If n is beyond the snapshot length in
// lines, the subsequent ReadLine returns io.EOF.
func (r *IndexedReader) SeekLine(n uint64) error {
	if n == 0 {
		n = 1
	}
	line, offset, ok := r.idx.Lookup(n)
	if !ok {
		line, offset = 1, 0
	}
	if offset > r.limit {
		offset = r.limit
		line = n
	}
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return exarerr.Wrap(exarerr.IoError, err)
	}
	r.offset = offset
	r.br = bufio.NewReaderSize(io.LimitReader(r.f, r.limit-offset), 64*1024)
	r.pos = line - 1
	for r.pos+1 < n {
		if _, _, err := r.ReadLine(); err != nil {
			return err
		}
	}
	return nil
}

// ReadLine returns the next line and its line number, bounded by
// the snapshot length recorded at open time or by the last Refresh.
// It returns io.EOF once
// that snapshot is exhausted, even if the underlying file has since
// grown.
func (r *IndexedReader) ReadLine() (lineNo uint64, line string, err error) {
	if r.br == nil {
		return 0, "", exarerr.New(exarerr.IoError, "SeekLine must be called before ReadLine")
	}
	raw, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return 0, "", io.EOF
		}
		return 0, "", exarerr.Wrap(exarerr.IoError, err)
	}
	r.pos++
	r.offset += int64(len(raw))
	return r.pos, raw[:len(raw)-1], nil
}

// Close releases the reader's file handle.
func (r *IndexedReader) Close() error {
	return r.f.Close()
}

package elog

import (
	"bufio"
	"io"
	"os"

	"github.com/exardb/exar/exarerr"
)

// Reader is an independent, sequential read handle on a Log's data
// file. Any number of Readers may exist concurrently; each owns its
// own file handle and buffer.
type Reader struct {
	f   *os.File
	br  *bufio.Reader
	pos uint64 // current line number, 1-based; 0 before first read
}

// OpenLineReader opens an independent read handle at position 0.
func (l *Log) OpenLineReader() (*Reader, error) {
	f, err := os.Open(l.dataPath)
	if err != nil {
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	return &Reader{f: f, br: bufio.NewReaderSize(f, 64*1024)}, nil
}

// ReadLine returns the next line (without its trailing newline) and
// its 1-based line number. It returns io.EOF when the file has no
// more complete lines; a newline-less tail (a write in progress) is
// treated as EOF rather than returned as a line.
func (r *Reader) ReadLine() (lineNo uint64, line string, err error) {
	raw, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return 0, "", io.EOF
		}
		return 0, "", exarerr.Wrap(exarerr.IoError, err)
	}
	r.pos++
	return r.pos, raw[:len(raw)-1], nil
}

// Close releases the reader's file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

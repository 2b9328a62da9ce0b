package elog

import (
	"bufio"
	"os"
	"sync"

	"github.com/exardb/exar/exarerr"
)

// Writer is the single append-positioned handle a Collection holds
// for its Log. Exactly one writer exists per collection at a time;
// the Collection holds it.
type Writer struct {
	mu          sync.Mutex
	f           *os.File
	bw          *bufio.Writer
	offset      int64
	nextLine    uint64
	granularity uint64
	sinceIndex  uint64
	updates     chan<- indexUpdate
}

// OpenLineWriter opens an append-positioned buffered writer on l's
// data file. Exactly one should be open per collection at a time;
// the caller (Collection) is responsible for that invariant.
func (l *Log) OpenLineWriter() (*Writer, error) {
	f, err := os.OpenFile(l.dataPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	// the index snapshot only records every granularity-th line,
	// so it cannot tell us the exact next line number on its own;
	// counting newlines in the data file once here gives an exact
	// starting point.
	w := &Writer{
		f:           f,
		bw:          bufio.NewWriterSize(f, 64*1024),
		offset:      info.Size(),
		nextLine:    lineCountAt(l.dataPath, info.Size()),
		granularity: l.granularity,
		updates:     l.updates,
	}
	return w, nil
}

// lineCountAt counts newline bytes in the first size bytes of path,
// used once at Writer construction to seed nextLine accurately
// regardless of what the sparse index last recorded.
func lineCountAt(path string, size int64) uint64 {
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()
	buf := make([]byte, 64*1024)
	var remaining = size
	var count uint64
	for remaining > 0 {
		n := len(buf)
		if int64(n) > remaining {
			n = int(remaining)
		}
		read, err := f.Read(buf[:n])
		for i := 0; i < read; i++ {
			if buf[i] == '\n' {
				count++
			}
		}
		remaining -= int64(read)
		if err != nil {
			break
		}
	}
	return count + 1
}

// Append writes line+"\n" to the tail of the log, flushes it to the
// OS, and returns the 1-based line number just written. Every
// granularity lines it emits an index-update record through the
// Log's index-maintenance channel.
//
// Write errors are fatal to the writer and are reported as
// exarerr.IoError; a partial write leaves the file in whatever
// state the OS reports, and the next Open will trigger a rebuild.
func (w *Writer) Append(line string) (id uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lineOffset := w.offset
	lineNo := w.nextLine

	n, err := w.bw.WriteString(line)
	if err == nil {
		var nn int
		nn, err = w.bw.WriteString("\n")
		n += nn
	}
	if err != nil {
		return 0, exarerr.Wrap(exarerr.IoError, err)
	}
	if err := w.bw.Flush(); err != nil {
		return 0, exarerr.Wrap(exarerr.IoError, err)
	}
	if err := durableSync(w.f); err != nil {
		return 0, exarerr.Wrap(exarerr.IoError, err)
	}

	w.offset += int64(n)
	w.nextLine++
	w.sinceIndex++

	if w.granularity > 0 && lineNo%w.granularity == 0 {
		select {
		case w.updates <- indexUpdate{line: lineNo, offset: lineOffset}:
		default:
			// the index-updater is backed up; an update is
			// only an optimization hint, so drop it rather
			// than stall the writer. Lookup falls back to the
			// nearest earlier entry, so a missed entry only
			// lengthens later seeks; it comes back only when the
			// index is rebuilt from the data file.
		}
		w.sinceIndex = 0
	}
	return lineNo, nil
}

// Close flushes and closes the underlying file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return exarerr.Wrap(exarerr.IoError, err)
	}
	if err := w.f.Close(); err != nil {
		return exarerr.Wrap(exarerr.IoError, err)
	}
	return nil
}

package elog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/exardb/exar/exarerr"
)

// entry is one recorded (line number, byte offset) pair.
type entry struct {
	line   uint64
	offset int64
}

// Index is an immutable snapshot of the sparse line-offset index.
// A Log never mutates an Index in place;
// the indexUpdater goroutine builds a new Index and swaps it in via
// copy-on-replace (see snapshot.go), so a scanner holding a snapshot
// never observes a partial update.
type Index struct {
	granularity uint64
	entries     []entry // ordered by line; each line is a multiple of granularity
}

// Lookup returns the largest recorded (line, offset) pair with
// line <= n. If no such entry exists (n is before the first
// recorded line), it returns (0, 0, false) and the caller should
// start scanning from the beginning of the file.
func (idx *Index) Lookup(n uint64) (line uint64, offset int64, ok bool) {
	if idx == nil || len(idx.entries) == 0 {
		return 0, 0, false
	}
	// entries are sorted ascending by line; binary search for the
	// exact match, or the entry just before where n would sit.
	pos, found := slices.BinarySearchFunc(idx.entries, n, func(e entry, n uint64) int {
		switch {
		case e.line < n:
			return -1
		case e.line > n:
			return 1
		default:
			return 0
		}
	})
	if !found {
		pos--
	}
	if pos < 0 {
		return 0, 0, false
	}
	return idx.entries[pos].line, idx.entries[pos].offset, true
}

// Granularity returns the number of lines between two consecutive
// index entries.
func (idx *Index) Granularity() uint64 {
	if idx == nil {
		return 0
	}
	return idx.granularity
}

// lastRecordedOffset returns the byte offset of the highest
// recorded entry, used to detect truncation at open time.
func (idx *Index) lastRecordedOffset() int64 {
	if idx == nil || len(idx.entries) == 0 {
		return 0
	}
	return idx.entries[len(idx.entries)-1].offset
}

func (idx *Index) lastRecordedLine() uint64 {
	if idx == nil || len(idx.entries) == 0 {
		return 0
	}
	return idx.entries[len(idx.entries)-1].line
}

// computeIndex rebuilds an Index by scanning the data file from
// byte 0, recording (line, offset) for every granularity-th line.
// This is the fallback path: when rebuilt from scratch, the index
// is purely a function of the data file
// alone".
func computeIndex(dataPath string, granularity uint64) (*Index, error) {
	f, err := os.Open(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{granularity: granularity}, nil
		}
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	defer f.Close()

	idx := &Index{granularity: granularity}
	r := bufio.NewReaderSize(f, 64*1024)
	var offset int64
	var lineNo uint64
	for {
		lineStart := offset
		chunk, err := r.ReadString('\n')
		offset += int64(len(chunk))
		complete := strings.HasSuffix(chunk, "\n")
		if complete {
			lineNo++
			if lineNo%granularity == 0 {
				idx.entries = append(idx.entries, entry{line: lineNo, offset: lineStart})
			}
		}
		if err != nil {
			if err == io.EOF {
				// a non-empty, newline-less tail is a partial
				// write in progress or a truncated file; it is
				// not a complete line and is excluded from the
				// index.
				break
			}
			return nil, exarerr.Wrap(exarerr.IoError, err)
		}
	}
	return idx, nil
}

// persistIndex writes idx to path atomically: write to a temp file
// in the same directory, fsync, then rename over the destination.
func persistIndex(path string, idx *Index) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return exarerr.Wrap(exarerr.IoError, err)
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, e := range idx.entries {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", e.line, e.offset); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return exarerr.Wrap(exarerr.IoError, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return exarerr.Wrap(exarerr.IoError, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return exarerr.Wrap(exarerr.IoError, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return exarerr.Wrap(exarerr.IoError, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return exarerr.Wrap(exarerr.IoError, err)
	}
	return nil
}

// restoreIndex reads an existing index file from disk. A malformed
// line or an I/O error is reported to the caller, which falls back
// to computeIndex on any restore failure.
func restoreIndex(path string, granularity uint64) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx := &Index{granularity: granularity}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed index line %q", line)
		}
		lineNo, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, err
		}
		offset, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, err
		}
		idx.entries = append(idx.entries, entry{line: lineNo, offset: offset})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return idx, nil
}

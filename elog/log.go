// Package elog implements the per-collection append-only log and its
// sparse line-offset index. A Log owns a data
// file and an index file; it hands out exactly one Writer and any
// number of independent Readers, each with its own file handle.
package elog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/exardb/exar/exarerr"
)

// DefaultGranularity is used when a collection does not specify one.
const DefaultGranularity = 100000

// indexUpdate is one (line, offset) pair flowing from a Writer to
// the Log's index-maintenance sink.
type indexUpdate struct {
	line   uint64
	offset int64
}

// Log owns the data+index file pair for one collection.
type Log struct {
	name        string
	dataPath    string
	indexPath   string
	granularity uint64
	logf        func(string, ...interface{})

	snap    *indexSlot
	updates chan indexUpdate
	done    chan struct{}
}

// Open opens or creates the data and index files for a collection
// named name under directory. If the index is missing, unreadable,
// or claims an offset beyond the current data file length
// (truncation), it is rebuilt by scanning the data file.
func Open(name, directory string, granularity uint64, logf func(string, ...interface{})) (*Log, error) {
	if granularity == 0 {
		granularity = DefaultGranularity
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	dataPath := filepath.Join(directory, name+".log")
	indexPath := filepath.Join(directory, name+".index")

	// touch the data file into existence so a brand new
	// collection has something for readers to open.
	f, err := os.OpenFile(dataPath, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	f.Close()

	idx, rebuilt, err := loadOrRebuildIndex(dataPath, indexPath, granularity, logf)
	if err != nil {
		return nil, err
	}
	if rebuilt {
		if err := persistIndex(indexPath, idx); err != nil {
			// a failure to persist the rebuilt index is not
			// fatal to opening: the in-memory snapshot is
			// still a function of the data file and will be
			// rewritten wholesale on the next rebuild.
			logf("elog: open %s: failed to persist rebuilt index: %s", name, err)
		}
	}

	l := &Log{
		name:        name,
		dataPath:    dataPath,
		indexPath:   indexPath,
		granularity: granularity,
		logf:        logf,
		snap:        newIndexSlot(idx),
		updates:     make(chan indexUpdate, 64),
		done:        make(chan struct{}),
	}
	go l.indexUpdater()
	return l, nil
}

// loadOrRebuildIndex first tries to restore the persisted index,
// falling back to a full rebuild on any failure or on
// detected truncation.
func loadOrRebuildIndex(dataPath, indexPath string, granularity uint64, logf func(string, ...interface{})) (idx *Index, rebuilt bool, err error) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	info, statErr := os.Stat(dataPath)
	var dataSize int64
	if statErr == nil {
		dataSize = info.Size()
	}

	idx, err = restoreIndex(indexPath, granularity)
	if err != nil {
		if !os.IsNotExist(err) {
			logf("elog: restore index %s failed, rebuilding: %s", indexPath, err)
		}
		idx, err = computeIndex(dataPath, granularity)
		if err != nil {
			return nil, false, err
		}
		return idx, true, nil
	}
	if idx.granularity != granularity || idx.lastRecordedOffset() > dataSize {
		logf("elog: index %s stale or truncated, rebuilding", indexPath)
		idx, err = computeIndex(dataPath, granularity)
		if err != nil {
			return nil, false, err
		}
		return idx, true, nil
	}
	return idx, false, nil
}

// Name returns the collection name this Log was opened for.
func (l *Log) Name() string { return l.name }

// Index returns the current index snapshot.
func (l *Log) Index() *Index { return l.snap.load() }

// Remove deletes both the data and index files. It does not stop
// any Writer or Reader already using this Log; callers are expected
// to have already torn down the owning Collection.
func (l *Log) Remove() error {
	close(l.done)
	var firstErr error
	if err := os.Remove(l.dataPath); err != nil && !os.IsNotExist(err) {
		firstErr = exarerr.Wrap(exarerr.IoError, err)
	}
	if err := os.Remove(l.indexPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = exarerr.Wrap(exarerr.IoError, err)
	}
	return firstErr
}

// indexUpdater is a thin background sink: it drains (line, offset)
// pairs emitted by the Writer, appends each to
// the on-disk index file, and publishes a new in-memory Index
// snapshot by copy-and-replace so that no reader ever observes a
// partially updated index.
func (l *Log) indexUpdater() {
	f, err := os.OpenFile(l.indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.logf("elog: %s: index-updater could not open index file: %s", l.name, err)
		f = nil
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()
	for {
		select {
		case u, ok := <-l.updates:
			if !ok {
				return
			}
			if f != nil {
				if _, err := fmt.Fprintf(f, "%d\t%d\n", u.line, u.offset); err != nil {
					l.logf("elog: %s: index-updater write failed: %s", l.name, err)
				}
			}
			cur := l.snap.load()
			next := &Index{granularity: l.granularity}
			if cur != nil {
				next.entries = append(next.entries, cur.entries...)
			}
			next.entries = append(next.entries, entry{line: u.line, offset: u.offset})
			l.snap.store(next)
		case <-l.done:
			return
		}
	}
}

// Package event defines the Event record appended to a collection's
// log, its tab-separated line encoding, and the validation rules
// every event must pass before it is appended.
package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/exardb/exar/exarerr"
)

// Event is one record in a collection's log. ID and Timestamp are
// assigned by the writer and are immutable once assigned.
type Event struct {
	// ID is the 1-based, monotonically increasing, dense line
	// number assigned by the Log writer.
	ID uint64
	// Timestamp is milliseconds since the Unix epoch. A caller
	// that publishes with Timestamp == 0 gets "now" assigned.
	Timestamp uint64
	// Tags is a non-empty set of non-empty, whitespace-free
	// strings.
	Tags []string
	// Data is the arbitrary payload. It must not contain a tab
	// or a newline.
	Data []byte
}

// Now returns the current time as the millisecond-epoch timestamp
// used throughout exar.
func Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Validate enforces the invariants that hold regardless of whether
// an ID has been assigned yet: a non-empty tag
// set, whitespace-free tags, and a payload free of embedded tabs and
// newlines. It does not check ID or Timestamp, since those are
// assigned by the writer.
func (e *Event) Validate() error {
	if len(e.Tags) == 0 {
		return exarerr.New(exarerr.ValidationError, "event must have at least one tag")
	}
	for _, tag := range e.Tags {
		if tag == "" {
			return exarerr.New(exarerr.ValidationError, "tag must not be empty")
		}
		if strings.ContainsAny(tag, " \t\n\r") {
			return exarerr.Newf(exarerr.ValidationError, "tag %q contains whitespace", tag)
		}
	}
	if bytesContainAny(e.Data, '\t', '\n') {
		return exarerr.New(exarerr.ValidationError, "event data must not contain a tab or newline")
	}
	return nil
}

func bytesContainAny(b []byte, chars ...byte) bool {
	for _, c := range b {
		for _, want := range chars {
			if c == want {
				return true
			}
		}
	}
	return false
}

// HasTag reports whether e is tagged with tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EncodeLine renders e as the tab-separated log line format
// "<id>\t<ts>\t<space-joined-tags>\t<data>". The
// trailing newline is NOT included; callers that append to a file
// add it themselves so that Writer.Append can report the exact byte
// length written.
func (e *Event) EncodeLine() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(e.ID, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatUint(e.Timestamp, 10))
	b.WriteByte('\t')
	b.WriteString(strings.Join(e.Tags, " "))
	b.WriteByte('\t')
	b.Write(e.Data)
	return b.String()
}

// DecodeLine parses a single log line (without its trailing
// newline) into an Event. A malformed line surfaces as a
// exarerr.ParseError.
func DecodeLine(line string) (*Event, error) {
	fields := strings.SplitN(line, "\t", 4)
	if len(fields) != 4 {
		return nil, exarerr.Newf(exarerr.ParseError, "expected 4 tab-separated fields, got %d", len(fields))
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, exarerr.Newf(exarerr.ParseError, "invalid id %q: %s", fields[0], err)
	}
	ts, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, exarerr.Newf(exarerr.ParseError, "invalid timestamp %q: %s", fields[1], err)
	}
	var tags []string
	if fields[2] != "" {
		tags = strings.Fields(fields[2])
	}
	if len(tags) == 0 {
		return nil, exarerr.New(exarerr.ParseError, "log line has no tags")
	}
	return &Event{
		ID:        id,
		Timestamp: ts,
		Tags:      tags,
		Data:      []byte(fields[3]),
	}, nil
}

// String implements fmt.Stringer for logging.
func (e *Event) String() string {
	return fmt.Sprintf("Event{id=%d ts=%d tags=%v}", e.ID, e.Timestamp, e.Tags)
}

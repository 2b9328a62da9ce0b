// Package wireproto encodes and decodes the newline-terminated,
// tab-separated ASCII frames exchanged over a connection. It performs
// no I/O; it only knows how to turn one line into a typed Command or
// response and back.
package wireproto

import (
	"strconv"
	"strings"

	"github.com/exardb/exar/event"
	"github.com/exardb/exar/exarerr"
)

// CommandName identifies which command a client line carries.
type CommandName string

const (
	Authenticate CommandName = "Authenticate"
	Select       CommandName = "Select"
	Publish      CommandName = "Publish"
	Subscribe    CommandName = "Subscribe"
	Unsubscribe  CommandName = "Unsubscribe"
	Drop         CommandName = "Drop"
)

// Command is one parsed client request line.
type Command struct {
	Name CommandName

	// Authenticate
	Username string
	Password string

	// Select, Drop
	Collection string

	// Publish
	Tags      []string
	Timestamp uint64
	Data      []byte

	// Subscribe
	LiveStream bool
	Offset     uint64
	Limit      uint64
	Tag        string
	HasTag     bool
}

// ParseCommand decodes one client request line, without its trailing
// newline.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Split(line, "\t")
	if len(fields) == 0 || fields[0] == "" {
		return nil, exarerr.New(exarerr.ParseError, "empty command line")
	}
	name := CommandName(fields[0])
	args := fields[1:]

	switch name {
	case Authenticate:
		if len(args) != 2 {
			return nil, argError(name, 2, len(args))
		}
		return &Command{Name: name, Username: args[0], Password: args[1]}, nil
	case Select:
		if len(args) != 1 {
			return nil, argError(name, 1, len(args))
		}
		return &Command{Name: name, Collection: args[0]}, nil
	case Publish:
		if len(args) != 3 {
			return nil, argError(name, 3, len(args))
		}
		ts, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return nil, exarerr.Newf(exarerr.ParseError, "invalid timestamp %q: %s", args[1], err)
		}
		var tags []string
		if args[0] != "" {
			tags = strings.Fields(args[0])
		}
		return &Command{Name: name, Tags: tags, Timestamp: ts, Data: []byte(args[2])}, nil
	case Subscribe:
		if len(args) != 3 && len(args) != 4 {
			return nil, exarerr.Newf(exarerr.ParseError, "Subscribe expects 3 or 4 fields, got %d", len(args))
		}
		live, err := strconv.ParseBool(args[0])
		if err != nil {
			return nil, exarerr.Newf(exarerr.ParseError, "invalid live_stream %q: %s", args[0], err)
		}
		offset, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return nil, exarerr.Newf(exarerr.ParseError, "invalid offset %q: %s", args[1], err)
		}
		limit, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return nil, exarerr.Newf(exarerr.ParseError, "invalid limit %q: %s", args[2], err)
		}
		cmd := &Command{Name: name, LiveStream: live, Offset: offset, Limit: limit}
		if len(args) == 4 {
			cmd.Tag = args[3]
			cmd.HasTag = true
		}
		return cmd, nil
	case Unsubscribe:
		return &Command{Name: name}, nil
	case Drop:
		if len(args) != 1 {
			return nil, argError(name, 1, len(args))
		}
		return &Command{Name: name, Collection: args[0]}, nil
	default:
		return nil, exarerr.Newf(exarerr.ParseError, "unknown command %q", name)
	}
}

func argError(name CommandName, want, got int) error {
	return exarerr.Newf(exarerr.ParseError, "%s expects %d fields, got %d", name, want, got)
}

// EncodeAuthenticated renders the Authenticate success response.
func EncodeAuthenticated() string { return "Authenticated" }

// EncodeSelected renders the Select success response.
func EncodeSelected() string { return "Selected" }

// EncodePublished renders the Publish success response.
func EncodePublished(id uint64) string {
	return "Published\t" + strconv.FormatUint(id, 10)
}

// EncodeSubscribed renders the Subscribe acknowledgement that
// precedes any Event lines.
func EncodeSubscribed() string { return "Subscribed" }

// EncodeEvent renders one delivered event as an Event line.
func EncodeEvent(ev *event.Event) string {
	var b strings.Builder
	b.WriteString("Event\t")
	b.WriteString(strconv.FormatUint(ev.ID, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatUint(ev.Timestamp, 10))
	b.WriteByte('\t')
	b.WriteString(strings.Join(ev.Tags, " "))
	b.WriteByte('\t')
	b.Write(ev.Data)
	return b.String()
}

// EncodeEndOfEventStream renders the terminal line of a subscription
// that closed cleanly.
func EncodeEndOfEventStream() string { return "EndOfEventStream" }

// EncodeDropped renders the Drop success response.
func EncodeDropped() string { return "Dropped" }

// EncodeError renders an error frame:
// "Error\t<kind>[\t<subkind>]\t<detail>".
func EncodeError(err error) string {
	var b strings.Builder
	b.WriteString("Error\t")
	if ee, ok := err.(*exarerr.Error); ok {
		b.WriteString(string(ee.Kind))
		if ee.Sub != "" {
			b.WriteByte('\t')
			b.WriteString(ee.Sub)
		}
		b.WriteByte('\t')
		b.WriteString(ee.Detail)
		return b.String()
	}
	b.WriteString("IoError\t")
	b.WriteString(err.Error())
	return b.String()
}

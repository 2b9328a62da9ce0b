package wireproto

import (
	"errors"
	"testing"

	"github.com/exardb/exar/event"
	"github.com/exardb/exar/exarerr"
)

func TestParseCommandAuthenticate(t *testing.T) {
	cmd, err := ParseCommand("Authenticate\talice\ts3cret")
	if err != nil {
		t.Fatalf("ParseCommand: %s", err)
	}
	if cmd.Name != Authenticate || cmd.Username != "alice" || cmd.Password != "s3cret" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseCommandSelect(t *testing.T) {
	cmd, err := ParseCommand("Select\torders")
	if err != nil {
		t.Fatalf("ParseCommand: %s", err)
	}
	if cmd.Name != Select || cmd.Collection != "orders" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseCommandPublish(t *testing.T) {
	cmd, err := ParseCommand("Publish\ta b\t1700000000000\thello world")
	if err != nil {
		t.Fatalf("ParseCommand: %s", err)
	}
	if len(cmd.Tags) != 2 || cmd.Tags[0] != "a" || cmd.Tags[1] != "b" {
		t.Fatalf("unexpected tags: %v", cmd.Tags)
	}
	if cmd.Timestamp != 1700000000000 {
		t.Fatalf("Timestamp = %d, want 1700000000000", cmd.Timestamp)
	}
	if string(cmd.Data) != "hello world" {
		t.Fatalf("Data = %q", cmd.Data)
	}
}

func TestParseCommandSubscribeWithAndWithoutTag(t *testing.T) {
	cmd, err := ParseCommand("Subscribe\ttrue\t5\t0")
	if err != nil {
		t.Fatalf("ParseCommand: %s", err)
	}
	if !cmd.LiveStream || cmd.Offset != 5 || cmd.Limit != 0 || cmd.HasTag {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	cmd2, err := ParseCommand("Subscribe\tfalse\t0\t10\torders")
	if err != nil {
		t.Fatalf("ParseCommand: %s", err)
	}
	if cmd2.LiveStream || !cmd2.HasTag || cmd2.Tag != "orders" || cmd2.Limit != 10 {
		t.Fatalf("unexpected command: %+v", cmd2)
	}
}

func TestParseCommandUnsubscribeAndDrop(t *testing.T) {
	cmd, err := ParseCommand("Unsubscribe")
	if err != nil || cmd.Name != Unsubscribe {
		t.Fatalf("ParseCommand(Unsubscribe): cmd=%+v err=%v", cmd, err)
	}
	cmd2, err := ParseCommand("Drop\torders")
	if err != nil || cmd2.Name != Drop || cmd2.Collection != "orders" {
		t.Fatalf("ParseCommand(Drop): cmd=%+v err=%v", cmd2, err)
	}
}

func TestParseCommandMalformed(t *testing.T) {
	cases := []string{
		"",
		"Authenticate\talice",
		"Select",
		"Publish\ta\tnotanumber\tdata",
		"Subscribe\tnotabool\t0\t0",
		"Subscribe\ttrue\tnotanumber\t0",
		"Bogus\tfoo",
	}
	for _, line := range cases {
		_, err := ParseCommand(line)
		if err == nil {
			t.Errorf("ParseCommand(%q): expected an error", line)
			continue
		}
		var ee *exarerr.Error
		if !errors.As(err, &ee) || ee.Kind != exarerr.ParseError {
			t.Errorf("ParseCommand(%q): expected a ParseError, got %v", line, err)
		}
	}
}

func TestEncodeEventRoundTrips(t *testing.T) {
	ev := &event.Event{ID: 7, Timestamp: 42, Tags: []string{"a", "b"}, Data: []byte("payload")}
	line := EncodeEvent(ev)
	want := "Event\t7\t42\ta b\tpayload"
	if line != want {
		t.Fatalf("EncodeEvent = %q, want %q", line, want)
	}
}

func TestEncodeSimpleResponses(t *testing.T) {
	cases := map[string]func() string{
		"Authenticated":    EncodeAuthenticated,
		"Selected":         EncodeSelected,
		"Subscribed":       EncodeSubscribed,
		"EndOfEventStream": EncodeEndOfEventStream,
		"Dropped":          EncodeDropped,
	}
	for want, f := range cases {
		if got := f(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if got := EncodePublished(99); got != "Published\t99" {
		t.Errorf("EncodePublished(99) = %q", got)
	}
}

func TestEncodeErrorFromExarerr(t *testing.T) {
	err := exarerr.New(exarerr.ValidationError, "bad tag")
	got := EncodeError(err)
	want := "Error\tValidationError\tbad tag"
	if got != want {
		t.Fatalf("EncodeError = %q, want %q", got, want)
	}
}

func TestEncodeErrorFromExarerrWithSub(t *testing.T) {
	err := &exarerr.Error{Kind: exarerr.ParseError, Sub: "line 12", Detail: "bad field count"}
	got := EncodeError(err)
	want := "Error\tParseError\tline 12\tbad field count"
	if got != want {
		t.Fatalf("EncodeError = %q, want %q", got, want)
	}
}

func TestEncodeErrorFromPlainError(t *testing.T) {
	got := EncodeError(errors.New("disk exploded"))
	want := "Error\tIoError\tdisk exploded"
	if got != want {
		t.Fatalf("EncodeError = %q, want %q", got, want)
	}
}

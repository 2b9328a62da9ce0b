package event

import (
	"errors"
	"testing"

	"github.com/exardb/exar/exarerr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := &Event{ID: 7, Timestamp: 1234, Tags: []string{"a", "b"}, Data: []byte("hello world")}
	line := e.EncodeLine()
	got, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("DecodeLine: %s", err)
	}
	if got.ID != e.ID || got.Timestamp != e.Timestamp {
		t.Fatalf("id/timestamp mismatch: got %+v want %+v", got, e)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" || got.Tags[1] != "b" {
		t.Fatalf("tags mismatch: %v", got.Tags)
	}
	if string(got.Data) != "hello world" {
		t.Fatalf("data mismatch: %q", got.Data)
	}
}

func TestDecodeLineMalformed(t *testing.T) {
	cases := []string{
		"",
		"1\t2\t3",
		"notanumber\t0\ta\tdata",
		"1\tnotanumber\ta\tdata",
		"1\t0\t\tdata",
	}
	for _, line := range cases {
		if _, err := DecodeLine(line); err == nil {
			t.Errorf("DecodeLine(%q): expected error, got nil", line)
		} else {
			var ee *exarerr.Error
			if !errors.As(err, &ee) || ee.Kind != exarerr.ParseError {
				t.Errorf("DecodeLine(%q): expected ParseError, got %v", line, err)
			}
		}
	}
}

func TestValidate(t *testing.T) {
	t.Run("no tags", func(t *testing.T) {
		e := &Event{Tags: nil, Data: []byte("x")}
		if err := e.Validate(); err == nil {
			t.Fatal("expected error for empty tag set")
		}
	})
	t.Run("whitespace tag", func(t *testing.T) {
		e := &Event{Tags: []string{"a b"}, Data: []byte("x")}
		if err := e.Validate(); err == nil {
			t.Fatal("expected error for whitespace in tag")
		}
	})
	t.Run("tab in data", func(t *testing.T) {
		e := &Event{Tags: []string{"a"}, Data: []byte("x\ty")}
		if err := e.Validate(); err == nil {
			t.Fatal("expected error for tab in data")
		}
	})
	t.Run("newline in data", func(t *testing.T) {
		e := &Event{Tags: []string{"a"}, Data: []byte("x\ny")}
		if err := e.Validate(); err == nil {
			t.Fatal("expected error for newline in data")
		}
	})
	t.Run("valid", func(t *testing.T) {
		e := &Event{Tags: []string{"a"}, Data: []byte("x")}
		if err := e.Validate(); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	})
}

func TestHasTag(t *testing.T) {
	e := &Event{Tags: []string{"a", "b"}}
	if !e.HasTag("a") {
		t.Fatal("expected HasTag(a) to be true")
	}
	if e.HasTag("c") {
		t.Fatal("expected HasTag(c) to be false")
	}
}

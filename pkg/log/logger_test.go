package log

import (
	"errors"
	"testing"
)

func TestWith_PrependsFields(t *testing.T) {
	mem := NewMemoryLogger()
	l := With(mem, String("component", "queue"))
	l = With(l, Int("capacity", 8))

	l.Warn("dropped", Err(errors.New("full")))

	entries := mem.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != "warn" || e.Msg != "dropped" {
		t.Fatalf("entry = %+v", e)
	}
	if len(e.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(e.Fields))
	}
	if e.Fields[0].Key != "component" || e.Fields[1].Key != "capacity" || e.Fields[2].Key != "error" {
		t.Errorf("field order = %v", e.Fields)
	}
}

func TestWith_NoFieldsReturnsSameLogger(t *testing.T) {
	mem := NewMemoryLogger()
	if With(mem) != Logger(mem) {
		t.Error("With without fields should return the logger unchanged")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "info", false},
		{"debug", "debug", false},
		{"warn", "warn", false},
		{"loud", "", true},
	}
	for _, tt := range tests {
		lvl, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && lvl.String() != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, lvl, tt.want)
		}
	}
}

func TestMemoryLogger_Count(t *testing.T) {
	mem := NewMemoryLogger()
	mem.Info("a")
	mem.Info("a")
	mem.Error("b")
	if got := mem.Count("a"); got != 2 {
		t.Errorf("Count(a) = %d, want 2", got)
	}
}

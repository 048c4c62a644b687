package id_test

import (
	"testing"

	"github.com/janhicken/schedoscope/id"
)

func TestNewWorkerID_HasWorkerPrefix(t *testing.T) {
	w := id.NewWorkerID()
	if w.Prefix() != id.PrefixWorker {
		t.Fatalf("Prefix() = %q, want %q", w.Prefix(), id.PrefixWorker)
	}
	if w.IsNil() {
		t.Fatal("NewWorkerID() returned a nil ID")
	}
}

func TestParseWorkerID_RejectsWrongPrefix(t *testing.T) {
	run := id.NewRunID()
	if _, err := id.ParseWorkerID(run.String()); err == nil {
		t.Fatal("ParseWorkerID accepted a run ID")
	}
}

func TestParseWorkerID_RoundTrip(t *testing.T) {
	w := id.NewWorkerID()
	parsed, err := id.ParseWorkerID(w.String())
	if err != nil {
		t.Fatalf("ParseWorkerID: %v", err)
	}
	if parsed.String() != w.String() {
		t.Fatalf("round trip mismatch: %q != %q", parsed.String(), w.String())
	}
}

func TestID_MarshalUnmarshalText(t *testing.T) {
	w := id.NewWorkerID()
	data, err := w.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got id.ID
	if err := got.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got.String() != w.String() {
		t.Fatalf("got %q, want %q", got.String(), w.String())
	}
}

func TestNil_IsNil(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("id.Nil.IsNil() = false")
	}
	if id.Nil.String() != "" {
		t.Fatalf("id.Nil.String() = %q, want empty", id.Nil.String())
	}
}

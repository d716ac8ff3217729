package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestDiff_IdenticalSnapshotsProduceNoChanges(t *testing.T) {
	t.Parallel()

	snapshots := []Record{
		{},
		{"id": uuid.New(), "name": "Acme", "budget": 1200.5, "progress": int64(40)},
		{"meta": map[string]any{"a": []any{1, "x"}}, "deleted_at": nil},
		{"ch": make(chan int)},
	}
	for i, x := range snapshots {
		if got := Diff(x, x); len(got) != 0 {
			t.Errorf("snapshot %d: Diff(x, x) = %v, want empty", i, got)
		}
	}
}

func TestDiff_NilIsEmptySlice(t *testing.T) {
	t.Parallel()

	if got := Diff(nil, nil); got == nil {
		t.Fatal("Diff should return a non-nil slice")
	}
}

func TestDiff_UnionOfKeysSorted(t *testing.T) {
	t.Parallel()

	before := Record{"stage": "draft", "budget": nil, "removed": "x", "same": int64(1)}
	after := Record{"stage": "planning", "budget": 100.0, "added": true, "same": int64(1)}

	got := Diff(before, after)

	want := []string{"added", "budget", "removed", "stage"}
	if len(got) != len(want) {
		t.Fatalf("Diff returned %d changes, want %d: %v", len(got), len(want), got)
	}
	for i, field := range want {
		if got[i].Field != field {
			t.Errorf("change %d: field = %q, want %q", i, got[i].Field, field)
		}
	}
	if got[3].From != "draft" || got[3].To != "planning" {
		t.Errorf("stage change = %+v", got[3])
	}
}

func TestDiff_MissingKeyDiffersFromNull(t *testing.T) {
	t.Parallel()

	got := Diff(Record{}, Record{"deadline": nil})
	if len(got) != 1 || got[0].Field != "deadline" {
		t.Fatalf("expected deadline change, got %v", got)
	}
}

func TestDiff_ComparesSerializedValues(t *testing.T) {
	t.Parallel()

	// int64 and float64 serialize identically when integral.
	got := Diff(Record{"progress": int64(50)}, Record{"progress": 50.0})
	if len(got) != 0 {
		t.Fatalf("expected no change, got %v", got)
	}
}

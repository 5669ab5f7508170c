package workflow

import "testing"

func TestParseSelectionAll(t *testing.T) {
	positions, err := ParseSelection("all", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 2, 3, 4}
	if len(positions) != len(want) {
		t.Fatalf("expected %v, got %v", want, positions)
	}
	for i, p := range positions {
		if p != want[i] {
			t.Fatalf("expected %v, got %v", want, positions)
		}
	}
}

func TestParseSelectionSingle(t *testing.T) {
	positions, err := ParseSelection("5", 10)
	if err != nil || len(positions) != 1 || positions[0] != 5 {
		t.Fatalf("expected [5], got %v (%v)", positions, err)
	}
}

func TestParseSelectionRange(t *testing.T) {
	positions, err := ParseSelection("3-5", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{3, 4, 5}
	if len(positions) != len(want) {
		t.Fatalf("expected %v, got %v", want, positions)
	}
	for i, p := range positions {
		if p != want[i] {
			t.Fatalf("expected %v, got %v", want, positions)
		}
	}
}

func TestParseSelectionMixedList(t *testing.T) {
	positions, err := ParseSelection("1-3,10,15-17", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 2, 3, 10, 15, 16, 17}
	if len(positions) != len(want) {
		t.Fatalf("expected %v, got %v", want, positions)
	}
	for i, p := range positions {
		if p != want[i] {
			t.Fatalf("expected %v, got %v", want, positions)
		}
	}
}

func TestParseSelectionInvalid(t *testing.T) {
	cases := []string{"", "abc", "5-", "5-2"}
	for _, c := range cases {
		if _, err := ParseSelection(c, 10); err == nil {
			t.Fatalf("expected error for selection %q", c)
		}
	}
}

package domtoolkit

import "testing"

func TestDiffSnapshotsDetectsAddedRemovedModified(t *testing.T) {
	prior := &snapshotEntry{
		byID: map[string]Element{
			"a": {ID: "a", Text: "hello", Visible: true},
			"b": {ID: "b", Text: "stays", Visible: true},
		},
	}
	current := &snapshotEntry{
		byID: map[string]Element{
			"b": {ID: "b", Text: "stays", Visible: true},
			"c": {ID: "c", Text: "new", Visible: true},
			"a": {ID: "a", Text: "hello changed", Visible: true},
		},
	}
	diff := diffSnapshots(prior, current)
	if len(diff.Added) != 1 || diff.Added[0].ID != "c" {
		t.Fatalf("expected c added, got %+v", diff.Added)
	}
	if len(diff.Modified) != 1 || diff.Modified[0].ID != "a" {
		t.Fatalf("expected a modified, got %+v", diff.Modified)
	}
	if len(diff.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %+v", diff.Removed)
	}
}

func TestDiffSnapshotsDetectsRemoved(t *testing.T) {
	prior := &snapshotEntry{
		byID: map[string]Element{"a": {ID: "a"}, "b": {ID: "b"}},
	}
	current := &snapshotEntry{
		byID: map[string]Element{"a": {ID: "a"}},
	}
	diff := diffSnapshots(prior, current)
	if len(diff.Removed) != 1 || diff.Removed[0].ID != "b" {
		t.Fatalf("expected b removed, got %+v", diff.Removed)
	}
}

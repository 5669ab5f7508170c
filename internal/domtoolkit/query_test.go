package domtoolkit

import "testing"

func TestMatchesQuery(t *testing.T) {
	el := Element{
		Tag:  "button",
		Role: "button",
		Text: "Submit order",
		Attrs: map[string]string{
			"data-testid": "submit-btn",
		},
	}
	cases := []struct {
		name string
		q    SearchQuery
		want bool
	}{
		{"tag match", SearchQuery{Tag: "button"}, true},
		{"tag mismatch", SearchQuery{Tag: "a"}, false},
		{"text substring", SearchQuery{Text: "submit"}, true},
		{"text miss", SearchQuery{Text: "cancel"}, false},
		{"attr match", SearchQuery{Attributes: map[string]string{"data-testid": "submit-btn"}}, true},
		{"attr mismatch", SearchQuery{Attributes: map[string]string{"data-testid": "other"}}, false},
		{"role match", SearchQuery{Role: "button"}, true},
	}
	for _, c := range cases {
		if got := matchesQuery(el, c.q); got != c.want {
			t.Errorf("%s: matchesQuery() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestRankSelectorCandidatesPrefersTestID(t *testing.T) {
	el := Element{
		Tag: "button",
		Attrs: map[string]string{
			"data-testid": "submit-btn",
			"id":          "react-:r4:",
			"class":       "btn btn-primary",
		},
	}
	candidates := rankSelectorCandidates(el)
	if len(candidates) == 0 {
		t.Fatalf("expected at least one candidate")
	}
	if candidates[0].Strategy != "data-testid" {
		t.Fatalf("expected data-testid strategy first, got %s", candidates[0].Strategy)
	}
	for _, c := range candidates {
		if c.Strategy == "stable-id" {
			t.Fatalf("generated react id should not be proposed as a stable-id candidate: %s", c.Selector)
		}
	}
}

func TestRankSelectorCandidatesAcceptsPlainID(t *testing.T) {
	el := Element{Tag: "input", Attrs: map[string]string{"id": "email-field"}}
	candidates := rankSelectorCandidates(el)
	found := false
	for _, c := range candidates {
		if c.Strategy == "stable-id" && c.Selector == "#email-field" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a stable-id candidate for plain id, got %+v", candidates)
	}
}

func TestIsInteractiveElement(t *testing.T) {
	interactive := Element{Tag: "button", Visible: true, Attrs: map[string]string{"__hit_testable": "true"}}
	if !isInteractiveElement(interactive) {
		t.Errorf("expected button to be interactive")
	}
	hidden := Element{Tag: "button", Visible: false, Attrs: map[string]string{"__hit_testable": "true"}}
	if isInteractiveElement(hidden) {
		t.Errorf("expected hidden button to not be interactive")
	}
	plainDiv := Element{Tag: "div", Visible: true, Attrs: map[string]string{"__hit_testable": "true"}}
	if isInteractiveElement(plainDiv) {
		t.Errorf("expected plain div with no signals to not be interactive")
	}
}

func TestChildrenAndSiblings(t *testing.T) {
	entry := &snapshotEntry{
		elements: []Element{
			{ID: "root", Ancestry: nil},
			{ID: "a", Ancestry: []string{"root"}},
			{ID: "b", Ancestry: []string{"root"}},
			{ID: "c", Ancestry: []string{"root", "a"}},
		},
	}
	children := childrenOf(entry, "root")
	if len(children) != 2 {
		t.Fatalf("expected 2 children of root, got %d", len(children))
	}
	siblings := siblingsOf(entry, Element{ID: "a", Ancestry: []string{"root"}})
	if len(siblings) != 1 || siblings[0].ID != "b" {
		t.Fatalf("expected sibling b, got %+v", siblings)
	}
}

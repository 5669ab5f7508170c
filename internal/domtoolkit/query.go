package domtoolkit

import (
	"strconv"
	"strings"
)

// elementPredicate narrows a snapshot's flat element list to one of
// Overview's three lists.
type elementPredicate func(Element) bool

func isOutlineElement(el Element) bool {
	switch el.Tag {
	case "main", "nav", "header", "footer", "aside", "section", "article", "form", "table":
		return true
	default:
		return el.Role == "main" || el.Role == "navigation" || el.Role == "form"
	}
}

func isInteractiveElement(el Element) bool {
	sig := evaluateActionability(el)
	return sig.Actionable
}

func isHeadingElement(el Element) bool {
	switch el.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	default:
		return el.Role == "heading"
	}
}

func filterElements(elements []Element, opts OverviewOptions, pred elementPredicate) []Element {
	out := make([]Element, 0, 8)
	for _, el := range elements {
		if opts.Visible && !el.Visible {
			continue
		}
		if !pred(el) {
			continue
		}
		out = append(out, el)
	}
	return out
}

func capElements(elements []Element, max int) []Element {
	if max <= 0 || len(elements) <= max {
		return elements
	}
	return elements[:max]
}

// matchesQuery reports whether el satisfies every non-empty Tag, Role,
// Text, and Attributes field of q; q.Selector is not checked.
func matchesQuery(el Element, q SearchQuery) bool {
	if q.Tag != "" && !strings.EqualFold(el.Tag, q.Tag) {
		return false
	}
	if q.Role != "" && !strings.EqualFold(el.Role, q.Role) {
		return false
	}
	if q.Text != "" && !strings.Contains(strings.ToLower(el.Text), strings.ToLower(q.Text)) {
		return false
	}
	for k, v := range q.Attributes {
		if el.Attrs[k] != v {
			return false
		}
	}
	return true
}

func resolveAncestry(entry *snapshotEntry, el Element) []Element {
	out := make([]Element, 0, len(el.Ancestry))
	for _, id := range el.Ancestry {
		if ancestor, ok := entry.byID[id]; ok {
			out = append(out, ancestor)
		}
	}
	return out
}

func childrenOf(entry *snapshotEntry, parentID string) []Element {
	out := make([]Element, 0, 4)
	for _, el := range entry.elements {
		if len(el.Ancestry) > 0 && el.Ancestry[len(el.Ancestry)-1] == parentID {
			out = append(out, el)
		}
	}
	return out
}

func siblingsOf(entry *snapshotEntry, el Element) []Element {
	if len(el.Ancestry) == 0 {
		return nil
	}
	parentID := el.Ancestry[len(el.Ancestry)-1]
	out := make([]Element, 0, 4)
	for _, sib := range childrenOf(entry, parentID) {
		if sib.ID != el.ID {
			out = append(out, sib)
		}
	}
	return out
}

// rankSelectorCandidates proposes CSS selectors for an element, most
// stable first: test-id attributes, then a stable DOM id, then
// role+attribute combinations, then a class+tag fallback.
func rankSelectorCandidates(el Element) []CandidateSelector {
	candidates := make([]CandidateSelector, 0, 4)
	for _, attr := range []string{"data-testid", "data-test", "data-qa"} {
		if v, ok := el.Attrs[attr]; ok && v != "" {
			candidates = append(candidates, CandidateSelector{
				Selector: el.Tag + "[" + attr + "=" + strconv.Quote(v) + "]",
				Strategy: "data-testid",
				Score:    100,
			})
		}
	}
	if id, ok := el.Attrs["id"]; ok && id != "" && !looksGenerated(id) {
		candidates = append(candidates, CandidateSelector{
			Selector: "#" + id,
			Strategy: "stable-id",
			Score:    90,
		})
	}
	if el.Role != "" {
		candidates = append(candidates, CandidateSelector{
			Selector: el.Tag + "[role=" + strconv.Quote(el.Role) + "]",
			Strategy: "role-attrs",
			Score:    60,
		})
	}
	if class, ok := el.Attrs["class"]; ok && class != "" {
		first := strings.Fields(class)
		if len(first) > 0 {
			candidates = append(candidates, CandidateSelector{
				Selector: el.Tag + "." + first[0],
				Strategy: "class-tag",
				Score:    40,
			})
		}
	}
	if el.Text != "" {
		candidates = append(candidates, CandidateSelector{
			Selector: el.Tag + ":has-text(" + strconv.Quote(truncate(el.Text, 40)) + ")",
			Strategy: "text",
			Score:    20,
		})
	}
	return candidates
}

// looksGenerated flags ids that frameworks mint per-render (react-id
// style hashes, uuid-looking strings) which make unstable selectors.
func looksGenerated(id string) bool {
	if len(id) >= 16 {
		hexLike := true
		for _, r := range id {
			if !strings.ContainsRune("0123456789abcdefABCDEF-", r) {
				hexLike = false
				break
			}
		}
		if hexLike {
			return true
		}
	}
	return strings.Contains(id, ":r") // react useId-style ":r0:" ids
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package domtoolkit

// interactiveTags are tags that are actionable by virtue of their tag
// name alone, regardless of ARIA role.
var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true,
	"textarea": true, "option": true, "label": true, "summary": true,
}

// interactiveRoles are ARIA roles that signal actionability on an
// otherwise generic element (div role="button" and friends).
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "checkbox": true, "radio": true,
	"menuitem": true, "tab": true, "switch": true, "option": true,
	"textbox": true, "combobox": true, "slider": true,
}

// frameworkIndicatorAttrs are attribute names component frameworks
// attach to elements they wire up event handlers on, even when the
// element itself carries no native interactive semantics.
var frameworkIndicatorAttrs = []string{
	"data-testid", "data-test", "ng-click", "v-on:click", "@click",
	"onclick", "data-action", "x-on:click",
}

// evaluateActionability scores an element against the signals the
// probe script captured for it (visibility, hit-testability, tag/role,
// tabindex, click-handler and framework-indicator attributes) and
// derives a single actionable verdict. An element is actionable if it
// is visible and hit-testable and matches at least one interactivity
// signal.
func evaluateActionability(el Element) ActionabilitySignals {
	sig := ActionabilitySignals{
		Visible:         el.Visible,
		HitTestable:     el.Attrs["__hit_testable"] == "true",
		InteractiveTag:  interactiveTags[el.Tag],
		InteractiveRole: interactiveRoles[el.Role],
		TabIndexNonNeg:  el.Attrs["tabindex"] != "" && el.Attrs["tabindex"] != "-1",
		HasClickHandler: el.Attrs["__has_click_listener"] == "true",
	}

	matched := make([]string, 0, 4)
	if sig.InteractiveTag {
		matched = append(matched, "interactive-tag")
	}
	if sig.InteractiveRole {
		matched = append(matched, "interactive-role")
	}
	if sig.TabIndexNonNeg {
		matched = append(matched, "tabindex")
	}
	if sig.HasClickHandler {
		matched = append(matched, "click-handler")
	}
	for _, attr := range frameworkIndicatorAttrs {
		if _, ok := el.Attrs[attr]; ok {
			sig.FrameworkIndicator = true
			matched = append(matched, "framework-indicator:"+attr)
			break
		}
	}
	sig.MatchedSignals = matched

	sig.Actionable = sig.Visible && sig.HitTestable && len(matched) > 0
	return sig
}

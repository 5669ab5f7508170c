package domtoolkit

import "testing"

func TestEvaluateActionabilityNativeButton(t *testing.T) {
	sig := evaluateActionability(Element{
		Tag:     "button",
		Visible: true,
		Attrs:   map[string]string{"__hit_testable": "true"},
	})
	if !sig.Actionable {
		t.Fatalf("expected native button to be actionable, got %+v", sig)
	}
	if !sig.InteractiveTag {
		t.Errorf("expected InteractiveTag true")
	}
}

func TestEvaluateActionabilityFrameworkDiv(t *testing.T) {
	sig := evaluateActionability(Element{
		Tag:     "div",
		Visible: true,
		Attrs: map[string]string{
			"__hit_testable": "true",
			"data-testid":    "row-action",
			"role":           "",
		},
	})
	if !sig.Actionable {
		t.Fatalf("expected framework-indicated div to be actionable, got %+v", sig)
	}
	if !sig.FrameworkIndicator {
		t.Errorf("expected FrameworkIndicator true")
	}
}

func TestEvaluateActionabilityNotHitTestable(t *testing.T) {
	sig := evaluateActionability(Element{
		Tag:     "button",
		Visible: true,
		Attrs:   map[string]string{"__hit_testable": "false"},
	})
	if sig.Actionable {
		t.Fatalf("expected button obscured by another element to not be actionable")
	}
}

func TestEvaluateActionabilityPlainDivNotActionable(t *testing.T) {
	sig := evaluateActionability(Element{
		Tag:     "div",
		Visible: true,
		Attrs:   map[string]string{"__hit_testable": "true"},
	})
	if sig.Actionable {
		t.Fatalf("expected plain div with no signals to not be actionable")
	}
}

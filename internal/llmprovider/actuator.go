package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dirworks/director/internal/browser"
)

// This file backs the Browser Facade's aiAct/aiExtract hooks with a
// blocking Provider. The page is perceived through a compact in-page
// catalog probe rather than a full DOM snapshot: the model only needs
// enough context to pick a selector or read the visible text, and the
// probe keeps the prompt small.

const actSystemPrompt = `You pick one deterministic browser action that fulfills an instruction.
You are given the page URL and a catalog of interactive elements, each with a CSS selector.
Respond with a single JSON object and nothing else:
{"action": "click" | "type" | "none", "selector": "<css selector from the catalog>", "text": "<text to type, for type only>", "reason": "<why, or why no element matches>"}
Use "none" when no catalog element can fulfill the instruction.`

// actCatalogScript collects visible interactive elements with a usable
// selector each. It queries a subset of the tags, roles, and attributes
// the DOM Toolkit's actionability evaluator recognizes.
const actCatalogScript = `(() => {
  const out = [];
  const els = document.querySelectorAll('a, button, input, select, textarea, [role="button"], [role="link"], [role="menuitem"], [role="tab"], [role="checkbox"], [onclick], [tabindex]');
  for (const el of els) {
    if (out.length >= 120) break;
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    let selector = '';
    if (el.dataset && el.dataset.testid) selector = '[data-testid="' + el.dataset.testid + '"]';
    else if (el.id) selector = '#' + CSS.escape(el.id);
    else if (el.name) selector = el.tagName.toLowerCase() + '[name="' + el.name + '"]';
    else {
      selector = el.tagName.toLowerCase();
      if (el.classList.length > 0) selector += '.' + CSS.escape(el.classList[0]);
      const siblings = document.querySelectorAll(selector);
      if (siblings.length > 1) {
        const idx = Array.prototype.indexOf.call(siblings, el);
        selector += ':nth-of-type(' + (idx + 1) + ')';
      }
    }
    out.push({
      tag: el.tagName.toLowerCase(),
      selector: selector,
      text: (el.innerText || el.value || el.placeholder || '').trim().slice(0, 80),
      type: el.getAttribute('type') || '',
      role: el.getAttribute('role') || '',
      ariaLabel: el.getAttribute('aria-label') || '',
    });
  }
  return JSON.stringify(out);
})()`

// pageTextScript reads the visible text the extractor reasons over.
const pageTextScript = `(() => document.body ? document.body.innerText.slice(0, 20000) : '')()`

type actDecision struct {
	Action   string `json:"action"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Reason   string `json:"reason"`
}

// NewAIActuator returns a browser.AIActuator that asks the model to pick
// a click or type against the page's interactive-element catalog and
// dispatches the decision deterministically.
func NewAIActuator(provider Provider, model string, maxTokens int) browser.AIActuator {
	return func(ctx context.Context, page browser.Page, instruction string, constraints []string) error {
		catalog, err := page.Evaluate(ctx, actCatalogScript)
		if err != nil {
			return &browser.AIActionFailedError{Instruction: instruction, Reason: fmt.Sprintf("catalog probe failed: %v", err)}
		}

		var prompt strings.Builder
		prompt.WriteString("Page URL: " + page.URL() + "\n")
		prompt.WriteString("Instruction: " + instruction + "\n")
		for _, c := range constraints {
			prompt.WriteString("Constraint: " + c + "\n")
		}
		prompt.WriteString("\nInteractive elements:\n")
		fmt.Fprintf(&prompt, "%v\n", catalog)

		result, err := provider.Complete(ctx, &CompletionRequest{
			Model:     model,
			System:    actSystemPrompt,
			Messages:  []CompletionMessage{{Role: "user", Content: prompt.String()}},
			MaxTokens: maxTokens,
		})
		if err != nil {
			return &browser.AIActionFailedError{Instruction: instruction, Reason: err.Error()}
		}

		var decision actDecision
		if err := json.Unmarshal([]byte(stripCodeFence(strings.TrimSpace(result.Text))), &decision); err != nil {
			return &browser.AIActionFailedError{Instruction: instruction, Reason: fmt.Sprintf("model response was not a decision object: %v", err)}
		}

		switch decision.Action {
		case "click":
			return page.Click(ctx, decision.Selector, "0")
		case "type":
			return page.Type(ctx, decision.Selector, decision.Text, "0")
		case "none":
			return &browser.AIActionFailedError{Instruction: instruction, Reason: decision.Reason}
		default:
			return &browser.AIActionFailedError{Instruction: instruction, Reason: fmt.Sprintf("unknown action %q", decision.Action)}
		}
	}
}

const extractSystemPrompt = `You extract structured data from a web page's visible text.
Respond with a single JSON value that satisfies the given JSON Schema, and nothing else:
no prose, no markdown code fences, no explanation before or after the JSON.`

// NewAIExtractor returns a browser.AIExtractor that reads the page's
// visible text and asks the model for schema-shaped JSON. Validation and
// coercion stay with the Workflow Runtime's schema registry.
func NewAIExtractor(provider Provider, model string, maxTokens int) browser.AIExtractor {
	return func(ctx context.Context, page browser.Page, instruction string, schema json.RawMessage) (json.RawMessage, error) {
		text, err := page.Evaluate(ctx, pageTextScript)
		if err != nil {
			return nil, &browser.AIActionFailedError{Instruction: instruction, Reason: fmt.Sprintf("page text probe failed: %v", err)}
		}

		var prompt strings.Builder
		prompt.WriteString("Page URL: " + page.URL() + "\n")
		prompt.WriteString("Instruction: " + instruction + "\n")
		if len(schema) > 0 {
			prompt.WriteString("\nJSON Schema for your response:\n")
			prompt.Write(schema)
			prompt.WriteString("\n")
		}
		prompt.WriteString("\nPage text:\n")
		fmt.Fprintf(&prompt, "%v\n", text)

		result, err := provider.Complete(ctx, &CompletionRequest{
			Model:     model,
			System:    extractSystemPrompt,
			Messages:  []CompletionMessage{{Role: "user", Content: prompt.String()}},
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, &browser.AIActionFailedError{Instruction: instruction, Reason: err.Error()}
		}

		raw := stripCodeFence(strings.TrimSpace(result.Text))
		if !json.Valid([]byte(raw)) {
			return nil, &browser.AIActionFailedError{Instruction: instruction, Reason: "model response was not valid JSON"}
		}
		return json.RawMessage(raw), nil
	}
}

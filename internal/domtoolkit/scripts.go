package domtoolkit

import "strconv"

// rawClickInspect is the shape the click-inspect probe script returns.
type rawClickInspect struct {
	Element Element   `json:"element"`
	Nearby  []Element `json:"nearby"`
}

func jsStringLiteral(s string) string {
	return strconv.Quote(s)
}

// buildSnapshotScript walks the live DOM and returns a flat element
// list (tag, role, text, a stable subset of attributes, bounds,
// visibility, and ancestry ids) plus viewport metrics. Visibility
// follows getBoundingClientRect plus computed style, not just presence
// in the tree; __hit_testable and __has_click_listener are internal
// attrs consumed by the actionability evaluator. They are not stripped:
// they stay in Attrs of the elements Overview, Search, and Inspect
// return.
const buildSnapshotScript = `(() => {
  const elements = [];
  const idFor = (() => { let n = 0; const m = new WeakMap();
    return (el) => { if (!m.has(el)) m.set(el, 'n' + (n++)); return m.get(el); };
  })();
  const isVisible = (el, rect) => {
    if (rect.width === 0 || rect.height === 0) return false;
    const style = getComputedStyle(el);
    if (style.visibility === 'hidden' || style.display === 'none' || style.opacity === '0') return false;
    return true;
  };
  const isHitTestable = (el, rect) => {
    const cx = rect.left + rect.width / 2;
    const cy = rect.top + rect.height / 2;
    if (cx < 0 || cy < 0 || cx > window.innerWidth || cy > window.innerHeight) return false;
    const hit = document.elementFromPoint(cx, cy);
    return hit === el || (hit && el.contains(hit));
  };
  const walk = (el, ancestry) => {
    if (el.nodeType !== 1) return;
    const rect = el.getBoundingClientRect();
    const visible = isVisible(el, rect);
    const attrs = {};
    for (const a of el.attributes || []) attrs[a.name] = a.value;
    attrs['__hit_testable'] = String(visible && isHitTestable(el, rect));
    attrs['__has_click_listener'] = String(!!el.onclick);
    elements.push({
      id: idFor(el),
      tag: el.tagName.toLowerCase(),
      role: el.getAttribute('role') || '',
      text: (el.textContent || '').trim().slice(0, 200),
      attrs: attrs,
      bounds: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
      visible: visible,
      ancestry: ancestry,
    });
    const childAncestry = ancestry.concat([idFor(el)]);
    for (const child of el.children) walk(child, childAncestry);
  };
  walk(document.body, []);
  return {
    elements: elements,
    viewport: {
      width: window.innerWidth,
      height: window.innerHeight,
      scroll_x: window.scrollX,
      scroll_y: window.scrollY,
      document_height: document.documentElement.scrollHeight,
    },
  };
})()`

// structureScriptTemplate returns the page's tag/role/text tree down to
// a bounded depth, stripping attributes entirely since Structure is a
// pure outline, not an element index.
const structureScriptTemplate = `(() => {
  const maxDepth = %d;
  const build = (el, depth) => {
    const node = { tag: el.tagName.toLowerCase(), role: el.getAttribute('role') || '', text: '' };
    if (depth >= maxDepth || el.children.length === 0) {
      node.text = (el.textContent || '').trim().slice(0, 120);
      return node;
    }
    node.children = Array.from(el.children).map(c => build(c, depth + 1));
    return node;
  };
  return build(document.body, 0);
})()`

// portalDetectionScript finds elements that render outside the normal
// document flow: fixed/absolute positioned with high z-index, or
// attached directly to body/documentElement rather than a content
// container, which is how modal/tooltip/dropdown portals typically
// mount.
const portalDetectionScript = `(() => {
  const out = [];
  const idFor = (() => { let n = 0; const m = new WeakMap();
    return (el) => { if (!m.has(el)) m.set(el, 'n' + (n++)); return m.get(el); };
  })();
  for (const el of document.body.children) {
    const style = getComputedStyle(el);
    if (style.position === 'fixed' || style.position === 'absolute' || (parseInt(style.zIndex) || 0) > 100) {
      const rect = el.getBoundingClientRect();
      out.push({
        id: idFor(el),
        tag: el.tagName.toLowerCase(),
        role: el.getAttribute('role') || '',
        text: (el.textContent || '').trim().slice(0, 200),
        attrs: {},
        bounds: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
        visible: rect.width > 0 && rect.height > 0,
        ancestry: [],
      });
    }
  }
  return out;
})()`

// computedStyleScriptTemplate returns a small, fixed set of
// layout-relevant computed style properties for the element whose id
// matches want, re-deriving ids with the exact same document-order walk
// buildSnapshotScript used so ids stay stable within one page state;
// kept short since Inspect's caller wants a debugging summary, not the
// full CSSStyleDeclaration.
const computedStyleScriptTemplate = `(() => {
  const want = %s;
  const props = ['display', 'position', 'visibility', 'opacity', 'z-index', 'overflow', 'width', 'height'];
  let n = 0;
  const idFor = (() => { const m = new WeakMap();
    return (el) => { if (!m.has(el)) m.set(el, 'n' + (n++)); return m.get(el); };
  })();
  let found = null;
  const walk = (el) => {
    if (found || el.nodeType !== 1) return;
    if (idFor(el) === want) { found = el; return; }
    for (const child of el.children) { walk(child); if (found) return; }
  };
  walk(document.body);
  if (!found) return {};
  const style = getComputedStyle(found);
  const out = {};
  for (const p of props) out[p] = style.getPropertyValue(p);
  return out;
})()`

// clickInspectScriptTemplate resolves the element at (x, y) via
// elementFromPoint, the same primitive the browser itself uses to
// route a click, so the result matches what a real click would hit
// rather than what a selector-based query would merely find.
const clickInspectScriptTemplate = `(() => {
  const x = %f, y = %f, includeNearby = %v, radius = %d;
  const idFor = (() => { let n = 0; const m = new WeakMap();
    return (el) => { if (!m.has(el)) m.set(el, 'n' + (n++)); return m.get(el); };
  })();
  const describe = (el) => {
    const rect = el.getBoundingClientRect();
    const attrs = {};
    for (const a of el.attributes || []) attrs[a.name] = a.value;
    attrs['__hit_testable'] = 'true';
    attrs['__has_click_listener'] = String(!!el.onclick);
    return {
      id: idFor(el),
      tag: el.tagName.toLowerCase(),
      role: el.getAttribute('role') || '',
      text: (el.textContent || '').trim().slice(0, 200),
      attrs: attrs,
      bounds: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
      visible: true,
      ancestry: [],
    };
  };
  const target = document.elementFromPoint(x, y);
  const result = { element: target ? describe(target) : null, nearby: [] };
  if (includeNearby && target) {
    for (let dx = -radius; dx <= radius; dx += radius) {
      for (let dy = -radius; dy <= radius; dy += radius) {
        if (dx === 0 && dy === 0) continue;
        const el = document.elementFromPoint(x + dx, y + dy);
        if (el && el !== target) result.nearby.push(describe(el));
      }
    }
  }
  return result;
})()`

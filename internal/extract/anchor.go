package extract

import (
	"context"
	"fmt"
	"strings"
)

// maxAnchorDepth bounds the ancestor walk from a target node.
const maxAnchorDepth = 6

// Found is the value recorded when an existence check passes.
const Found = "FOUND"

const nearAnchorJS = `(target, anchor, depth) => {
  const isVisible = (el) => {
    if (!el) return false;
    const st = getComputedStyle(el);
    return st && st.display !== "none" && st.visibility !== "hidden" &&
      (el.offsetParent !== null || el.getClientRects().length > 0);
  };
  const all = Array.from(document.querySelectorAll("span,div,button,a,li,p"));
  const hits = all.filter(el => (el.textContent || "").trim().toLowerCase() === target && isVisible(el));
  for (const hit of hits) {
    let node = hit;
    for (let i = 0; i < depth && node; i++) {
      if ((node.textContent || "").toLowerCase().includes(anchor)) return "FOUND";
      node = node.parentElement;
    }
  }
  return "";
}`

// NearAnchor asserts that a visible node whose whole text is Target sits
// within a few ancestors of a node mentioning Anchor, e.g. an "EC2" resource
// tile inside an "AWS" provider group.
type NearAnchor struct {
	Target string
	Anchor string
}

func (n NearAnchor) Tag() string {
	return fmt.Sprintf("[JS %s-near-%s]", strings.ToUpper(n.Target), strings.ToUpper(n.Anchor))
}

func (n NearAnchor) Extract(ctx context.Context, ev Evaluator) string {
	target := strings.ToLower(strings.TrimSpace(n.Target))
	anchor := strings.ToLower(strings.TrimSpace(n.Anchor))
	if target == "" || anchor == "" {
		return ""
	}
	if evalString(ctx, ev, nearAnchorJS, target, anchor, maxAnchorDepth) == Found {
		return Found
	}
	return ""
}

package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hazz-dev/dashprobe/internal/poll"
)

// tenantStatusJS returns the lower-cased text of the header region that shows
// the active tenant, or "".
const tenantStatusJS = `(target) => {
  const selectors = ["div.header__company", "div.company-name", "a.topbar-company", "button.company-toggle",
    "div.header .company", "div.bs-select-inline", ".company-selector", ".header-company"];
  for (const s of selectors) {
    const el = document.querySelector(s);
    const t = el && (el.innerText || "").trim();
    if (t) return t.toLowerCase();
  }
  const first = (target || "").trim().toLowerCase().split(/\s+/)[0] || "";
  const nodes = document.querySelectorAll("header *, nav *, div.topbar *, div.header *");
  for (const n of nodes) {
    const t = (n.innerText || "").trim().toLowerCase();
    if (t && t.length < 120 && ((first && t.includes(first)) || t.includes("*"))) return t;
  }
  return "";
}`

// tenantSwitchJS opens the tenant menu and clicks the option naming target.
const tenantSwitchJS = `async (target) => {
  target = (target || "").trim().toLowerCase();
  const visible = el => {
    if (!el) return false;
    const st = getComputedStyle(el);
    return st.display !== "none" && st.visibility !== "hidden" && (el.offsetParent !== null || el.getClientRects().length > 0);
  };
  const toggles = Array.from(document.querySelectorAll("a,button,div,span,p")).filter(n => {
    try {
      const t = (n.innerText || "").trim().toLowerCase();
      return visible(n) && (t.includes("*") || /company|empresa|cliente|client|tenant/i.test(t) ||
        n.getAttribute("aria-haspopup") === "true" || n.getAttribute("role") === "button");
    } catch (e) { return false; }
  });
  if (toggles.length) {
    try { toggles[0].scrollIntoView({block: "center", inline: "center"}); toggles[0].click(); } catch (e) {}
  }
  const clickOption = () => {
    const opts = Array.from(document.querySelectorAll("li,div,button,a,span,p"))
      .filter(n => visible(n) && (n.innerText || "").trim().toLowerCase().includes(target));
    if (!opts.length) return false;
    try { opts[0].scrollIntoView({block: "center", inline: "center"}); opts[0].click(); return true; } catch (e) {}
    try {
      for (const type of ["mousedown", "mouseup", "click"]) {
        opts[0].dispatchEvent(new MouseEvent(type, {bubbles: true}));
      }
      return true;
    } catch (e) {}
    return false;
  };
  const end = Date.now() + 2000;
  do {
    if (clickOption()) return true;
    await new Promise(r => setTimeout(r, 100));
  } while (Date.now() < end);
  return false;
}`

// selectOptionJS clicks the first visible element whose text contains target.
const selectOptionJS = `(target) => {
  target = (target || "").trim().toLowerCase();
  const it = document.evaluate("//*", document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  for (let i = 0; i < it.snapshotLength; i++) {
    const n = it.snapshotItem(i);
    const t = (n.textContent || "").replace(/\s+/g, " ").trim().toLowerCase();
    if (!t.includes(target)) continue;
    const r = n.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    try { n.click(); return true; } catch (e) {}
  }
  return false;
}`

func (o *Orchestrator) evalBool(ctx context.Context, js string, args ...any) bool {
	raw, err := o.nav.Eval(ctx, js, args...)
	if err != nil {
		o.logger.Debug("tenant script failed", "error", err)
		return false
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false
	}
	return ok
}

// CurrentTenant returns the lower-cased tenant label shown in the header.
func (o *Orchestrator) CurrentTenant(ctx context.Context, target string) string {
	raw, err := o.nav.Eval(ctx, tenantStatusJS, target)
	if err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (o *Orchestrator) verifyTenant(ctx context.Context, target string, bound time.Duration) (bool, string) {
	want := strings.ToLower(strings.TrimSpace(target))
	var cur string
	ok := poll.Until(ctx, o.opts.PollInterval, bound, func() bool {
		cur = o.CurrentTenant(ctx, target)
		return cur != "" && strings.Contains(cur, want)
	})
	return ok, cur
}

// SwitchTenant makes target the active tenant and reports whether the header
// confirms it. A page reload is tried once when the first attempt does not
// verify.
func (o *Orchestrator) SwitchTenant(ctx context.Context, target string) bool {
	if ok, cur := o.verifyTenant(ctx, target, 0); ok {
		o.logger.Info("tenant already selected", "tenant", cur)
		return true
	}

	clicked := o.evalBool(ctx, tenantSwitchJS, target)
	o.logger.Debug("tenant selector clicked", "clicked", clicked)

	if ok, cur := o.verifyTenant(ctx, target, o.opts.TenantVerify); ok {
		o.logger.Info("tenant switched", "tenant", cur)
		return true
	}

	o.logger.Info("tenant switch not verified, reloading")
	if err := o.nav.Reload(ctx); err != nil {
		o.logger.Warn("reloading page", "error", err)
	}
	ok, cur := o.verifyTenant(ctx, target, o.opts.TenantVerify*3/2)
	if !ok {
		o.logger.Warn("tenant switch failed", "target", target, "current", cur)
	}
	return ok
}

// SelectOption clicks the first visible element whose text contains target.
func (o *Orchestrator) SelectOption(ctx context.Context, target string) bool {
	return o.evalBool(ctx, selectOptionJS, target)
}

package extract

import "context"

const gradeJS = `() => {
  const sections = Array.from(document.querySelectorAll("section,div,article"))
    .filter(el => /total\s*scores/i.test(el.textContent || ""));
  const parenRe = /^\([\d.,]+\)$/;
  for (const sec of sections) {
    const blocks = Array.from(sec.querySelectorAll("p,div,span"))
      .filter(el => /grade/i.test(el.textContent || ""));
    for (const b of blocks) {
      let grade = "", paren = "";
      for (const s of b.querySelectorAll("span")) {
        const t = (s.textContent || "").trim();
        if (/grade/i.test(t)) grade = t;
        if (parenRe.test(t)) paren = t;
      }
      if (grade) return (grade + (paren ? " " + paren : "")).trim();
    }
  }
  return "";
}`

// Grade reads a composite grade such as "A Grade (92.5)" from the total
// scores panel.
type Grade struct{}

func (Grade) Tag() string { return "[JS CEI grade]" }

func (Grade) Extract(ctx context.Context, ev Evaluator) string {
	return evalString(ctx, ev, gradeJS)
}

package extract

import "context"

const currencyJS = `(phrase) => {
  const money = t => /\$\s*[\d,]+(\.\d+)?/.test((t || "").trim());
  const phraseRe = new RegExp(phrase, "i");
  const spanSel = "span.currency-text, span[class*=currency], span[class*=-number], span[class*=value]";
  const regions = Array.from(document.querySelectorAll("*"))
    .filter(el => phraseRe.test(el.textContent || ""));
  for (const region of regions) {
    for (const s of region.querySelectorAll(spanSel)) {
      const t = (s.textContent || "").trim();
      if (money(t)) return t;
    }
  }
  for (const s of document.querySelectorAll(spanSel)) {
    const t = (s.textContent || "").trim();
    if (money(t)) return t;
  }
  return "";
}`

// MTDCostPhrase is the label of the month-to-date cost card.
const MTDCostPhrase = `month\s*to\s*date\s*cost`

// Currency finds a dollar amount inside regions whose text matches Phrase,
// falling back to a page-wide scan of the same value-bearing spans.
type Currency struct {
	Phrase string
}

func (Currency) Tag() string { return "[JS MTD cost]" }

func (c Currency) Extract(ctx context.Context, ev Evaluator) string {
	phrase := c.Phrase
	if phrase == "" {
		phrase = MTDCostPhrase
	}
	return evalString(ctx, ev, currencyJS, phrase)
}

const sectionCurrencyJS = `(phrase) => {
  const money = t => /\$\s*[\d,]+(\.\d+)?/.test((t || "").trim());
  const phraseRe = new RegExp(phrase, "i");
  const sections = Array.from(document.querySelectorAll("section, div, article"))
    .filter(el => phraseRe.test(el.textContent || ""));
  for (const sec of sections) {
    const live = Array.from(sec.querySelectorAll("article"))
      .find(a => !/display\s*:\s*none/i.test(a.getAttribute("style") || ""));
    const root = live || sec;
    for (const v of root.querySelectorAll("span, div, p, b, strong")) {
      const t = (v.textContent || "").trim();
      if (money(t)) return t;
    }
  }
  return "";
}`

// MoreAvailablePhrase is the heading of the savings summary section.
const MoreAvailablePhrase = `more\s+available\s+cost\s+savings`

// SectionCurrency finds a dollar amount in the visible article of a section
// whose text matches Phrase. Unlike Currency it has no page-wide fallback.
type SectionCurrency struct {
	Phrase string
}

func (SectionCurrency) Tag() string { return "[JS MoreAvailable Total]" }

func (s SectionCurrency) Extract(ctx context.Context, ev Evaluator) string {
	phrase := s.Phrase
	if phrase == "" {
		phrase = MoreAvailablePhrase
	}
	return evalString(ctx, ev, sectionCurrencyJS, phrase)
}

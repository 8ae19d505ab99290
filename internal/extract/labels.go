package extract

import (
	"context"
	"encoding/json"
	"strings"
)

// DefaultLabelKeys matches the "total servers" KPI cards in English and Korean.
var DefaultLabelKeys = []string{"total server", "total servers", "server", "servers", "서버", "총 서버"}

// Row is a label/value pair pulled from a summary card.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

const scanLabelsJS = `() => {
  const labelSel = "p, .label, .title, h3, h4, dt, .name";
  const valueSel = "em.value, .value, .num, .number, .count, dd em.value";
  const blocks = Array.from(document.querySelectorAll(
    ".count-item, .summary, .card, .cards, [class*=count], [class*=summary], [class*=kpi]"
  ));
  const rows = [];
  if (blocks.length) {
    for (const root of blocks) {
      const labelEl = root.querySelector(labelSel);
      const valueEl = root.querySelector(valueSel);
      const label = labelEl && labelEl.textContent ? labelEl.textContent.trim() : "";
      const value = valueEl && valueEl.textContent ? valueEl.textContent.trim() : "";
      if (value) rows.push({label, value});
    }
    return rows;
  }
  for (const v of document.querySelectorAll("em.value, .value, .num, .number, .count")) {
    let node = v, label = "";
    for (let i = 0; i < 5 && node; i++) {
      const l = node.querySelector ? node.querySelector(labelSel) : null;
      if (l && l.textContent) { label = l.textContent.trim(); break; }
      node = node.parentElement;
    }
    const value = (v.textContent || "").trim();
    if (value) rows.push({label, value});
  }
  return rows;
}`

// LabelScan pulls label/value rows from card-like regions and picks the value
// whose label contains one of Keys.
type LabelScan struct {
	Keys []string
	// OnRows, when set, receives the scanned rows (used for debug dumps).
	OnRows func(rows []Row)
}

func (LabelScan) Tag() string { return "[JS scan fallback]" }

func (s LabelScan) Extract(ctx context.Context, ev Evaluator) string {
	rows := ScanRows(ctx, ev)
	if s.OnRows != nil {
		s.OnRows(rows)
	}
	keys := s.Keys
	if len(keys) == 0 {
		keys = DefaultLabelKeys
	}
	return PickByLabels(rows, keys)
}

// ScanRows returns the label/value rows visible on the page.
func ScanRows(ctx context.Context, ev Evaluator) []Row {
	raw, err := ev.Eval(ctx, scanLabelsJS)
	if err != nil {
		return nil
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}
	return rows
}

// PickByLabels returns the first value whose label contains (case-insensitive)
// one of keys. Failing that, it returns the first purely numeric value with an
// empty label, which covers unlabeled single-KPI widgets.
func PickByLabels(rows []Row, keys []string) string {
	for _, r := range rows {
		label := strings.ToLower(strings.TrimSpace(r.Label))
		val := strings.TrimSpace(r.Value)
		if val == "" {
			continue
		}
		for _, k := range keys {
			if strings.Contains(label, strings.ToLower(k)) {
				return val
			}
		}
	}
	for _, r := range rows {
		val := strings.TrimSpace(r.Value)
		if strings.TrimSpace(r.Label) == "" && isDigits(strings.ReplaceAll(val, ",", "")) {
			return val
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package extract holds the heuristic fallback strategies used when primary
// locators miss or yield an empty value. Every strategy is a read-only script
// evaluated against the rendered page; none of them return errors.
package extract

import (
	"context"
	"encoding/json"
	"strings"
)

// Evaluator runs a read-only script against the page and returns the JSON
// encoding of its result.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...any) ([]byte, error)
}

// Strategy extracts one class of value from a rendered page.
type Strategy interface {
	// Tag identifies the strategy in result records, e.g. "[JS MTD cost]".
	Tag() string
	// Extract returns the extracted value, or "" when nothing matched.
	Extract(ctx context.Context, ev Evaluator) string
}

// Zeroish reports whether text counts as "not rendered yet": empty, "0" or "0ea".
func Zeroish(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "" || t == "0" || t == "0ea"
}

// evalString runs js and decodes a string result. Evaluation or decoding
// failures yield "".
func evalString(ctx context.Context, ev Evaluator, js string, args ...any) string {
	raw, err := ev.Eval(ctx, js, args...)
	if err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Chain evaluates strategies in order until one yields a non-empty value.
type Chain []Strategy

// Extract returns the first non-empty value and the tag of the strategy that
// produced it.
func (c Chain) Extract(ctx context.Context, ev Evaluator) (value, tag string) {
	for _, s := range c {
		if v := s.Extract(ctx, ev); v != "" {
			return v, s.Tag()
		}
	}
	return "", ""
}

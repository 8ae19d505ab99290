// Package locator finds the first visible element matching an ordered list of
// candidate locators.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Kind is the query language of a locator.
type Kind string

const (
	KindXPath Kind = "xpath"
	KindCSS   Kind = "css"
)

// ParseKind maps a configured kind to a Kind. An empty kind means xpath.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xpath":
		return KindXPath, nil
	case "css", "css-selector", "css_selector", "selector":
		return KindCSS, nil
	default:
		return "", fmt.Errorf("unknown locator kind %q (must be xpath or css)", s)
	}
}

// Locator is a single candidate query.
type Locator struct {
	Kind  Kind
	Value string
}

// String returns the "kind:value" descriptor recorded in results.
func (l Locator) String() string {
	return string(l.Kind) + ":" + l.Value
}

// Element is a matched page element.
type Element interface {
	Text(ctx context.Context) (string, error)
}

// Finder waits up to timeout for an element that is present and visible.
type Finder interface {
	Find(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
}

// Resolver tries locators in order.
type Resolver struct {
	finder Finder
	logger *slog.Logger
}

// NewResolver creates a Resolver. Pass nil logger to use the default logger.
func NewResolver(finder Finder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{finder: finder, logger: logger}
}

// Resolve returns the first locator that yields a visible element within
// timeout, together with its descriptor. ok is false when none matched.
func (r *Resolver) Resolve(ctx context.Context, locs []Locator, timeout time.Duration) (el Element, descriptor string, ok bool) {
	for _, loc := range locs {
		if strings.TrimSpace(loc.Value) == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil, "", false
		}
		found, err := r.finder.Find(ctx, loc, timeout)
		if err != nil || found == nil {
			r.logger.Debug("locator did not match", "locator", loc.String(), "error", err)
			continue
		}
		return found, loc.String(), true
	}
	return nil, "", false
}

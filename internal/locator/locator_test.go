package locator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazz-dev/dashprobe/internal/locator"
)

type textElement string

func (e textElement) Text(context.Context) (string, error) { return string(e), nil }

// mapFinder matches locators by descriptor and records every lookup.
type mapFinder struct {
	matches map[string]string
	calls   []string
}

func (f *mapFinder) Find(_ context.Context, loc locator.Locator, _ time.Duration) (locator.Element, error) {
	f.calls = append(f.calls, loc.String())
	if txt, ok := f.matches[loc.String()]; ok {
		return textElement(txt), nil
	}
	return nil, errors.New("timed out")
}

func TestResolve_SkipsMissAndReturnsLaterMatch(t *testing.T) {
	f := &mapFinder{matches: map[string]string{"css:.b": "B"}}
	r := locator.NewResolver(f, nil)

	locs := []locator.Locator{
		{Kind: locator.KindXPath, Value: "//a"},
		{Kind: locator.KindCSS, Value: ".b"},
	}
	el, desc, ok := r.Resolve(context.Background(), locs, time.Second)
	if !ok {
		t.Fatal("expected a match")
	}
	if desc != "css:.b" {
		t.Errorf("expected descriptor css:.b, got %q", desc)
	}
	txt, _ := el.Text(context.Background())
	if txt != "B" {
		t.Errorf("expected element B, got %q", txt)
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	f := &mapFinder{matches: map[string]string{"xpath://a": "A", "css:.b": "B"}}
	r := locator.NewResolver(f, nil)

	locs := []locator.Locator{
		{Kind: locator.KindXPath, Value: "//a"},
		{Kind: locator.KindCSS, Value: ".b"},
	}
	_, desc, ok := r.Resolve(context.Background(), locs, time.Second)
	if !ok || desc != "xpath://a" {
		t.Fatalf("expected xpath://a, got %q (ok=%v)", desc, ok)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected resolution to stop after first match, got calls %v", f.calls)
	}
}

func TestResolve_NoMatchIsNotAnError(t *testing.T) {
	r := locator.NewResolver(&mapFinder{}, nil)
	el, desc, ok := r.Resolve(context.Background(), []locator.Locator{{Kind: locator.KindXPath, Value: "//x"}}, time.Millisecond)
	if ok || el != nil || desc != "" {
		t.Errorf("expected no match, got %v %q %v", el, desc, ok)
	}
}

func TestResolve_SkipsBlankValues(t *testing.T) {
	f := &mapFinder{}
	r := locator.NewResolver(f, nil)
	r.Resolve(context.Background(), []locator.Locator{{Kind: locator.KindCSS, Value: "  "}}, time.Second)
	if len(f.calls) != 0 {
		t.Errorf("blank locator should not be queried, got %v", f.calls)
	}
}

func TestResolve_EmptyList(t *testing.T) {
	r := locator.NewResolver(&mapFinder{}, nil)
	if _, _, ok := r.Resolve(context.Background(), nil, time.Second); ok {
		t.Error("expected no match for empty locator list")
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]locator.Kind{
		"":             locator.KindXPath,
		"XPath":        locator.KindXPath,
		"css":          locator.KindCSS,
		"css-selector": locator.KindCSS,
	}
	for in, want := range cases {
		got, err := locator.ParseKind(in)
		if err != nil {
			t.Errorf("ParseKind(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseKind(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := locator.ParseKind("id"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

package checker

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazz-dev/dashprobe/internal/extract"
	"github.com/hazz-dev/dashprobe/internal/locator"
	"github.com/hazz-dev/dashprobe/internal/poll"
)

// Page is the read-only view of the rendered page the dispatcher needs.
type Page interface {
	locator.Finder
	extract.Evaluator
}

// Capturer stores debug artifacts and returns their paths.
type Capturer interface {
	Screenshot(ctx context.Context, name string) string
	JSON(name string, v any) string
}

// Locator tags recorded when no primary locator supplied the value.
const (
	tagNone      = "n/a"
	tagLabelScan = "[JS scan fallback]"
	tagMTDCost   = "[JS MTD cost]"
	tagMoreAvail = "[JS MoreAvailable Total]"
	tagCEIGrade  = "[JS CEI grade]"
)

// Dispatcher runs a check against the current page.
type Dispatcher struct {
	page         Page
	resolver     *locator.Resolver
	capture      Capturer
	pollInterval time.Duration
	debug        func(context.Context, []locator.Locator)
	logger       *slog.Logger
}

// NewDispatcher creates a Dispatcher. Pass nil logger to use the default logger.
func NewDispatcher(page Page, capture Capturer, pollInterval time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		page:         page,
		resolver:     locator.NewResolver(page, logger),
		capture:      capture,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// SetLocatorDebug sets a hook invoked with the check's locators before they
// are resolved.
func (d *Dispatcher) SetLocatorDebug(fn func(context.Context, []locator.Locator)) {
	d.debug = fn
}

// outcome is what a type policy produced.
type outcome struct {
	value   string
	locator string
}

// Dispatch runs chk and returns its record. It never fails: every miss ends
// as a FAIL record.
func (d *Dispatcher) Dispatch(ctx context.Context, chk Check, meta map[string]string) Record {
	rec := NewRecord(meta, chk.URL, chk.Name)
	rec.Type = chk.Spec.Type()

	if d.debug != nil && len(chk.Locators) > 0 {
		d.debug(ctx, chk.Locators)
	}

	el, matched, _ := d.resolver.Resolve(ctx, chk.Locators, chk.LocatorTimeout)

	var out outcome
	switch s := chk.Spec.(type) {
	case MTDCost:
		out = d.mtdCost(ctx, chk, el, matched)
	case MoreAvailableTotal:
		out = d.moreAvailable(ctx, el, matched)
	case CEIGrade:
		out = d.ceiGrade(ctx, chk, el, matched)
	case ElementExists:
		out = d.elementExists(ctx, s, el, matched)
	case ValueRequired:
		out = d.valueRequired(ctx, chk, s, el, matched)
	default:
		d.logger.Error("unhandled check type", "check", chk.Name, "type", chk.Spec.Type())
		out = outcome{locator: tagNone}
	}

	rec.Value = out.value
	rec.Locator = out.locator
	if out.value != "" {
		rec.Status = StatusPass
	} else {
		rec.Status = StatusFail
		shot := d.capture.Screenshot(ctx, strings.ReplaceAll(chk.Name, " ", "_")+"_Fail")
		if shot != "" {
			rec.Screenshot = filepath.Base(shot)
		}
	}
	return rec
}

// waitText polls el until it shows a value other than "", "0" or "0ea".
// It returns "" if the element never settles within bound.
func (d *Dispatcher) waitText(ctx context.Context, el locator.Element, bound time.Duration) string {
	if el == nil {
		return ""
	}
	var txt string
	poll.Until(ctx, d.pollInterval, bound, func() bool {
		t, err := el.Text(ctx)
		if err != nil {
			txt = ""
			return false
		}
		txt = strings.TrimSpace(t)
		return !extract.Zeroish(txt)
	})
	if extract.Zeroish(txt) {
		return ""
	}
	return txt
}

// fallback runs the fallback chain and credits the strategy that produced a
// value, otherwise the matched locator, otherwise defaultTag.
func (d *Dispatcher) fallback(ctx context.Context, matched, defaultTag string, chain ...extract.Strategy) outcome {
	if value, tag := extract.Chain(chain).Extract(ctx, d.page); value != "" {
		return outcome{value: value, locator: tag}
	}
	if matched != "" {
		return outcome{locator: matched}
	}
	return outcome{locator: defaultTag}
}

func (d *Dispatcher) mtdCost(ctx context.Context, chk Check, el locator.Element, matched string) outcome {
	value := d.waitText(ctx, el, chk.ValueWait)
	if value != "" && strings.Contains(value, "$") {
		return outcome{value: value, locator: matched}
	}
	d.logger.Info("falling back to month-to-date cost scan", "check", chk.Name)
	return d.fallback(ctx, matched, tagMTDCost, extract.Currency{})
}

func (d *Dispatcher) moreAvailable(ctx context.Context, el locator.Element, matched string) outcome {
	var value string
	if el != nil {
		if t, err := el.Text(ctx); err == nil {
			value = strings.TrimSpace(t)
		}
	}
	if value != "" {
		return outcome{value: value, locator: matched}
	}
	return d.fallback(ctx, matched, tagMoreAvail, extract.SectionCurrency{})
}

func (d *Dispatcher) ceiGrade(ctx context.Context, chk Check, el locator.Element, matched string) outcome {
	if value := d.waitText(ctx, el, chk.ValueWait); value != "" {
		return outcome{value: value, locator: matched}
	}
	return d.fallback(ctx, matched, tagCEIGrade, extract.Grade{})
}

func (d *Dispatcher) elementExists(ctx context.Context, s ElementExists, el locator.Element, matched string) outcome {
	if el != nil {
		return outcome{value: extract.Found, locator: matched}
	}
	if s.NearAnchor == nil {
		return outcome{locator: tagNone}
	}
	d.logger.Info("falling back to near-anchor scan", "target", s.NearAnchor.Target, "anchor", s.NearAnchor.Anchor)
	return d.fallback(ctx, "", tagNone, *s.NearAnchor)
}

func (d *Dispatcher) valueRequired(ctx context.Context, chk Check, s ValueRequired, el locator.Element, matched string) outcome {
	if value := d.waitText(ctx, el, chk.ValueWait); value != "" {
		return outcome{value: value, locator: matched}
	}
	if s.LabelScan == nil {
		return d.fallback(ctx, matched, tagLabelScan)
	}
	d.logger.Info("falling back to label scan", "check", chk.Name)
	scan := *s.LabelScan
	scan.OnRows = func(rows []extract.Row) {
		d.capture.JSON(strings.ReplaceAll(chk.Name, " ", "_")+"_ScanLabels", rows)
	}
	return d.fallback(ctx, matched, tagLabelScan, scan)
}

// Package checker turns a configured check into a PASS/FAIL record by
// resolving its locators and, when they come up empty, the fallback strategy
// that belongs to its type.
package checker

import (
	"fmt"
	"strings"
	"time"

	"github.com/hazz-dev/dashprobe/internal/config"
	"github.com/hazz-dev/dashprobe/internal/extract"
	"github.com/hazz-dev/dashprobe/internal/locator"
)

// Spec is the closed set of check types. Each variant carries the parameters
// only it understands.
type Spec interface {
	Type() string
	isSpec()
}

// ValueRequired polls the matched element for a non-zero value, optionally
// falling back to a label scan.
type ValueRequired struct {
	LabelScan *extract.LabelScan
}

// MTDCost reads a month-to-date cost that must contain a currency symbol.
type MTDCost struct{}

// MoreAvailableTotal reads the "more available cost savings" total.
type MoreAvailableTotal struct{}

// CEIGrade reads a composite grade such as "A Grade (92.5)".
type CEIGrade struct{}

// ElementExists passes when a locator matches, optionally falling back to a
// near-anchor co-occurrence test.
type ElementExists struct {
	NearAnchor *extract.NearAnchor
}

func (ValueRequired) Type() string      { return config.TypeValueRequired }
func (MTDCost) Type() string            { return config.TypeMTDCost }
func (MoreAvailableTotal) Type() string { return config.TypeMoreAvailableTotal }
func (CEIGrade) Type() string           { return config.TypeCEIGrade }
func (ElementExists) Type() string      { return config.TypeElementExists }

func (ValueRequired) isSpec()      {}
func (MTDCost) isSpec()            {}
func (MoreAvailableTotal) isSpec() {}
func (CEIGrade) isSpec()           {}
func (ElementExists) isSpec()      {}

// Check is a fully resolved check, ready for dispatch.
type Check struct {
	Name           string
	URL            string
	Locators       []locator.Locator
	Spec           Spec
	LocatorTimeout time.Duration
	ValueWait      time.Duration
}

// New builds a Check from its configuration.
func New(c config.Check, d config.Defaults) (Check, error) {
	locs := make([]locator.Locator, 0, len(c.Locators))
	for i, l := range c.Locators {
		kind, err := locator.ParseKind(l.Kind)
		if err != nil {
			return Check{}, fmt.Errorf("check %q: locator[%d]: %w", c.Name, i, err)
		}
		locs = append(locs, locator.Locator{Kind: kind, Value: strings.TrimSpace(l.Value)})
	}

	spec, err := newSpec(c, d)
	if err != nil {
		return Check{}, err
	}

	return Check{
		Name:           c.Name,
		URL:            c.URL,
		Locators:       locs,
		Spec:           spec,
		LocatorTimeout: d.LocatorTimeout.Duration,
		ValueWait:      d.ValueWaitFor(spec.Type()),
	}, nil
}

func newSpec(c config.Check, d config.Defaults) (Spec, error) {
	typ := strings.ToLower(c.Type)
	if typ == "" {
		typ = config.TypeValueRequired
	}
	fb := c.Fallback

	switch typ {
	case config.TypeValueRequired:
		s := ValueRequired{}
		if fb != nil && fb.Strategy == config.StrategyScanLabels {
			keys := fb.LabelKeys
			if len(keys) == 0 {
				keys = d.LabelKeys
			}
			if len(keys) == 0 {
				keys = extract.DefaultLabelKeys
			}
			s.LabelScan = &extract.LabelScan{Keys: keys}
		}
		return s, nil
	case config.TypeMTDCost:
		return MTDCost{}, nil
	case config.TypeMoreAvailableTotal:
		return MoreAvailableTotal{}, nil
	case config.TypeCEIGrade:
		return CEIGrade{}, nil
	case config.TypeElementExists:
		s := ElementExists{}
		if fb != nil {
			switch fb.Strategy {
			case config.StrategyEC2NearAWS:
				s.NearAnchor = &extract.NearAnchor{Target: "ec2", Anchor: "aws"}
			case config.StrategyNearAnchor:
				s.NearAnchor = &extract.NearAnchor{Target: fb.Target, Anchor: fb.Anchor}
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown check type %q", c.Type)
	}
}

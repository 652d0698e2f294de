package classifier

import (
	"fmt"

	"waf-sentinel/internal/schema"
)

// Classifier evaluates parsed events against a rule table.
type Classifier struct {
	rules []*Rule
}

// New creates a Classifier over the given rule set. Rules are compiled
// up front so Classify never errors.
func New(set *RuleSet) (*Classifier, error) {
	if set == nil || len(set.Rules) == 0 {
		return nil, fmt.Errorf("classifier requires a non-empty rule set")
	}

	rules := make([]*Rule, 0, len(set.Rules))
	for _, rule := range set.Rules {
		if err := rule.Compile(); err != nil {
			return nil, err
		}
		if rule.Enabled {
			rules = append(rules, rule)
		}
	}

	return &Classifier{rules: rules}, nil
}

// NewDefault creates a Classifier over the built-in rule table.
func NewDefault() *Classifier {
	c, err := New(DefaultRuleSet())
	if err != nil {
		// The built-in table is compiled in tests; this cannot happen
		// at runtime.
		panic(err)
	}
	return c
}

// Classify assigns a threat assessment to an event. It is pure and
// total: events matching no rule yield the unknown/low/monitor default.
func (c *Classifier) Classify(event *schema.ParsedEvent) schema.ThreatAssessment {
	for _, rule := range c.rules {
		if ok, indicators := rule.Matches(event); ok {
			return schema.ThreatAssessment{
				ThreatType:        rule.ThreatType,
				Severity:          rule.Severity,
				Indicators:        indicators,
				RecommendedAction: rule.RecommendedAction,
			}
		}
	}

	return schema.ThreatAssessment{
		ThreatType:        schema.ThreatUnknown,
		Severity:          schema.SeverityLow,
		RecommendedAction: schema.RecommendMonitor,
	}
}

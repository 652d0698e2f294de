// Package classifier assigns threat assessments to parsed events using
// a rule-based pattern table. Classification is total: events matching
// no rule degrade to the unknown/low/monitor default.
package classifier

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"waf-sentinel/internal/schema"
)

// Rule is one classification signature. All configured match fields
// must hit for the rule to apply; unset fields are ignored. Rules are
// evaluated in order and the first match wins.
type Rule struct {
	ID                string                   `yaml:"id"`
	Description       string                   `yaml:"description,omitempty"`
	Enabled           bool                     `yaml:"enabled"`
	ThreatType        schema.ThreatType        `yaml:"threat_type"`
	Severity          schema.Severity          `yaml:"severity"`
	RecommendedAction schema.RecommendedAction `yaml:"recommended_action"`

	// Match fields. String lists match case-insensitively on
	// substring; at least one entry of a non-empty list must hit.
	Actions           []schema.Action `yaml:"actions,omitempty"`
	URIContains       []string        `yaml:"uri_contains,omitempty"`
	URIPattern        string          `yaml:"uri_pattern,omitempty"`
	UserAgentContains []string        `yaml:"user_agent_contains,omitempty"`
	RuleIDContains    []string        `yaml:"rule_id_contains,omitempty"`

	uriRe *regexp.Regexp
}

// RuleSet is a versioned, injectable classification table.
type RuleSet struct {
	Version string  `yaml:"version"`
	Rules   []*Rule `yaml:"rules"`
}

// Compile validates the rule and prepares its regular expression.
func (r *Rule) Compile() error {
	if r.ID == "" {
		return fmt.Errorf("rule missing id")
	}
	if r.ThreatType == "" {
		return fmt.Errorf("rule %s: missing threat_type", r.ID)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if r.RecommendedAction == "" {
		r.RecommendedAction = schema.RecommendMonitor
	}
	// A rule with no match fields would match every event.
	if len(r.Actions) == 0 && len(r.URIContains) == 0 && r.URIPattern == "" &&
		len(r.UserAgentContains) == 0 && len(r.RuleIDContains) == 0 {
		return fmt.Errorf("rule %s: no match fields configured", r.ID)
	}
	if r.URIPattern != "" {
		re, err := regexp.Compile(r.URIPattern)
		if err != nil {
			return fmt.Errorf("rule %s: bad uri_pattern: %w", r.ID, err)
		}
		r.uriRe = re
	}
	return nil
}

// Matches reports whether the event satisfies every configured match
// field of the rule. It also returns the indicator strings that hit.
func (r *Rule) Matches(event *schema.ParsedEvent) (bool, []string) {
	var indicators []string

	if len(r.Actions) > 0 {
		found := false
		for _, a := range r.Actions {
			if event.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
		indicators = append(indicators, "action:"+string(event.Action))
	}

	if len(r.URIContains) > 0 {
		hit := containsAny(event.URI, r.URIContains)
		if hit == "" {
			return false, nil
		}
		indicators = append(indicators, "uri:"+hit)
	}

	if r.uriRe != nil {
		if !r.uriRe.MatchString(event.URI) {
			return false, nil
		}
		indicators = append(indicators, "uri_pattern:"+r.URIPattern)
	}

	if len(r.UserAgentContains) > 0 {
		hit := containsAny(event.UserAgent, r.UserAgentContains)
		if hit == "" {
			return false, nil
		}
		indicators = append(indicators, "user_agent:"+hit)
	}

	if len(r.RuleIDContains) > 0 {
		hit := containsAny(event.RuleMatched, r.RuleIDContains)
		if hit == "" {
			return false, nil
		}
		indicators = append(indicators, "rule:"+hit)
	}

	return true, indicators
}

// containsAny returns the first needle found in s, case-insensitively,
// or "" when none match.
func containsAny(s string, needles []string) string {
	lower := strings.ToLower(s)
	for _, needle := range needles {
		if needle != "" && strings.Contains(lower, strings.ToLower(needle)) {
			return needle
		}
	}
	return ""
}

// LoadRuleSet reads a rule table from a YAML file and compiles it.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	for _, rule := range set.Rules {
		if err := rule.Compile(); err != nil {
			return nil, err
		}
	}

	return &set, nil
}

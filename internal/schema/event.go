// Package schema defines the canonical event schema for WAF Sentinel.
// Raw firewall log records are normalized to ParsedEvent before analysis.
package schema

import (
	"encoding/json"
	"time"
)

// RawLogRecord is one firewall log record as received from the log
// source. The schema is versioned upstream and not controlled here.
type RawLogRecord struct {
	Timestamp         json.Number  `json:"timestamp"`
	Action            string       `json:"action"`
	WebACLID          string       `json:"webaclId"`
	TerminatingRuleID string       `json:"terminatingRuleId"`
	RuleGroupList     []RuleGroup  `json:"ruleGroupList"`
	HTTPRequest       *HTTPRequest `json:"httpRequest"`
}

// RuleGroup describes one rule group evaluated for a request.
type RuleGroup struct {
	RuleGroupID         string           `json:"ruleGroupId"`
	TerminatingRule     *TerminatingRule `json:"terminatingRule"`
	NonTerminatingRules []RuleMatch      `json:"nonTerminatingMatchingRules"`
}

// TerminatingRule identifies the rule that terminated evaluation
// within a rule group.
type TerminatingRule struct {
	RuleID string `json:"ruleId"`
	Action string `json:"action"`
}

// RuleMatch identifies a rule that matched without terminating.
type RuleMatch struct {
	RuleID string `json:"ruleId"`
	Action string `json:"action"`
}

// HTTPRequest carries the request portion of a raw log record.
type HTTPRequest struct {
	ClientIP   string   `json:"clientIp"`
	Country    string   `json:"country"`
	URI        string   `json:"uri"`
	HTTPMethod string   `json:"httpMethod"`
	Headers    []Header `json:"headers"`
}

// Header is one HTTP header name/value pair.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UserAgent returns the User-Agent header value, if present.
func (r *HTTPRequest) UserAgent() string {
	for _, h := range r.Headers {
		if equalFoldASCII(h.Name, "user-agent") {
			return h.Value
		}
	}
	return ""
}

// equalFoldASCII compares ASCII strings case-insensitively; header
// names in firewall logs are ASCII.
func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ParsedEvent is the canonical analysis event. Immutable once
// constructed: only the parser builds one, and only from records that
// carry a source IP, URI, method and a valid action.
type ParsedEvent struct {
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	Action      Action    `json:"action" validate:"required,waf_action"`
	SourceIP    string    `json:"source_ip" validate:"required,ip"`
	Country     string    `json:"country,omitempty" validate:"max=8"`
	Region      string    `json:"region,omitempty" validate:"max=64"`
	UserAgent   string    `json:"user_agent,omitempty" validate:"max=1024"`
	URI         string    `json:"uri" validate:"required,max=4096"`
	HTTPMethod  string    `json:"http_method" validate:"required,max=16"`
	RuleMatched string    `json:"rule_matched,omitempty" validate:"max=512"`
	WebACLID    string    `json:"webacl_id,omitempty" validate:"max=512"`
	RawLog      string    `json:"raw_log,omitempty"`
}

// Action is the firewall's disposition for a request.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionBlock     Action = "BLOCK"
	ActionCount     Action = "COUNT"
	ActionCaptcha   Action = "CAPTCHA"
	ActionChallenge Action = "CHALLENGE"
)

// IsValid checks if the action is a valid value.
func (a Action) IsValid() bool {
	switch a {
	case ActionAllow, ActionBlock, ActionCount, ActionCaptcha, ActionChallenge:
		return true
	}
	return false
}

// Severity is the assessed severity of a threat or campaign.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities low < medium < high < critical.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// IsValid checks if the severity is a valid value.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the numeric order of the severity, 0 for unknown values.
func (s Severity) Rank() int {
	return severityRank[s]
}

// MaxSeverity returns the higher of two severities. Campaign severity
// only ever moves through this, so it never decreases.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ThreatType is the closed classification vocabulary.
type ThreatType string

const (
	ThreatSQLInjection   ThreatType = "sql_injection"
	ThreatXSS            ThreatType = "xss"
	ThreatPathTraversal  ThreatType = "path_traversal"
	ThreatScanner        ThreatType = "scanner"
	ThreatBotActivity    ThreatType = "bot_activity"
	ThreatRateLimit      ThreatType = "rate_limit_abuse"
	ThreatBlockedRequest ThreatType = "blocked_request"
	ThreatUnknown        ThreatType = "unknown"
)

// RecommendedAction is what the classifier suggests operators do.
type RecommendedAction string

const (
	RecommendMonitor RecommendedAction = "monitor"
	RecommendAlert   RecommendedAction = "alert"
	RecommendBlock   RecommendedAction = "block"
)

// ThreatAssessment is the classifier's verdict for one event.
type ThreatAssessment struct {
	ThreatType        ThreatType        `json:"threat_type"`
	Severity          Severity          `json:"severity"`
	Indicators        []string          `json:"indicators,omitempty"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
}

// SchemaVersionCurrent is the current version of the event schema.
const SchemaVersionCurrent = "1.0.0"

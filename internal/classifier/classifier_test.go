package classifier

import (
	"testing"

	"waf-sentinel/internal/schema"
)

func TestClassifyDefaultRules(t *testing.T) {
	c := NewDefault()

	tests := []struct {
		name       string
		event      schema.ParsedEvent
		wantType   schema.ThreatType
		wantSev    schema.Severity
		wantAction schema.RecommendedAction
	}{
		{
			name: "sql injection by rule id",
			event: schema.ParsedEvent{
				Action:      schema.ActionBlock,
				URI:         "/login",
				RuleMatched: "AWSManagedRulesSQLiRuleSet:SQLi_QueryArguments",
			},
			wantType:   schema.ThreatSQLInjection,
			wantSev:    schema.SeverityHigh,
			wantAction: schema.RecommendBlock,
		},
		{
			name: "sql injection by uri even when allowed",
			event: schema.ParsedEvent{
				Action: schema.ActionAllow,
				URI:    "/search?q=1 UNION SELECT password FROM users",
			},
			wantType:   schema.ThreatSQLInjection,
			wantSev:    schema.SeverityHigh,
			wantAction: schema.RecommendBlock,
		},
		{
			name: "xss by rule id",
			event: schema.ParsedEvent{
				Action:      schema.ActionBlock,
				URI:         "/comment",
				RuleMatched: "CrossSiteScripting_Body",
			},
			wantType:   schema.ThreatXSS,
			wantSev:    schema.SeverityHigh,
			wantAction: schema.RecommendBlock,
		},
		{
			name: "xss marker in uri",
			event: schema.ParsedEvent{
				Action: schema.ActionCount,
				URI:    "/page?name=%3Cscript%3Ealert(1)%3C/script%3E",
			},
			wantType:   schema.ThreatXSS,
			wantSev:    schema.SeverityMedium,
			wantAction: schema.RecommendAlert,
		},
		{
			name: "path traversal",
			event: schema.ParsedEvent{
				Action: schema.ActionBlock,
				URI:    "/static/../../etc/passwd",
			},
			wantType:   schema.ThreatPathTraversal,
			wantSev:    schema.SeverityHigh,
			wantAction: schema.RecommendBlock,
		},
		{
			name: "sensitive path probe",
			event: schema.ParsedEvent{
				Action: schema.ActionAllow,
				URI:    "/.env",
			},
			wantType:   schema.ThreatScanner,
			wantSev:    schema.SeverityMedium,
			wantAction: schema.RecommendAlert,
		},
		{
			name: "scanner user agent",
			event: schema.ParsedEvent{
				Action:    schema.ActionAllow,
				URI:       "/",
				UserAgent: "sqlmap/1.7-dev",
			},
			wantType:   schema.ThreatScanner,
			wantSev:    schema.SeverityMedium,
			wantAction: schema.RecommendAlert,
		},
		{
			name: "bot challenge",
			event: schema.ParsedEvent{
				Action: schema.ActionCaptcha,
				URI:    "/checkout",
			},
			wantType:   schema.ThreatBotActivity,
			wantSev:    schema.SeverityMedium,
			wantAction: schema.RecommendMonitor,
		},
		{
			name: "rate limit rule",
			event: schema.ParsedEvent{
				Action:      schema.ActionBlock,
				URI:         "/api/items",
				RuleMatched: "RateBasedRule-api",
			},
			wantType:   schema.ThreatRateLimit,
			wantSev:    schema.SeverityMedium,
			wantAction: schema.RecommendAlert,
		},
		{
			name: "generic block",
			event: schema.ParsedEvent{
				Action:      schema.ActionBlock,
				URI:         "/",
				RuleMatched: "SomeManagedRule",
			},
			wantType:   schema.ThreatBlockedRequest,
			wantSev:    schema.SeverityLow,
			wantAction: schema.RecommendMonitor,
		},
		{
			name: "no match degrades to unknown",
			event: schema.ParsedEvent{
				Action: schema.ActionAllow,
				URI:    "/healthz",
			},
			wantType:   schema.ThreatUnknown,
			wantSev:    schema.SeverityLow,
			wantAction: schema.RecommendMonitor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(&tt.event)
			if got.ThreatType != tt.wantType {
				t.Errorf("ThreatType = %q, want %q", got.ThreatType, tt.wantType)
			}
			if got.Severity != tt.wantSev {
				t.Errorf("Severity = %q, want %q", got.Severity, tt.wantSev)
			}
			if got.RecommendedAction != tt.wantAction {
				t.Errorf("RecommendedAction = %q, want %q", got.RecommendedAction, tt.wantAction)
			}
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	c := NewDefault()

	// A blocked request with an SQLi rule ID matches the SQLi rule, not
	// the later generic-block rule.
	event := &schema.ParsedEvent{
		Action:      schema.ActionBlock,
		URI:         "/login",
		RuleMatched: "SQLi_Body",
	}
	got := c.Classify(event)
	if got.ThreatType != schema.ThreatSQLInjection {
		t.Errorf("ThreatType = %q, want %q", got.ThreatType, schema.ThreatSQLInjection)
	}
}

func TestClassifyIndicators(t *testing.T) {
	c := NewDefault()

	event := &schema.ParsedEvent{
		Action:      schema.ActionBlock,
		URI:         "/login",
		RuleMatched: "SQLi_Body",
	}
	got := c.Classify(event)
	if len(got.Indicators) == 0 {
		t.Fatal("Indicators empty, want at least one")
	}
}

func TestClassifyDisabledRulesSkipped(t *testing.T) {
	set := &RuleSet{
		Version: "test",
		Rules: []*Rule{
			{
				ID:         "disabled",
				Enabled:    false,
				ThreatType: schema.ThreatSQLInjection,
				Severity:   schema.SeverityHigh,
				Actions:    []schema.Action{schema.ActionBlock},
			},
		},
	}

	c, err := New(set)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := c.Classify(&schema.ParsedEvent{Action: schema.ActionBlock, URI: "/"})
	if got.ThreatType != schema.ThreatUnknown {
		t.Errorf("ThreatType = %q, want unknown for disabled rule", got.ThreatType)
	}
}

func TestRuleCompileValidation(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid", Rule{ID: "r", ThreatType: schema.ThreatXSS, Severity: schema.SeverityLow, Actions: []schema.Action{schema.ActionBlock}}, false},
		{"missing id", Rule{ThreatType: schema.ThreatXSS, Severity: schema.SeverityLow}, true},
		{"missing threat type", Rule{ID: "r", Severity: schema.SeverityLow}, true},
		{"bad severity", Rule{ID: "r", ThreatType: schema.ThreatXSS, Severity: "extreme"}, true},
		{"no match fields", Rule{ID: "r", ThreatType: schema.ThreatXSS, Severity: schema.SeverityLow}, true},
		{"bad pattern", Rule{ID: "r", ThreatType: schema.ThreatXSS, Severity: schema.SeverityLow, URIPattern: "("}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Compile()
			if (err != nil) != tt.wantErr {
				t.Errorf("Compile() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

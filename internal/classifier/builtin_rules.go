package classifier

import "waf-sentinel/internal/schema"

// DefaultRuleSet returns the built-in classification table. It is a
// conservative default pending an authoritative rule list; deployments
// override it with a YAML table via LoadRuleSet.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version: "1.0.0",
		Rules: []*Rule{
			{
				ID:                "sqli-rule-match",
				Description:       "Request blocked by an SQL injection rule",
				Enabled:           true,
				ThreatType:        schema.ThreatSQLInjection,
				Severity:          schema.SeverityHigh,
				RecommendedAction: schema.RecommendBlock,
				Actions:           []schema.Action{schema.ActionBlock},
				RuleIDContains:    []string{"SQLi", "SQLInjection", "SQL_Injection"},
			},
			{
				ID:                "sqli-uri",
				Description:       "SQL metacharacters in the request URI",
				Enabled:           true,
				ThreatType:        schema.ThreatSQLInjection,
				Severity:          schema.SeverityHigh,
				RecommendedAction: schema.RecommendBlock,
				URIContains:       []string{"union select", "union+select", "or 1=1", "or+1=1", "'--", "information_schema"},
			},
			{
				ID:                "xss-rule-match",
				Description:       "Request blocked by a cross-site scripting rule",
				Enabled:           true,
				ThreatType:        schema.ThreatXSS,
				Severity:          schema.SeverityHigh,
				RecommendedAction: schema.RecommendBlock,
				Actions:           []schema.Action{schema.ActionBlock},
				RuleIDContains:    []string{"XSS", "CrossSiteScripting"},
			},
			{
				ID:                "xss-uri",
				Description:       "Script injection markers in the request URI",
				Enabled:           true,
				ThreatType:        schema.ThreatXSS,
				Severity:          schema.SeverityMedium,
				RecommendedAction: schema.RecommendAlert,
				URIContains:       []string{"<script", "%3cscript", "javascript:", "onerror="},
			},
			{
				ID:                "path-traversal",
				Description:       "Directory traversal sequences in the request URI",
				Enabled:           true,
				ThreatType:        schema.ThreatPathTraversal,
				Severity:          schema.SeverityHigh,
				RecommendedAction: schema.RecommendBlock,
				URIContains:       []string{"../", "..%2f", "..\\", "/etc/passwd", "%2e%2e%2f"},
			},
			{
				ID:                "sensitive-path-probe",
				Description:       "Probing for configuration or credential files",
				Enabled:           true,
				ThreatType:        schema.ThreatScanner,
				Severity:          schema.SeverityMedium,
				RecommendedAction: schema.RecommendAlert,
				URIContains:       []string{".env", "wp-login.php", "phpmyadmin", "/.git", "web.config"},
			},
			{
				ID:                "scanner-user-agent",
				Description:       "Known vulnerability scanner user agent",
				Enabled:           true,
				ThreatType:        schema.ThreatScanner,
				Severity:          schema.SeverityMedium,
				RecommendedAction: schema.RecommendAlert,
				UserAgentContains: []string{"sqlmap", "nikto", "nessus", "nmap", "masscan", "dirbuster", "gobuster", "wpscan"},
			},
			{
				ID:                "bot-challenge",
				Description:       "Request failed a bot control challenge",
				Enabled:           true,
				ThreatType:        schema.ThreatBotActivity,
				Severity:          schema.SeverityMedium,
				RecommendedAction: schema.RecommendMonitor,
				Actions:           []schema.Action{schema.ActionCaptcha, schema.ActionChallenge},
			},
			{
				ID:                "rate-limit",
				Description:       "Request blocked by a rate-based rule",
				Enabled:           true,
				ThreatType:        schema.ThreatRateLimit,
				Severity:          schema.SeverityMedium,
				RecommendedAction: schema.RecommendAlert,
				Actions:           []schema.Action{schema.ActionBlock},
				RuleIDContains:    []string{"RateLimit", "RateBased", "rate-limit"},
			},
			{
				ID:                "generic-block",
				Description:       "Request blocked by a managed rule with no specific signature",
				Enabled:           true,
				ThreatType:        schema.ThreatBlockedRequest,
				Severity:          schema.SeverityLow,
				RecommendedAction: schema.RecommendMonitor,
				Actions:           []schema.Action{schema.ActionBlock},
			},
		},
	}
}

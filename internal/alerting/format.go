package alerting

import (
	"fmt"
	"strings"
	"time"
)

// FormatText renders the plain-text alert message used for topic
// publishing and the persisted alert description.
func FormatText(alert *Alert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s threat from %s", strings.ToUpper(string(alert.Severity)), alert.ThreatType, alert.SourceIP)
	if alert.Country != "" {
		fmt.Fprintf(&b, " (%s)", alert.Country)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Target: %s\n", alert.URI)
	fmt.Fprintf(&b, "Time: %s\n", alert.Timestamp.UTC().Format(time.RFC3339))

	if alert.IsCampaign {
		fmt.Fprintf(&b, "Campaign: yes (%d events", alert.EventCount)
		if alert.CampaignID != "" {
			fmt.Fprintf(&b, ", id %s", alert.CampaignID)
		}
		b.WriteString(")\n")
	} else if alert.EventCount > 1 {
		fmt.Fprintf(&b, "Events: %d\n", alert.EventCount)
	}

	if len(alert.Indicators) > 0 {
		fmt.Fprintf(&b, "Indicators: %s\n", strings.Join(alert.Indicators, ", "))
	}

	fmt.Fprintf(&b, "Recommended action: %s", alert.RecommendedAction)

	return b.String()
}

// Title renders the short alert headline.
func Title(alert *Alert) string {
	if alert.IsCampaign {
		return fmt.Sprintf("Attack campaign from %s (%s)", alert.SourceIP, alert.ThreatType)
	}
	return fmt.Sprintf("WAF threat detected: %s from %s", alert.ThreatType, alert.SourceIP)
}

// severityColor maps severity to the webhook attachment color.
func severityColor(alert *Alert) string {
	switch alert.Severity {
	case "critical":
		return "#FF0000"
	case "high":
		return "#FFA500"
	case "medium":
		return "#FFFF00"
	case "low":
		return "#00FF00"
	default:
		return "#808080"
	}
}

// webhookPayload builds the structured-blocks chat message. Both text
// and block formats carry severity, threat type, source, target,
// timestamp, campaign state, indicators and the recommended action.
func webhookPayload(alert *Alert) map[string]interface{} {
	fields := []map[string]interface{}{
		{"title": "Severity", "value": strings.ToUpper(string(alert.Severity)), "short": true},
		{"title": "Threat Type", "value": string(alert.ThreatType), "short": true},
		{"title": "Source IP", "value": sourceLabel(alert), "short": true},
		{"title": "Target URI", "value": alert.URI, "short": true},
		{"title": "Time", "value": alert.Timestamp.UTC().Format(time.RFC3339), "short": true},
		{"title": "Recommended Action", "value": string(alert.RecommendedAction), "short": true},
	}

	if alert.IsCampaign {
		fields = append(fields, map[string]interface{}{
			"title": "Campaign", "value": fmt.Sprintf("active, %d events", alert.EventCount), "short": true,
		})
	}

	if len(alert.Indicators) > 0 {
		fields = append(fields, map[string]interface{}{
			"title": "Indicators", "value": strings.Join(alert.Indicators, ", "), "short": false,
		})
	}

	return map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":  severityColor(alert),
				"title":  Title(alert),
				"fields": fields,
				"footer": fmt.Sprintf("Alert ID: %s", alert.ID.String()[:8]),
				"ts":     alert.Timestamp.Unix(),
			},
		},
	}
}

func sourceLabel(alert *Alert) string {
	if alert.Country != "" {
		return fmt.Sprintf("%s (%s)", alert.SourceIP, alert.Country)
	}
	return alert.SourceIP
}

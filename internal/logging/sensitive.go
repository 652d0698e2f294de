package logging

import "strings"

// SensitiveFields contains field names that should be masked in logs.
var SensitiveFields = map[string]bool{
	"password":          true,
	"secret":            true,
	"token":             true,
	"api_key":           true,
	"apikey":            true,
	"access_token":      true,
	"credentials":       true,
	"authorization":     true,
	"webhook_url":       true,
	"webhook":           true,
	"topic_arn":         true,
	"secret_access_key": true,
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// MaskSensitiveValue masks a value if the field name is sensitive.
func MaskSensitiveValue(fieldName, value string) string {
	if value == "" {
		return value
	}

	lowerField := strings.ToLower(fieldName)

	if SensitiveFields[lowerField] {
		return MaskedValue
	}

	for sensitive := range SensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return MaskedValue
		}
	}

	return value
}

// MaskURL masks everything after the host portion of a URL so webhook
// targets can appear in logs without their tokens.
func MaskURL(url string) string {
	if url == "" {
		return url
	}

	idx := strings.Index(url, "://")
	rest := url
	prefix := ""
	if idx >= 0 {
		prefix = url[:idx+3]
		rest = url[idx+3:]
	}

	if slash := strings.Index(rest, "/"); slash >= 0 {
		return prefix + rest[:slash] + "/" + MaskedValue
	}
	return url
}

package logging

import "testing"

func TestMaskSensitiveValue(t *testing.T) {
	tests := []struct {
		field string
		value string
		want  string
	}{
		{"password", "hunter2", MaskedValue},
		{"Webhook_URL", "https://hooks.example.com/T123/secret", MaskedValue},
		{"topic_arn", "arn:aws:sns:us-east-1:123456789012:alerts", MaskedValue},
		{"redis_password", "s3cret", MaskedValue},
		{"source_ip", "203.0.113.9", "203.0.113.9"},
		{"password", "", ""},
	}

	for _, tt := range tests {
		if got := MaskSensitiveValue(tt.field, tt.value); got != tt.want {
			t.Errorf("MaskSensitiveValue(%q, %q) = %q, want %q", tt.field, tt.value, got, tt.want)
		}
	}
}

func TestMaskURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://hooks.example.com/services/T123/B456/secret", "https://hooks.example.com/" + MaskedValue},
		{"https://hooks.example.com", "https://hooks.example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskURL(tt.in); got != tt.want {
			t.Errorf("MaskURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

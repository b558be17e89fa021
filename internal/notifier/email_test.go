package notifier

import (
	"strings"
	"testing"
)

func TestEmailConfigValidate(t *testing.T) {
	valid := EmailConfig{
		Host:       "smtp.example.com",
		Port:       587,
		From:       "alerts@example.com",
		Recipients: []string{"team@example.com"},
	}

	tests := []struct {
		name    string
		mutate  func(*EmailConfig)
		wantErr bool
	}{
		{"valid", func(c *EmailConfig) {}, false},
		{"missing host", func(c *EmailConfig) { c.Host = "" }, true},
		{"missing port", func(c *EmailConfig) { c.Port = 0 }, true},
		{"missing from", func(c *EmailConfig) { c.From = "" }, true},
		{"no recipients", func(c *EmailConfig) { c.Recipients = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"alerts@example.com", "alerts@example.com"},
		{"DataLens Alerts <alerts@example.com>", "alerts@example.com"},
		{"<alerts@example.com>", "alerts@example.com"},
	}

	for _, tt := range tests {
		if got := extractEmail(tt.addr); got != tt.want {
			t.Errorf("extractEmail(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestHTMLBody(t *testing.T) {
	got := htmlBody("value 5 > 3\nquery: SELECT count(*)")
	if !strings.Contains(got, "<br>") {
		t.Error("expected line breaks converted to <br>")
	}
	if !strings.Contains(got, "&gt;") {
		t.Error("expected HTML metacharacters escaped")
	}
}

func TestBuildMIMEMessage(t *testing.T) {
	n := &EmailNotifier{config: EmailConfig{
		Host:       "smtp.example.com",
		Port:       587,
		From:       "alerts@example.com",
		Recipients: []string{"a@example.com", "b@example.com"},
	}}

	msg := string(n.buildMIMEMessage("Alert triggered", "plain body", "<p>html body</p>"))

	for _, want := range []string{
		"From: alerts@example.com",
		"To: a@example.com, b@example.com",
		"Subject: Alert triggered",
		"Content-Type: multipart/alternative",
		"text/plain; charset=UTF-8",
		"text/html; charset=UTF-8",
		"plain body",
		"<p>html body</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

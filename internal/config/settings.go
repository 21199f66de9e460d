package config

import (
	"fmt"
	"io"
	"strings"
)

// Setting describes one configuration value for the diagnostics report.
type Setting struct {
	Name     string
	Required bool
	Secret   bool
	Value    string
}

// Settings returns the diagnostics view of the loaded configuration.
func (c *Config) Settings() []Setting {
	return []Setting{
		{Name: "QSTASH_TOKEN", Required: true, Secret: true, Value: c.QStash.Token},
		{Name: "QSTASH_CURRENT_SIGNING_KEY", Required: true, Secret: true, Value: c.QStash.CurrentSigningKey},
		{Name: "QSTASH_NEXT_SIGNING_KEY", Required: true, Secret: true, Value: c.QStash.NextSigningKey},
		{Name: "HOOKFLOW_DOMAIN", Required: true, Value: c.QStash.Domain},
		{Name: "HOOKFLOW_WEBHOOK_PATH", Value: c.QStash.WebhookPath},
		{Name: "DATABASE_URL", Secret: true, Value: c.Database.URL},
		{Name: "HOOKFLOW_API_KEY", Secret: true, Value: c.API.Key},
		{Name: "HOOKFLOW_API_AUTH_REQUIRED", Value: fmt.Sprintf("%t", c.API.AuthRequired)},
		{Name: "HOOKFLOW_PORT", Value: fmt.Sprintf("%d", c.Server.Port)},
		{Name: "HOOKFLOW_CLOCK_SKEW_SECONDS", Value: fmt.Sprintf("%d", c.QStash.ClockSkewSeconds)},
		{Name: "HOOKFLOW_EXECUTION_TIMEOUT_SECONDS", Value: fmt.Sprintf("%d", c.Engine.ExecutionTimeoutSeconds)},
	}
}

// WriteSettings prints the diagnostics report. Secrets are masked so the
// output is safe to paste into bug reports.
func (c *Config) WriteSettings(w io.Writer) {
	fmt.Fprintln(w, "hookflow settings")
	fmt.Fprintln(w)
	for _, s := range c.Settings() {
		req := "optional"
		if s.Required {
			req = "required"
		}
		fmt.Fprintf(w, "  %-36s %-9s %s\n", s.Name, req, maskValue(s.Value, s.Secret))
	}
}

func maskValue(value string, secret bool) string {
	if value == "" {
		return "unset"
	}
	if !secret {
		return value
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "..." + value[len(value)-4:]
}

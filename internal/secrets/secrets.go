// Package secrets holds the token and credential patterns shared by the audit
// checks, the credential monitor and the skill scanner.
package secrets

import (
	"bytes"
	"regexp"
	"strings"
)

// Confidence grades how likely a match is a live credential.
type Confidence int

const (
	// ConfidenceMedium is a generic "key = value" assignment that looks secret.
	ConfidenceMedium Confidence = iota + 1

	// ConfidenceHigh is a provider-specific token format.
	ConfidenceHigh
)

// Rule is a named secret pattern.
type Rule struct {
	ID          string
	Description string
	Confidence  Confidence
	Pattern     *regexp.Regexp
}

// Match is one rule hit inside scanned content.
type Match struct {
	Rule     Rule
	Line     int
	Value    string
	Redacted string
}

// Rules is the catalog, ordered from most to least specific. A line matched
// by a high-confidence rule is not reported again by the generic rule.
var Rules = []Rule{
	{ID: "anthropic-api-key", Description: "Anthropic API key", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{20,}`)},
	{ID: "openai-api-key", Description: "OpenAI API key", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9]{20,}`)},
	{ID: "aws-access-key", Description: "AWS access key id", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{ID: "github-token", Description: "GitHub token", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{ID: "slack-token", Description: "Slack token", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9\-]{10,}`)},
	{ID: "google-api-key", Description: "Google API key", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`)},
	{ID: "telegram-bot-token", Description: "Telegram bot token", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`\b[0-9]{8,10}:AA[0-9A-Za-z_\-]{33}\b`)},
	{ID: "private-key", Description: "PEM private key", Confidence: ConfidenceHigh,
		Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{ID: "generic-secret", Description: "secret-looking assignment", Confidence: ConfidenceMedium,
		Pattern: regexp.MustCompile(`(?i)(?:api[_-]?key|secret|token|passw(?:or)?d|bearer)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.+/]{16,})`)},
}

// ScanLine returns the matches on a single line. Line numbers are left zero.
func ScanLine(line string) []Match {
	var matches []Match
	specific := false
	for _, r := range Rules {
		if r.Confidence == ConfidenceMedium && specific {
			continue
		}
		loc := r.Pattern.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		value := line[loc[0]:loc[1]]
		if len(loc) >= 4 && loc[2] >= 0 {
			value = line[loc[2]:loc[3]]
		}
		if r.Confidence == ConfidenceMedium && isPlaceholder(value) {
			continue
		}
		if r.Confidence == ConfidenceHigh {
			specific = true
		}
		matches = append(matches, Match{Rule: r, Value: value, Redacted: Redact(value)})
	}
	return matches
}

// Scan returns every match in data with 1-based line numbers. Lines have no
// length limit.
func Scan(data []byte) []Match {
	var matches []Match
	for n := 1; len(data) > 0; n++ {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		for _, m := range ScanLine(string(bytes.TrimSuffix(line, []byte{'\r'}))) {
			m.Line = n
			matches = append(matches, m)
		}
	}
	return matches
}

// Redact keeps a short prefix of a secret and masks the rest.
func Redact(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8)
}

// isPlaceholder filters environment references and obvious dummy values.
func isPlaceholder(v string) bool {
	lower := strings.ToLower(v)
	switch {
	case strings.HasPrefix(v, "${"), strings.HasPrefix(v, "$"):
		return true
	case strings.Contains(lower, "xxxx"), strings.Contains(lower, "changeme"),
		strings.Contains(lower, "placeholder"), strings.Contains(lower, "example"),
		strings.Contains(lower, "your_"), strings.Contains(lower, "your-"):
		return true
	}
	return false
}

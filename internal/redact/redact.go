// Package redact strips sensitive fragments from strings before they
// reach logs or error responses. Docking requests carry caller-supplied
// callback URLs that often embed bearer tokens or signed query strings,
// and store errors can echo database connection strings.
package redact

import (
	"net/url"
	"regexp"
)

// Redaction placeholders.
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
)

var (
	// Database connection strings with inline credentials.
	dbConnRegex = regexp.MustCompile(`(?i)(postgres|postgresql|mysql|redis|amqp)://[^@\s]+@`)

	// Credentials and tokens in key=value or key: value form.
	passwordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`)
	apiKeyRegex   = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|signature|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// Local filesystem paths, e.g. the protein cache or results dirs.
	unixPathRegex = regexp.MustCompile(`(/[\w.-]+){2,}`)

	patterns = map[*regexp.Regexp]string{
		dbConnRegex:   RedactedCredentialPlaceholder,
		passwordRegex: RedactedCredentialPlaceholder,
		apiKeyRegex:   RedactedKeyPlaceholder,
		unixPathRegex: RedactedPathPlaceholder,
	}
)

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for pattern, placeholder := range patterns {
		result = pattern.ReplaceAllString(result, placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// URL strips userinfo and query values from a URL so callback targets
// can be logged without leaking embedded tokens. Unparseable input is
// fully redacted.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return RedactedCredentialPlaceholder
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

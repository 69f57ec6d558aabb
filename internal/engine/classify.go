package engine

import (
	"regexp"
	"strings"

	"github.com/tfgate/tfgate/internal/toolerr"
)

// Failure patterns matched against stderr, checked in order: auth first,
// then conflicts, then configuration problems.
var (
	authPatterns = []string{
		"invalidclienttokenid",
		"signaturedoesnotmatch",
		"authfailure",
		"unauthorizedoperation",
		"no valid credential sources",
		"error validating provider credentials",
		"expiredtoken",
	}
	conflictPatterns = []string{
		"error acquiring the state lock",
		"state lock",
		"alreadyexists",
		"already exists",
		"resourceinuse",
		"conflict",
	}
	configPatterns = []string{
		"error: invalid",
		"error: unsupported argument",
		"error: missing required argument",
		"error: reference to undeclared",
		"error: duplicate",
		"configuration is invalid",
		"syntax error",
		"error: argument or block definition required",
	}
)

// classifyFailure maps a non-zero exit to a stable error kind using the
// exit code and stderr content.
func classifyFailure(exitCode int, stderr string) toolerr.Kind {
	lowered := strings.ToLower(stderr)

	for _, p := range authPatterns {
		if strings.Contains(lowered, p) {
			return toolerr.KindProviderAuthError
		}
	}
	for _, p := range conflictPatterns {
		if strings.Contains(lowered, p) {
			return toolerr.KindResourceConflict
		}
	}
	for _, p := range configPatterns {
		if strings.Contains(lowered, p) {
			return toolerr.KindConfigurationError
		}
	}
	// 126/127 come from a shell wrapper: the configured binary is missing
	// or not executable.
	if exitCode == 126 || exitCode == 127 {
		return toolerr.KindConfigurationError
	}
	return toolerr.KindUnknownExecution
}

// Secret-looking substrings stripped from any externally visible text.
var redactions = []struct {
	re          *regexp.Regexp
	replacement string
}{
	// AWS access key ids
	{regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`), "[REDACTED-KEY-ID]"},
	// key = value style secret assignments
	{regexp.MustCompile(`(?i)\b(secret[_a-z]*|password|token|access[_a-z]*key[_a-z]*|private[_a-z]*key)\b(\s*[:=]\s*)\S+`), "$1$2[REDACTED]"},
	// bearer tokens
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`), "Bearer [REDACTED]"},
}

// Redact removes secret-looking substrings from diagnostic text before it
// crosses the protocol boundary.
func Redact(s string) string {
	for _, r := range redactions {
		s = r.re.ReplaceAllString(s, r.replacement)
	}
	return s
}

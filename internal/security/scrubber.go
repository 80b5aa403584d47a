// internal/security/scrubber.go
package security

import "regexp"

var (
	// api_key=<value> in query strings and form bodies
	apiKeyParamPattern = regexp.MustCompile(`(?i)(api_key|apikey|access_token|write_key)=[^&\s"]+`)
	bearerPattern      = regexp.MustCompile(`Bearer\s+\S{20,}`)
	// Long hex strings (32+ chars) are likely keys
	hexKeyPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

// ScrubOutput redacts credentials from command output and request URLs before logging.
func ScrubOutput(output string) string {
	result := apiKeyParamPattern.ReplaceAllString(output, "$1=[REDACTED]")
	result = bearerPattern.ReplaceAllString(result, "Bearer [REDACTED]")
	result = hexKeyPattern.ReplaceAllString(result, "[REDACTED]")
	return result
}

package sdkerr

import (
	"fmt"
	"net/http"
	"regexp"
)

// RedactedToken is substituted for any value identified as sensitive.
const RedactedToken = "<redacted>"

// sensitiveHeaderPattern matches header names that must never be echoed back
// in a debug format, a log line, or an error message.
var sensitiveHeaderPattern = regexp.MustCompile(`(?i)(authorization|api[_-]?key|token|secret)`)

// IsSensitiveHeader reports whether name is subject to redaction.
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaderPattern.MatchString(name)
}

// RedactHeaders returns a copy of h with sensitive values replaced by
// RedactedToken. The original header set is left untouched.
func RedactHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		if IsSensitiveHeader(name) {
			out[name] = []string{RedactedToken}
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		out[name] = copied
	}
	return out
}

// RedactHeaderMap is the map[string]string equivalent of RedactHeaders, used
// where configuration stores headers as a plain map rather than
// http.Header.
func RedactHeaderMap(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for name, value := range h {
		if IsSensitiveHeader(name) {
			out[name] = RedactedToken
			continue
		}
		out[name] = value
	}
	return out
}

// FormatHeaders renders headers for inclusion in a debug string, redacting
// sensitive values. Used by ClientConfig's String()/GoString() so that
// fmt.Sprintf("%v", cfg) or fmt.Sprintf("%#v", cfg) never reveals key
// material.
func FormatHeaders(h map[string]string) string {
	return fmt.Sprintf("%v", RedactHeaderMap(h))
}

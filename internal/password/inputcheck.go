package password

import (
	"regexp"
	"strings"
)

// Defensive input predicates for free-text admin fields. These never replace
// parameterized queries; they keep obvious payloads out of names and
// descriptions that end up rendered elsewhere.

var sqlSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|alter|truncate)\s+(from|into|table|database)\b`),
	regexp.MustCompile(`(?i)\bor\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i);\s*(drop|delete|truncate)\b`),
	regexp.MustCompile(`--\s*$`),
	regexp.MustCompile(`(?i)\bexec(\s|\()+(s|x)p\w+`),
}

var xssSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)<\s*iframe`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)on(load|error|click|mouseover|focus)\s*=`),
	regexp.MustCompile(`(?i)<\s*img[^>]+src\s*=`),
}

// ContainsSQLInjection reports whether s matches a known SQL-injection signature.
func ContainsSQLInjection(s string) bool {
	for _, re := range sqlSignatures {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ContainsXSS reports whether s matches a known cross-site-scripting signature.
func ContainsXSS(s string) bool {
	for _, re := range xssSignatures {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// SafeText reports whether a free-text field is free of injection signatures.
func SafeText(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	return !ContainsSQLInjection(s) && !ContainsXSS(s)
}

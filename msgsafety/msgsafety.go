// Package msgsafety inspects a sign-in challenge before it is shown to the
// user, flagging text that looks like something other than a login.
package msgsafety

import (
	"fmt"
	"regexp"
	"strings"
)

// SuspiciousHexLength is the shortest 0x-prefixed hex run treated as an
// embedded transaction payload
const SuspiciousHexLength = 70

var (
	longHex = regexp.MustCompile(fmt.Sprintf(`0[xX][0-9a-fA-F]{%d,}`, SuspiciousHexLength))

	dangerousVerbs = regexp.MustCompile(`(?i)\b(transfer|approve|setApproval|swap|permit|multicall)\b`)

	benignPhrases = []string{
		"will not trigger a blockchain transaction",
		"does not authorize any transaction",
		"no transaction will be sent",
	}
)

// Report is the outcome of a safety check
type Report struct {
	Safe   bool     `json:"safe"`
	Issues []string `json:"issues"`
}

// Check runs every rule and collects all issues
func Check(message, domain string) Report {
	var issues []string

	if strings.TrimSpace(message) == "" {
		issues = append(issues, "message is empty")
	}

	if longHex.MatchString(message) {
		issues = append(issues, "message contains a long hex payload that may encode a transaction")
	}

	lower := strings.ToLower(message)
	switch d := strings.ToLower(strings.TrimSpace(domain)); {
	case d == "":
		issues = append(issues, "expected domain is unknown")
	case !strings.Contains(lower, d):
		issues = append(issues, fmt.Sprintf("message is not bound to domain %q", domain))
	}

	if verbs := dangerousVerbs.FindAllString(message, -1); len(verbs) > 0 && !hasBenignFraming(lower) {
		issues = append(issues, fmt.Sprintf("message contains transaction verbs: %s", strings.Join(dedupe(verbs), ", ")))
	}

	return Report{Safe: len(issues) == 0, Issues: issues}
}

func hasBenignFraming(lower string) bool {
	for _, p := range benignPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := words[:0:0]
	for _, w := range words {
		k := strings.ToLower(w)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

package interrogate

import (
	"regexp"
	"strings"
)

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bi'?m\s+([a-z]+)`),
	regexp.MustCompile(`(?i)\bi\s+am\s+([a-z]+)`),
	regexp.MustCompile(`(?i)\bmy\s+name\s+is\s+([a-z]+)`),
	regexp.MustCompile(`(?i)\bthis\s+is\s+([a-z]+)`),
}

// Words that match the patterns but are never names ("I'm here", "I'm just
// looking", "I'm not sure").
var nameStopwords = map[string]bool{
	"here": true, "just": true, "the": true, "from": true, "with": true,
	"not": true, "sure": true, "sorry": true, "only": true, "really": true,
	"waiting": true, "looking": true, "going": true, "leaving": true,
}

// ExtractClaimedName pulls a stated identity out of an utterance, or returns
// "" when nothing plausible is found.
func ExtractClaimedName(text string) string {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.ToLower(m[1])
		if len(candidate) <= 2 || nameStopwords[candidate] {
			continue
		}
		return strings.ToUpper(candidate[:1]) + candidate[1:]
	}
	return ""
}

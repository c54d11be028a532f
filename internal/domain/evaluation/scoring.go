package evaluation

import (
	"regexp"
	"strings"
)

var helpfulIndicators = []string{
	"how to", "steps", "process", "contact", "call", "visit",
	"website", "online", "app", "login", "account", "customer service",
	"support", "help", "assist", "guide", "instructions",
}

var citationIndicators = []string{
	"according to", "policy states", "terms and conditions",
	"card agreement", "fee schedule", "interest rate",
	"annual fee", "late payment fee", "foreign transaction fee",
	"credit limit", "apr", "grace period", "billing cycle",
	"customer service", "support team", "fraud department",
}

var numberPattern = regexp.MustCompile(`\d+\.?\d*%?`)

// ScoreAccuracy rates the share of expected keywords present in the answer, 1 to 5.
func ScoreAccuracy(answer string, expected []string) int {
	if len(expected) == 0 {
		return 1
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, kw := range expected {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	share := float64(hits) / float64(len(expected))
	switch {
	case share >= 0.8:
		return 5
	case share >= 0.6:
		return 4
	case share >= 0.4:
		return 3
	case share >= 0.2:
		return 2
	default:
		return 1
	}
}

// ScoreHelpfulness rates actionable wording and answer length, 1 to 5.
func ScoreHelpfulness(answer string) int {
	hits := countIndicators(answer, helpfulIndicators)
	words := len(strings.Fields(answer))
	switch {
	case hits >= 3 && words >= 50:
		return 5
	case hits >= 2 && words >= 30:
		return 4
	case hits >= 1 && words >= 20:
		return 3
	case words >= 10:
		return 2
	default:
		return 1
	}
}

// ScoreCitation rates references to policies and concrete figures, 1 to 5.
func ScoreCitation(answer string) int {
	hits := countIndicators(answer, citationIndicators)
	numbers := len(numberPattern.FindAllString(answer, -1))
	switch {
	case hits >= 3 && numbers >= 2:
		return 5
	case hits >= 2 && numbers >= 1:
		return 4
	case hits >= 1:
		return 3
	case numbers >= 1:
		return 2
	default:
		return 1
	}
}

func countIndicators(answer string, indicators []string) int {
	lower := strings.ToLower(answer)
	n := 0
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			n++
		}
	}
	return n
}

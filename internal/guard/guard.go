// Package guard detects prompt-injection attempts in inbound chat text before
// it is sent to any upstream model.
package guard

import "regexp"

// patterns are evaluated in order; the first match wins.
var patterns = compile(
	`ignore\s+(all\s+|any\s+|the\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|messages)`,
	`disregard\s+(all\s+|any\s+|the\s+)?(previous|prior|above|earlier|your)\s+(instructions|prompts|rules|programming)`,
	`forget\s+(everything|all\s+(previous|prior)|your\s+instructions)`,
	`\byou\s+are\s+now\b`,
	`\bjailbreak`,
	`\bDAN\s+mode\b`,
	`\bdo\s+anything\s+now\b`,
	`(reveal|show|print|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions)`,
	`act\s+as\s+.{0,40}(without|with\s+no)\s+(restrictions|limits|filters|rules)`,
	`pretend\s+(you\s+are|to\s+be)\s+.{0,40}(unrestricted|unfiltered|evil)`,
	`new\s+system\s+prompt`,
	`<\|im_(start|end)\|>`,
	`<\|endoftext\|>`,
	`\[/?INST\]`,
	`<</?SYS>>`,
	`###\s*(system|instruction)`,
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + expr)
	}
	return out
}

// IsInjectionAttempt reports whether text matches any known injection pattern.
func IsInjectionAttempt(text string) bool {
	_, ok := Match(text)
	return ok
}

// Match returns the first pattern text matches, for logging.
func Match(text string) (string, bool) {
	for _, re := range patterns {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}

// Refusal is the canned answer returned in place of a blocked request.
const Refusal = "I can only help with questions about Mangesh's work, skills, and projects. " +
	"Let's keep the conversation on that!"

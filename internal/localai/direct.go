package localai

import (
	"fmt"
	"regexp"
	"strings"
)

// Action is a client-side action attached to a direct answer.
type Action struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Direct is the answer to a direct command.
type Direct struct {
	Answer   string
	Source   string
	Model    string
	Category string
	Type     string
	Action   *Action
}

var (
	resumeRe = regexp.MustCompile(`(?i)\b(resume|cv|download|curriculum vitae)\b`)
	timeRe   = regexp.MustCompile(`(?i)\btime\b`)
	dateRe   = regexp.MustCompile(`(?i)\b(date|today)\b`)
)

// DirectCommand answers résumé, time, date and arithmetic requests. ok is false when
// message is not a direct command.
func (r *Responder) DirectCommand(message string) (*Direct, bool) {
	lower := strings.ToLower(message)
	now := r.now()

	switch {
	case resumeRe.MatchString(message):
		return &Direct{
			Answer: fmt.Sprintf("📄 You can download %s's resume here: %s\n\nOr click the 'Download Resume' button on the homepage!",
				firstName(r.profile), r.profile.ResumeURL),
			Source:   "Direct",
			Model:    "System",
			Category: "Resume",
			Type:     "direct",
			Action:   &Action{Type: "download", URL: r.profile.ResumeURL},
		}, true
	case timeRe.MatchString(message) && !strings.Contains(lower, "timezone"):
		return &Direct{
			Answer:   "⏰ Current time is " + now.Format("03:04 PM"),
			Source:   "System",
			Model:    "Direct",
			Category: "Utility",
		}, true
	case dateRe.MatchString(message):
		return &Direct{
			Answer:   "📅 Today is " + now.Format("Monday, January 02, 2006"),
			Source:   "System",
			Model:    "Direct",
			Category: "Utility",
		}, true
	}
	if expr, result, ok := Calculate(message); ok {
		return &Direct{
			Answer:   fmt.Sprintf("🔢 %s = %s", expr, result),
			Source:   SourceCalculator,
			Model:    "Direct",
			Category: KindMath.Category(),
			Type:     "math",
		}, true
	}
	return nil, false
}

// Package localai answers chat messages without an upstream model. It backs
// the assistant when no provider is configured and handles the direct
// commands (résumé, time, date, arithmetic) that never need a model.
package localai

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ferro-labs/assistme/internal/portfolio"
)

// Source and Model label answers produced by the keyword responder.
const (
	Source = "Local Intelligence"
	Model  = "AssistMe Local"
)

// Kind is a coarse message classification.
type Kind string

const (
	KindMath      Kind = "math"
	KindPortfolio Kind = "portfolio"
	KindCoding    Kind = "coding"
	KindGeneral   Kind = "general"
)

// Category returns the display category for k.
func (k Kind) Category() string {
	switch k {
	case KindMath:
		return "Mathematics"
	case KindPortfolio:
		return "Portfolio"
	case KindCoding:
		return "Programming"
	case KindGeneral:
		return "General Knowledge"
	default:
		return "General"
	}
}

var (
	arithmeticRe = regexp.MustCompile(`\d+\s*[-+*/%]\s*\d+`)
	mathWordsRe  = regexp.MustCompile(`(?i)\b(calculate|math|sum|multiply)\b`)
	portfolioRe  = regexp.MustCompile(`(?i)\b(experience|work|job|career|skills?|education|university|degree|projects?|portfolio|background|about you|tell me about|who are you|mangesh|resume)\b`)
	codingRe     = regexp.MustCompile(`(?i)\b(code|coding|programming|function|algorithm)\b`)
)

// Classify sorts message into math, portfolio, coding or general, checked in
// that order.
func Classify(message string) Kind {
	switch {
	case arithmeticRe.MatchString(message) || mathWordsRe.MatchString(message):
		return KindMath
	case portfolioRe.MatchString(message):
		return KindPortfolio
	case codingRe.MatchString(message):
		return KindCoding
	default:
		return KindGeneral
	}
}

// Answer is a locally produced reply.
type Answer struct {
	Text       string
	Kind       Kind
	Topic      string
	Confidence float64
}

type topic struct {
	name    string
	pattern *regexp.Regexp
	render  func(p *portfolio.Profile) string
}

// Responder matches messages against a fixed keyword table built from the
// portfolio profile.
type Responder struct {
	profile *portfolio.Profile
	topics  []topic
	now     func() time.Time
}

// New creates a Responder for profile.
func New(profile *portfolio.Profile) *Responder {
	return &Responder{profile: profile, topics: topics, now: time.Now}
}

var topics = []topic{
	{"skills", regexp.MustCompile(`(?i)\b(skill|technolog|tech stack|stack|languages?\b|frameworks?\b|tools?\b)`), renderSkills},
	{"experience", regexp.MustCompile(`(?i)\b(experience|work|job|career|compan|employ)`), renderExperience},
	{"education", regexp.MustCompile(`(?i)\b(education|degree|universit|school|stud|master|bachelor)`), renderEducation},
	{"projects", regexp.MustCompile(`(?i)\b(project|built|portfolio)`), renderProjects},
	{"contact", regexp.MustCompile(`(?i)\b(contact|email|reach|hire|phone|linkedin)`), renderContact},
	{"github", regexp.MustCompile(`(?i)\b(github|repo|source code)`), renderGitHub},
	{"about", regexp.MustCompile(`(?i)\b(who is|who are|about|mangesh|yourself|introduce|summary)`), renderAbout},
	{"greeting", regexp.MustCompile(`(?i)\b(hello|hi|hey|greetings|good (morning|afternoon|evening))\b`), renderGreeting},
	{"help", regexp.MustCompile(`(?i)\b(help|what can you|how do you work)`), renderHelp},
}

// Respond returns the first matching canned answer, or a generic one.
func (r *Responder) Respond(message string) Answer {
	kind := Classify(message)
	for _, t := range r.topics {
		if t.pattern.MatchString(message) {
			return Answer{Text: t.render(r.profile), Kind: kind, Topic: t.name, Confidence: 0.8}
		}
	}
	return Answer{
		Text: fmt.Sprintf("I'm running in offline mode right now, so I can only answer questions about %s's "+
			"skills, experience, education, projects and contact details. Try asking \"What are his skills?\"",
			firstName(r.profile)),
		Kind:       kind,
		Topic:      "fallback",
		Confidence: 0.5,
	}
}

func firstName(p *portfolio.Profile) string {
	if f := strings.Fields(p.Name); len(f) > 0 {
		return f[0]
	}
	return p.Name
}

func bullets(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "• %s: %s\n", label, strings.Join(items, ", "))
}

func renderSkills(p *portfolio.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💻 %s's technical skills:\n\n", firstName(p))
	bullets(&b, "Languages", p.Skills.Languages)
	bullets(&b, "Frameworks", p.Skills.Frameworks)
	bullets(&b, "Cloud & DevOps", p.Skills.Cloud)
	bullets(&b, "Databases", p.Skills.Databases)
	bullets(&b, "Tools", p.Skills.Tools)
	return strings.TrimRight(b.String(), "\n")
}

func renderExperience(p *portfolio.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💼 %s's experience:\n", firstName(p))
	for _, e := range p.Experience {
		fmt.Fprintf(&b, "\n%s at %s (%s, %s)\n", e.Title, e.Company, e.Period, e.Location)
		for _, a := range e.Achievements {
			fmt.Fprintf(&b, "• %s\n", a)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEducation(p *portfolio.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎓 %s's education:\n\n", firstName(p))
	for _, e := range p.Education {
		fmt.Fprintf(&b, "• %s, %s (%s)", e.Degree, e.School, e.Period)
		if e.Status != "" {
			fmt.Fprintf(&b, ", %s", e.Status)
		}
		if e.GPA != "" {
			fmt.Fprintf(&b, ", GPA %s", e.GPA)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderProjects(p *portfolio.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 Featured projects:\n\n")
	for _, pr := range p.Projects {
		fmt.Fprintf(&b, "• %s (%s): %s\n", pr.Name, strings.Join(pr.Tech, ", "), pr.Achievements)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderContact(p *portfolio.Profile) string {
	return fmt.Sprintf("📬 You can reach %s at:\n\n• Email: %s\n• LinkedIn: %s\n• GitHub: %s\n• Website: %s",
		firstName(p), p.Email, p.LinkedIn, p.GitHub, p.Website)
}

func renderGitHub(p *portfolio.Profile) string {
	return fmt.Sprintf("🐙 %s's code lives at %s. The GitHub section of this site lists the latest repositories.",
		firstName(p), p.GitHub)
}

func renderAbout(p *portfolio.Profile) string {
	return fmt.Sprintf("👋 %s is a %s based in %s.\n\n%s", p.Name, p.Title, p.Location, p.Summary)
}

func renderGreeting(p *portfolio.Profile) string {
	return fmt.Sprintf("👋 Hi! I'm AssistMe, %s's portfolio assistant. Ask me about skills, experience, education or projects.",
		firstName(p))
}

func renderHelp(p *portfolio.Profile) string {
	return "💡 I can tell you about:\n\n• Skills and tech stack\n• Work experience\n• Education\n• Projects\n• Contact details\n\n" +
		"You can also ask for the résumé, the current time or today's date."
}

// Package portfolio holds the profile the assistant answers questions about
// and the prompts built from it.
package portfolio

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var profileYAML []byte

// Profile is the portfolio owner's public résumé data.
type Profile struct {
	Name       string       `yaml:"name" json:"name"`
	Title      string       `yaml:"title" json:"title"`
	Location   string       `yaml:"location" json:"location"`
	Email      string       `yaml:"email" json:"email"`
	Phone      string       `yaml:"phone" json:"phone"`
	LinkedIn   string       `yaml:"linkedin" json:"linkedin"`
	GitHub     string       `yaml:"github" json:"github"`
	Website    string       `yaml:"website" json:"website"`
	ResumeURL  string       `yaml:"resume_url" json:"resume_url"`
	Summary    string       `yaml:"summary" json:"summary"`
	Experience []Experience `yaml:"experience" json:"experience"`
	Skills     Skills       `yaml:"skills" json:"skills"`
	Education  []Education  `yaml:"education" json:"education"`
	Projects   []Project    `yaml:"projects" json:"projects"`
}

// Experience is one job.
type Experience struct {
	Title        string   `yaml:"title" json:"title"`
	Company      string   `yaml:"company" json:"company"`
	Period       string   `yaml:"period" json:"period"`
	Location     string   `yaml:"location" json:"location"`
	Achievements []string `yaml:"achievements" json:"achievements"`
}

// Skills groups skills by kind.
type Skills struct {
	Languages  []string `yaml:"languages" json:"languages"`
	Frameworks []string `yaml:"frameworks" json:"frameworks"`
	Cloud      []string `yaml:"cloud" json:"cloud"`
	Databases  []string `yaml:"databases" json:"databases"`
	Tools      []string `yaml:"tools" json:"tools"`
}

// Education is one degree.
type Education struct {
	Degree string `yaml:"degree" json:"degree"`
	School string `yaml:"school" json:"school"`
	Period string `yaml:"period" json:"period"`
	Status string `yaml:"status,omitempty" json:"status,omitempty"`
	GPA    string `yaml:"gpa,omitempty" json:"gpa,omitempty"`
}

// Project is a showcased project.
type Project struct {
	Name         string   `yaml:"name" json:"name"`
	Tech         []string `yaml:"tech" json:"tech"`
	Achievements string   `yaml:"achievements" json:"achievements"`
}

var (
	defaultOnce    sync.Once
	defaultProfile *Profile
	defaultErr     error
)

// Default returns the embedded profile. It panics if the embedded YAML is
// malformed, which is a build defect.
func Default() *Profile {
	defaultOnce.Do(func() {
		defaultProfile, defaultErr = Parse(profileYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("portfolio: embedded profile: %v", defaultErr))
	}
	return defaultProfile
}

// Parse decodes a profile from YAML.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("parse profile: name is required")
	}
	return &p, nil
}

// AllSkills returns every skill in declaration order.
func (s Skills) AllSkills() []string {
	var out []string
	for _, group := range [][]string{s.Languages, s.Frameworks, s.Cloud, s.Databases, s.Tools} {
		out = append(out, group...)
	}
	return out
}

// SystemPrompt renders the assistant persona with the full profile inlined.
func (p *Profile) SystemPrompt() string {
	data, _ := json.MarshalIndent(p, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "You are AssistMe, an AI assistant for %s's portfolio.\n\n", p.Name)
	b.WriteString("CORE CAPABILITIES:\n")
	fmt.Fprintf(&b, "1. Portfolio Expert: deep knowledge of %s's professional background, skills, and achievements\n", p.Name)
	b.WriteString("2. Context Awareness: remember conversation history and give coherent multi-turn answers\n")
	b.WriteString("3. Smart Suggestions: offer relevant follow-up questions\n")
	b.WriteString("4. Technical Depth: explain technical concepts clearly when asked\n\n")
	b.WriteString("PORTFOLIO SUMMARY:\n")
	b.Write(data)
	b.WriteString("\n\nINTERACTION GUIDELINES:\n")
	b.WriteString("- Be conversational and acknowledge previous messages\n")
	b.WriteString("- Be specific: cite exact numbers, dates, and achievements\n")
	b.WriteString("- Keep responses under 150 words unless detail is requested\n\n")
	b.WriteString("QUICK ACTIONS:\n")
	fmt.Fprintf(&b, "- Resume Download: %s\n", p.ResumeURL)
	fmt.Fprintf(&b, "- Email: %s\n", p.Email)
	fmt.Fprintf(&b, "- LinkedIn: %s\n", p.LinkedIn)
	fmt.Fprintf(&b, "- GitHub: %s\n", p.GitHub)
	return b.String()
}

// PageContext describes what the visitor is looking at when they ask.
type PageContext struct {
	CurrentSection  string           `json:"currentSection,omitempty"`
	VisibleProjects []VisibleProject `json:"visibleProjects,omitempty"`
}

// VisibleProject is a project card on screen.
type VisibleProject struct {
	Title string `json:"title"`
}

// IsZero reports whether the context carries nothing.
func (c *PageContext) IsZero() bool {
	return c == nil || (c.CurrentSection == "" && len(c.VisibleProjects) == 0)
}

// ContextPrompt wraps message with the page context.
func ContextPrompt(message string, c *PageContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User Question: %s\n\n", message)
	if c != nil {
		if c.CurrentSection != "" {
			fmt.Fprintf(&b, "[User is viewing: %s]\n", c.CurrentSection)
		}
		if len(c.VisibleProjects) > 0 {
			titles := make([]string, len(c.VisibleProjects))
			for i, p := range c.VisibleProjects {
				titles[i] = p.Title
			}
			fmt.Fprintf(&b, "[Visible projects: %s]\n", strings.Join(titles, ", "))
		}
	}
	b.WriteString("\nPlease answer using the portfolio data provided in the system prompt.")
	return b.String()
}

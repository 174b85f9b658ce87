package localai

import (
	"strings"
	"testing"
	"time"

	"github.com/ferro-labs/assistme/internal/portfolio"
)

func newResponder() *Responder {
	r := New(portfolio.Default())
	r.now = func() time.Time { return time.Date(2026, time.March, 5, 14, 7, 0, 0, time.UTC) }
	return r
}

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"what is 12 * 7":               KindMath,
		"can you calculate my taxes":   KindMath,
		"Tell me about his experience": KindPortfolio,
		"what skills does he have":     KindPortfolio,
		"write a function in Go":       KindCoding,
		"what is the capital of Peru":  KindGeneral,
	}
	for msg, want := range tests {
		if got := Classify(msg); got != want {
			t.Errorf("Classify(%q) = %s, want %s", msg, got, want)
		}
	}
}

func TestKindCategory(t *testing.T) {
	if KindCoding.Category() != "Programming" || Kind("x").Category() != "General" {
		t.Fatal("unexpected category mapping")
	}
}

func TestRespond_Topics(t *testing.T) {
	r := newResponder()
	tests := []struct {
		msg, topic, contains string
	}{
		{"skills", "skills", "Spring Boot"},
		{"What are Mangesh's skills?", "skills", "PostgreSQL"},
		{"where has he worked", "experience", "Customized Energy Solutions"},
		{"education background", "education", "Drexel University"},
		{"show me his projects", "projects", "Face Emotion Recognition"},
		{"how can I contact him", "contact", "mbr63@drexel.edu"},
		{"hello", "greeting", "AssistMe"},
		{"help", "help", "Projects"},
	}
	for _, tt := range tests {
		a := r.Respond(tt.msg)
		if a.Topic != tt.topic {
			t.Errorf("Respond(%q).Topic = %q, want %q", tt.msg, a.Topic, tt.topic)
		}
		if !strings.Contains(a.Text, tt.contains) {
			t.Errorf("Respond(%q) = %q, missing %q", tt.msg, a.Text, tt.contains)
		}
	}
}

func TestRespond_Fallback(t *testing.T) {
	a := newResponder().Respond("what is the capital of Peru")
	if a.Topic != "fallback" || a.Confidence != 0.5 || a.Kind != KindGeneral {
		t.Fatalf("answer = %+v", a)
	}
}

func TestRespond_GreetingNeedsWholeWord(t *testing.T) {
	if a := newResponder().Respond("this sentence mentions nothing"); a.Topic == "greeting" {
		t.Fatal("'this' must not match the 'hi' greeting")
	}
}

func TestDirectCommand_Resume(t *testing.T) {
	d, ok := newResponder().DirectCommand("Can I download the CV?")
	if !ok {
		t.Fatal("expected a direct command")
	}
	if d.Source != "Direct" || d.Model != "System" || d.Category != "Resume" {
		t.Fatalf("direct = %+v", d)
	}
	if d.Action == nil || d.Action.Type != "download" || d.Action.URL != "/assets/files/Mangesh_Raut_Resume.pdf" {
		t.Fatalf("action = %+v", d.Action)
	}
}

func TestDirectCommand_TimeAndDate(t *testing.T) {
	r := newResponder()
	d, ok := r.DirectCommand("what time is it?")
	if !ok || d.Answer != "⏰ Current time is 02:07 PM" || d.Source != "System" || d.Model != "Direct" {
		t.Fatalf("time = %+v, %v", d, ok)
	}
	d, ok = r.DirectCommand("what's the date today")
	if !ok || d.Answer != "📅 Today is Thursday, March 05, 2026" {
		t.Fatalf("date = %+v, %v", d, ok)
	}
}

func TestDirectCommand_NotDirect(t *testing.T) {
	r := newResponder()
	for _, msg := range []string{"which timezone is he in", "tell me about his skills", "update the docs", "recovery plan", "sometimes it lags"} {
		if _, ok := r.DirectCommand(msg); ok {
			t.Errorf("DirectCommand(%q) should not match", msg)
		}
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		message, expr, result string
	}{
		{"what is 12 * 7", "12 * 7", "84"},
		{"What's (2 + 3) * 4?", "(2 + 3) * 4", "20"},
		{"calculate 10 / 4", "10 / 4", "2.5"},
		{"17 % 5", "17 % 5", "2"},
		{"3 * -2 + 0.5", "3 * -2 + 0.5", "-5.5"},
		{"012 + 1", "012 + 1", "13"},
		{"1 / 3 * 3 =", "1 / 3 * 3", "1"},
	}
	for _, tt := range tests {
		expr, result, ok := Calculate(tt.message)
		if !ok {
			t.Errorf("Calculate(%q) not evaluated", tt.message)
			continue
		}
		if expr != tt.expr || result != tt.result {
			t.Errorf("Calculate(%q) = %q, %q; want %q, %q", tt.message, expr, result, tt.expr, tt.result)
		}
	}
}

func TestCalculate_Rejects(t *testing.T) {
	for _, msg := range []string{
		"1 / 0",
		"5 % 0",
		"2.5 % 2",
		"projects from 2020-2023",
		"what is 12 * 7 and rm -rf",
		"(1 + 2",
		"tell me about your skills",
		"what is 2 ** 3",
	} {
		if _, _, ok := Calculate(msg); ok {
			t.Errorf("Calculate(%q) should not evaluate", msg)
		}
	}
}

func TestDirectCommand_Arithmetic(t *testing.T) {
	d, ok := newResponder().DirectCommand("what is 12 * 7")
	if !ok {
		t.Fatal("expected a direct command")
	}
	if d.Answer != "🔢 12 * 7 = 84" || d.Source != SourceCalculator || d.Category != "Mathematics" {
		t.Fatalf("direct = %+v", d)
	}
}

package core

import (
	"fmt"
	"strings"

	"persona.dev/recruiter-persona/internal/persona"
	"persona.dev/recruiter-persona/internal/store"
)

const (
	DefaultHistoryWindow = 10
	maxPromptExamples    = 3
)

// PromptAssembler composes the generation input for one turn. It is a pure
// function of its arguments.
type PromptAssembler struct {
	// HistoryWindow caps how many of the most recent messages are sent. Zero or a
	// negative value sends none; NewChatService starts from DefaultHistoryWindow.
	HistoryWindow int
}

func (a PromptAssembler) window() int {
	return max(a.HistoryWindow, 0)
}

// Build returns a system block followed by the most recent history, oldest first.
// Older turns are dropped from the prompt only.
func (a PromptAssembler) Build(cfg persona.Config, retrieved []RetrievalResult, history []store.Message) Prompt {
	recent := history
	if n := a.window(); len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	messages := make([]PromptMessage, 0, len(recent))
	for _, m := range recent {
		messages = append(messages, PromptMessage{Role: m.Role, Content: m.Content})
	}

	return Prompt{
		System:   systemBlock(cfg, retrieved),
		Messages: messages,
	}
}

func systemBlock(cfg persona.Config, retrieved []RetrievalResult) string {
	p := cfg.Profile
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a job candidate speaking directly with a recruiter.\n", cfg.DisplayName())

	b.WriteString("\nKey facts about you:\n")
	if d := p.PersonalDetails; d != nil {
		fmt.Fprintf(&b, "- Location: %s\n", d.Location.Or(NotSpecified))
	}
	if s := p.ProfessionalSummary; s != nil {
		fmt.Fprintf(&b, "- Current role: %s with %s years of experience\n", s.Title.Or(NotSpecified), s.YearsExperience.Or(NotSpecified))
		fmt.Fprintf(&b, "- Key skills: %s\n", list(s.KeySkills))
	}
	if w := p.WorkAuthorization; w != nil {
		fmt.Fprintf(&b, "- Work authorization: %s (%s), sponsorship required: %s\n",
			w.Status.Or(NotSpecified), w.VisaType.Or(NotSpecified), w.SponsorshipRequired.Or(NotSpecified))
		fmt.Fprintf(&b, "- Relocation: %s, remote preference: %s\n",
			w.RelocationWillingness.Or(NotSpecified), w.RemotePreference.Or(NotSpecified))
	}
	if pr := p.Preferences; pr != nil {
		fmt.Fprintf(&b, "- Salary expectations: %s\n", pr.SalaryRange.Or(NotSpecified))
		fmt.Fprintf(&b, "- Preferred job types: %s\n", list(pr.JobTypes))
	}
	if av := p.Availability; av != nil {
		fmt.Fprintf(&b, "- Notice period: %s, earliest start: %s\n", av.NoticePeriod.Or(NotSpecified), av.StartDate.Or(NotSpecified))
	}

	t := cfg.Traits
	if t.CommunicationStyle.String() != "" || t.Tone.String() != "" || len(t.Traits) > 0 {
		b.WriteString("\nCommunication style:\n")
		fmt.Fprintf(&b, "- Style: %s\n", t.CommunicationStyle.Or("professional"))
		fmt.Fprintf(&b, "- Tone: %s\n", t.Tone.Or("friendly"))
		if len(t.Traits) > 0 {
			fmt.Fprintf(&b, "- Traits: %s\n", strings.Join(t.Traits, ", "))
		}
	}

	if q := p.CommonQuestions; q != nil {
		b.WriteString("\nPrepared answers:\n")
		fmt.Fprintf(&b, "- Why I'm looking: %s\n", q.WhyLeaving.Or(NotSpecified))
		fmt.Fprintf(&b, "- Strengths: %s\n", q.Strengths.Or(NotSpecified))
	}

	if len(cfg.Instructions) > 0 {
		b.WriteString("\nInstructions:\n")
		for i, in := range cfg.Instructions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, in)
		}
	}

	examples := cfg.Examples
	if len(examples) > maxPromptExamples {
		examples = examples[:maxPromptExamples]
	}
	if len(examples) > 0 {
		b.WriteString("\nExample exchanges:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "Recruiter: %s\nYou: %s\n", ex.RecruiterQuestion, ex.AIResponse)
		}
	}

	if len(retrieved) > 0 {
		b.WriteString("\nRelevant background for this question:\n")
		for _, r := range retrieved {
			fmt.Fprintf(&b, "- %s\n", r.Chunk.Text)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

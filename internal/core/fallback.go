package core

import (
	"fmt"
	"strings"

	"persona.dev/recruiter-persona/internal/persona"
)

// Intent names the rule that produced a fallback reply.
type Intent string

const (
	IntentIntroduction  Intent = "introduction"
	IntentSkills        Intent = "skills"
	IntentSponsorship   Intent = "sponsorship"
	IntentCompensation  Intent = "compensation"
	IntentAvailability  Intent = "availability"
	IntentReasonLeaving Intent = "reason_for_leaving"
	IntentGeneric       Intent = "generic"
)

type fallbackRule struct {
	intent  Intent
	match   func(text string) bool
	respond func(cfg persona.Config) string
}

// FallbackResponder answers without a generation backend. Rules are checked in
// order against the lowercased input and the first match wins.
type FallbackResponder struct {
	rules []fallbackRule
}

func NewFallbackResponder() *FallbackResponder {
	return &FallbackResponder{rules: []fallbackRule{
		{IntentIntroduction, containsAny("tell me about yourself", "about you"), introReply},
		{IntentSkills, containsAny("skills", "technical"), skillsReply},
		{IntentSponsorship, containsAny("sponsorship", "visa"), sponsorshipReply},
		{IntentCompensation, containsAny("salary", "compensation"), compensationReply},
		{IntentAvailability, containsAny("start", "available"), availabilityReply},
		{IntentReasonLeaving, func(s string) bool {
			return strings.Contains(s, "why") && containsAny("leaving", "looking")(s)
		}, leavingReply},
	}}
}

// Respond always returns a non-empty reply.
func (f *FallbackResponder) Respond(cfg persona.Config, text string) (string, Intent) {
	lowered := strings.ToLower(text)
	for _, r := range f.rules {
		if r.match(lowered) {
			return r.respond(cfg), r.intent
		}
	}
	return genericReply(cfg), IntentGeneric
}

func containsAny(needles ...string) func(string) bool {
	return func(s string) bool {
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true
			}
		}
		return false
	}
}

func topSkills(cfg persona.Config, n int) string {
	s := cfg.Profile.ProfessionalSummary
	if s == nil {
		return "software engineering"
	}
	var skills []string
	for _, sk := range s.KeySkills {
		if sk = strings.TrimSpace(sk); sk != "" {
			skills = append(skills, sk)
		}
		if len(skills) == n {
			break
		}
	}
	if len(skills) == 0 {
		return "software engineering"
	}
	return strings.Join(skills, ", ")
}

func introReply(cfg persona.Config) string {
	title, years := "software professional", "several"
	if s := cfg.Profile.ProfessionalSummary; s != nil {
		title = s.Title.Or(title)
		years = s.YearsExperience.Or(years)
	}
	return fmt.Sprintf("Hi, I'm %s, a %s with %s years of experience. I specialize in %s and I'm excited to learn more about this opportunity.",
		cfg.DisplayName(), title, years, topSkills(cfg, 3))
}

func skillsReply(cfg persona.Config) string {
	return fmt.Sprintf("My core technical skills include %s. I'd be happy to walk you through projects where I've applied them.",
		topSkills(cfg, 5))
}

func sponsorshipReply(cfg persona.Config) string {
	status, visa, sponsorship := NotSpecified, NotSpecified, NotSpecified
	if w := cfg.Profile.WorkAuthorization; w != nil {
		status = w.Status.Or(status)
		visa = w.VisaType.Or(visa)
		sponsorship = w.SponsorshipRequired.Or(sponsorship)
	}
	return fmt.Sprintf("Regarding my work authorization, my status is %s on a %s visa. Sponsorship required: %s. I'm happy to discuss any details further.",
		status, visa, sponsorship)
}

func compensationReply(cfg persona.Config) string {
	salary := "competitive and in line with the market"
	if pr := cfg.Profile.Preferences; pr != nil {
		salary = pr.SalaryRange.Or(salary)
	}
	return fmt.Sprintf("I'm looking for compensation in the range of %s, though I'm flexible depending on the overall package and the role.", salary)
}

func availabilityReply(cfg persona.Config) string {
	notice, start := "a standard notice period", "soon after that"
	if av := cfg.Profile.Availability; av != nil {
		notice = av.NoticePeriod.Or(notice)
		start = av.StartDate.Or(start)
	}
	return fmt.Sprintf("I'd need to give %s, so I could start %s. I'm flexible on interview scheduling.", notice, start)
}

func leavingReply(cfg persona.Config) string {
	reason := "I'm looking for new challenges and opportunities to grow"
	if q := cfg.Profile.CommonQuestions; q != nil {
		reason = strings.TrimRight(q.WhyLeaving.Or(reason), ".!? ")
	}
	return fmt.Sprintf("%s. I'm excited about roles where I can make a real impact.", reason)
}

func genericReply(cfg persona.Config) string {
	return fmt.Sprintf("Thanks for reaching out! I'm %s and I'd be happy to discuss this further. Could you tell me a bit more about the role?",
		cfg.DisplayName())
}

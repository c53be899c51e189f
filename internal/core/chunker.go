package core

import (
	"fmt"
	"strings"

	"persona.dev/recruiter-persona/internal/persona"
	"persona.dev/recruiter-persona/internal/store"
)

// NotSpecified stands in for any missing profile field.
const NotSpecified = "Not specified"

// BuildChunks decomposes a profile into retrievable chunks, one per present
// section and one per list entry, in a fixed order. It has no side effects and
// the same profile always yields the same chunks and ids.
func BuildChunks(p persona.Profile) []store.KnowledgeChunk {
	var chunks []store.KnowledgeChunk
	add := func(t store.SectionType, label, source, text string) {
		chunks = append(chunks, store.KnowledgeChunk{
			ID:           string(t) + ":" + label,
			Text:         text,
			SectionType:  t,
			SectionLabel: label,
			SourceTag:    source,
		})
	}

	if d := p.PersonalDetails; d != nil && !allBlank(d.Name, d.Location, d.Email, d.Phone, d.LinkedIn, d.GitHub) {
		add(store.SectionPersonalDetails, "contact_info", "", fmt.Sprintf(
			"Personal Information: Name is %s, located in %s, contact email %s, phone %s, LinkedIn %s, GitHub %s.",
			or(d.Name), or(d.Location), or(d.Email), or(d.Phone), or(d.LinkedIn), or(d.GitHub)))
	}

	if a := p.WorkAuthorization; a != nil && !allBlank(a.Status, a.VisaType, a.SponsorshipRequired, a.RelocationWillingness, a.RemotePreference) {
		add(store.SectionWorkAuthorization, "legal_status", "", fmt.Sprintf(
			"Work Authorization: %s, visa type %s, sponsorship required %s, relocation willingness %s, remote preference %s.",
			or(a.Status), or(a.VisaType), or(a.SponsorshipRequired), or(a.RelocationWillingness), or(a.RemotePreference)))
	}

	if s := p.ProfessionalSummary; s != nil && (!allBlank(s.Title, s.YearsExperience, s.Summary) || len(s.KeySkills) > 0) {
		add(store.SectionProfessionalSummary, "overview", "", fmt.Sprintf(
			"Professional Summary: %s with %s years of experience. %s. Key skills: %s.",
			or(s.Title), or(s.YearsExperience), sentence(s.Summary), list(s.KeySkills)))
	}

	for i, job := range p.WorkExperience {
		add(store.SectionWorkExperience, fmt.Sprintf("job_%d", i+1), job.Company.String(), fmt.Sprintf(
			"Work Experience %d: %s at %s from %s. %s. Key achievements: %s. Technologies used: %s.",
			i+1, or(job.Position), or(job.Company), or(job.Duration), sentence(job.Description),
			list(job.KeyAchievements), list(job.Technologies)))
	}

	for i, edu := range p.Education {
		add(store.SectionEducation, fmt.Sprintf("education_%d", i+1), edu.Institution.String(), fmt.Sprintf(
			"Education %d: %s from %s in %s. GPA: %s. Relevant coursework: %s.",
			i+1, or(edu.Degree), or(edu.Institution), or(edu.GraduationYear), or(edu.GPA), list(edu.RelevantCoursework)))
	}

	for i, cert := range p.Certifications {
		add(store.SectionCertification, fmt.Sprintf("certification_%d", i+1), cert.Issuer.String(), fmt.Sprintf(
			"Certification %d: %s issued by %s on %s.",
			i+1, or(cert.Name), or(cert.Issuer), or(cert.Date)))
	}

	for i, proj := range p.Projects {
		add(store.SectionProject, fmt.Sprintf("project_%d", i+1), proj.Name.String(), fmt.Sprintf(
			"Project %d: %s. %s. Technologies used: %s. Link: %s.",
			i+1, or(proj.Name), sentence(proj.Description), list(proj.Technologies), or(proj.URL)))
	}

	if pr := p.Preferences; pr != nil && (!allBlank(pr.SalaryRange, pr.WorkEnvironment, pr.CareerGoals) || len(pr.JobTypes) > 0 || len(pr.CompanySize) > 0) {
		add(store.SectionPreferences, "job_preferences", "", fmt.Sprintf(
			"Job Preferences: Salary range %s, job types %s, company size preference %s, work environment %s, career goals %s.",
			or(pr.SalaryRange), list(pr.JobTypes), list(pr.CompanySize), or(pr.WorkEnvironment), or(pr.CareerGoals)))
	}

	if av := p.Availability; av != nil && !allBlank(av.NoticePeriod, av.StartDate, av.InterviewAvailability, av.Timezone) {
		add(store.SectionAvailability, "timing", "", fmt.Sprintf(
			"Availability: Notice period %s, start date %s, interview availability %s, timezone %s.",
			or(av.NoticePeriod), or(av.StartDate), or(av.InterviewAvailability), or(av.Timezone)))
	}

	if q := p.CommonQuestions; q != nil && (!allBlank(q.WhyLeaving, q.Strengths, q.Weaknesses) || len(q.QuestionsForThem) > 0) {
		add(store.SectionCommonQuestions, "faq", "", fmt.Sprintf(
			"Common Questions: Reason for leaving: %s. Strengths: %s. Weaknesses: %s. Questions for the employer: %s.",
			sentence(q.WhyLeaving), sentence(q.Strengths), sentence(q.Weaknesses), list(q.QuestionsForThem)))
	}

	return chunks
}

func or(v persona.Value) string { return v.Or(NotSpecified) }

// sentence drops trailing punctuation so the value can be embedded mid-text.
func sentence(v persona.Value) string {
	return strings.TrimRight(v.Or(NotSpecified), ".!? ")
}

func list(items []string) string {
	kept := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return NotSpecified
	}
	return strings.Join(kept, ", ")
}

func allBlank(vals ...persona.Value) bool {
	for _, v := range vals {
		if v.String() != "" {
			return false
		}
	}
	return true
}

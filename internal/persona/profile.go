// Package persona holds the structured documents describing the represented
// person: the profile record and the conversation examples / personality traits.
package persona

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Value is a scalar profile field. Sources write fields like years_experience or
// sponsorship_required as numbers or booleans, so Value accepts any JSON/YAML scalar
// and keeps its textual form. Objects and lists decode to "", never to an error.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = ""
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	case '{', '[', 'n':
		// objects and lists have no single textual form; null is blank
	default:
		switch string(data) {
		case "true":
			*v = "Yes"
		case "false":
			*v = "No"
		default:
			if _, err := strconv.ParseFloat(string(data), 64); err == nil {
				*v = Value(data)
			}
		}
	}
	return nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	*v = ""
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.ScalarNode {
		return nil
	}
	switch node.Tag {
	case "!!null":
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		if b {
			*v = "Yes"
		} else {
			*v = "No"
		}
	default:
		*v = Value(node.Value)
	}
	return nil
}

func (v Value) String() string { return strings.TrimSpace(string(v)) }

// Or returns v, or fallback when v is blank.
func (v Value) Or(fallback string) string {
	if s := v.String(); s != "" {
		return s
	}
	return fallback
}

// List is a profile list field. A single string is split on commas, so
// "Python, ML" and ["Python", "ML"] decode alike. Items that are not scalars are
// dropped.
type List []string

func (l *List) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*l = nil
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = fromValues(items)
	case '{':
	default:
		var v Value
		if err := v.UnmarshalJSON(data); err != nil {
			return err
		}
		*l = splitList(v)
	}
	return nil
}

func (l *List) UnmarshalYAML(node *yaml.Node) error {
	*l = nil
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.SequenceNode:
		var items []Value
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = fromValues(items)
	case yaml.ScalarNode:
		var v Value
		if err := v.UnmarshalYAML(node); err != nil {
			return err
		}
		*l = splitList(v)
	}
	return nil
}

func fromValues(items []Value) List {
	out := make(List, 0, len(items))
	for _, it := range items {
		if s := it.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitList(v Value) List {
	var out List
	for _, part := range strings.Split(v.String(), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type PersonalDetails struct {
	Name     Value `json:"name,omitempty" yaml:"name,omitempty"`
	Location Value `json:"location,omitempty" yaml:"location,omitempty"`
	Email    Value `json:"email,omitempty" yaml:"email,omitempty"`
	Phone    Value `json:"phone,omitempty" yaml:"phone,omitempty"`
	LinkedIn Value `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	GitHub   Value `json:"github,omitempty" yaml:"github,omitempty"`
}

type WorkAuthorization struct {
	Status                Value `json:"status,omitempty" yaml:"status,omitempty"`
	VisaType              Value `json:"visa_type,omitempty" yaml:"visa_type,omitempty"`
	SponsorshipRequired   Value `json:"sponsorship_required,omitempty" yaml:"sponsorship_required,omitempty"`
	RelocationWillingness Value `json:"relocation_willingness,omitempty" yaml:"relocation_willingness,omitempty"`
	RemotePreference      Value `json:"remote_preference,omitempty" yaml:"remote_preference,omitempty"`
}

type ProfessionalSummary struct {
	Title           Value    `json:"title,omitempty" yaml:"title,omitempty"`
	YearsExperience Value    `json:"years_experience,omitempty" yaml:"years_experience,omitempty"`
	Summary         Value    `json:"summary,omitempty" yaml:"summary,omitempty"`
	KeySkills       List     `json:"key_skills,omitempty" yaml:"key_skills,omitempty"`
}

type WorkExperience struct {
	Company         Value    `json:"company,omitempty" yaml:"company,omitempty"`
	Position        Value    `json:"position,omitempty" yaml:"position,omitempty"`
	Duration        Value    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Description     Value    `json:"description,omitempty" yaml:"description,omitempty"`
	KeyAchievements List     `json:"key_achievements,omitempty" yaml:"key_achievements,omitempty"`
	Technologies    List     `json:"technologies,omitempty" yaml:"technologies,omitempty"`
}

type Education struct {
	Degree             Value    `json:"degree,omitempty" yaml:"degree,omitempty"`
	Institution        Value    `json:"institution,omitempty" yaml:"institution,omitempty"`
	GraduationYear     Value    `json:"graduation_year,omitempty" yaml:"graduation_year,omitempty"`
	GPA                Value    `json:"gpa,omitempty" yaml:"gpa,omitempty"`
	RelevantCoursework List     `json:"relevant_coursework,omitempty" yaml:"relevant_coursework,omitempty"`
}

type Certification struct {
	Name   Value `json:"name,omitempty" yaml:"name,omitempty"`
	Issuer Value `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Date   Value `json:"date,omitempty" yaml:"date,omitempty"`
}

type Project struct {
	Name         Value    `json:"name,omitempty" yaml:"name,omitempty"`
	Description  Value    `json:"description,omitempty" yaml:"description,omitempty"`
	Technologies List     `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	URL          Value    `json:"url,omitempty" yaml:"url,omitempty"`
}

type Preferences struct {
	SalaryRange     Value    `json:"salary_range,omitempty" yaml:"salary_range,omitempty"`
	JobTypes        List     `json:"job_types,omitempty" yaml:"job_types,omitempty"`
	CompanySize     List     `json:"company_size,omitempty" yaml:"company_size,omitempty"`
	WorkEnvironment Value    `json:"work_environment,omitempty" yaml:"work_environment,omitempty"`
	CareerGoals     Value    `json:"career_goals,omitempty" yaml:"career_goals,omitempty"`
}

type Availability struct {
	NoticePeriod          Value `json:"notice_period,omitempty" yaml:"notice_period,omitempty"`
	StartDate             Value `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	InterviewAvailability Value `json:"interview_availability,omitempty" yaml:"interview_availability,omitempty"`
	Timezone              Value `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// CommonQuestions holds prepared answers to recurring recruiter questions.
type CommonQuestions struct {
	WhyLeaving       Value    `json:"why_leaving,omitempty" yaml:"why_leaving,omitempty"`
	Strengths        Value    `json:"strengths,omitempty" yaml:"strengths,omitempty"`
	Weaknesses       Value    `json:"weaknesses,omitempty" yaml:"weaknesses,omitempty"`
	QuestionsForThem List     `json:"questions_for_them,omitempty" yaml:"questions_for_them,omitempty"`
}

// Profile is the persona's structured background. Nil sections are absent.
type Profile struct {
	PersonalDetails     *PersonalDetails     `json:"personal_details,omitempty" yaml:"personal_details,omitempty"`
	WorkAuthorization   *WorkAuthorization   `json:"work_authorization,omitempty" yaml:"work_authorization,omitempty"`
	ProfessionalSummary *ProfessionalSummary `json:"professional_summary,omitempty" yaml:"professional_summary,omitempty"`
	WorkExperience      []WorkExperience     `json:"work_experience,omitempty" yaml:"work_experience,omitempty"`
	Education           []Education          `json:"education,omitempty" yaml:"education,omitempty"`
	Certifications      []Certification      `json:"certifications,omitempty" yaml:"certifications,omitempty"`
	Projects            []Project            `json:"projects,omitempty" yaml:"projects,omitempty"`
	Preferences         *Preferences         `json:"preferences,omitempty" yaml:"preferences,omitempty"`
	Availability        *Availability        `json:"availability,omitempty" yaml:"availability,omitempty"`
	CommonQuestions     *CommonQuestions     `json:"common_questions,omitempty" yaml:"common_questions,omitempty"`
}

// Name is the persona's name, or "" when unknown.
func (p Profile) Name() string {
	if p.PersonalDetails == nil {
		return ""
	}
	return p.PersonalDetails.Name.String()
}

// IsZero reports whether every section of p is empty.
func (p Profile) IsZero() bool {
	return p.PersonalDetails == nil && p.WorkAuthorization == nil && p.ProfessionalSummary == nil &&
		len(p.WorkExperience) == 0 && len(p.Education) == 0 && len(p.Certifications) == 0 &&
		len(p.Projects) == 0 && p.Preferences == nil && p.Availability == nil && p.CommonQuestions == nil
}

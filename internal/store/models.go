package store

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is a snapshot of one conversation. Messages are in arrival order.
type Session struct {
	ID            string    `json:"id"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated"`
}

type SectionType string

const (
	SectionPersonalDetails     SectionType = "personal_details"
	SectionWorkAuthorization   SectionType = "work_authorization"
	SectionProfessionalSummary SectionType = "professional_summary"
	SectionWorkExperience      SectionType = "work_experience"
	SectionEducation           SectionType = "education"
	SectionCertification       SectionType = "certification"
	SectionProject             SectionType = "project"
	SectionPreferences         SectionType = "preferences"
	SectionAvailability        SectionType = "availability"
	SectionCommonQuestions     SectionType = "common_questions"
)

// KnowledgeChunk is one retrievable unit of persona background.
type KnowledgeChunk struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	SectionType  SectionType `json:"section_type"`
	SectionLabel string      `json:"section_label"`
	SourceTag    string      `json:"source_tag,omitempty"`
}

// Metadata is the provenance exposed alongside search results.
func (c KnowledgeChunk) Metadata() map[string]string {
	md := map[string]string{
		"type":    string(c.SectionType),
		"section": c.SectionLabel,
	}
	if c.SourceTag != "" {
		md["source"] = c.SourceTag
	}
	return md
}

// IndexedChunk is a chunk together with its embedding, as persisted by a ChunkRepository.
type IndexedChunk struct {
	Chunk     KnowledgeChunk `json:"chunk"`
	Position  int            `json:"position"`
	Embedding []float32      `json:"-"`
}

func cloneMessage(m Message) Message {
	if m.Metadata == nil {
		return m
	}
	md := make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		md[k] = v
	}
	m.Metadata = md
	return m
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out
}

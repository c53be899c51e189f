package persona

// ConversationExample is a recruiter question with the answer the persona would give.
type ConversationExample struct {
	Scenario          Value `json:"scenario" yaml:"scenario"`
	RecruiterQuestion Value `json:"recruiter_question" yaml:"recruiter_question"`
	AIResponse        Value `json:"ai_response" yaml:"ai_response"`
	Context           Value `json:"context,omitempty" yaml:"context,omitempty"`
}

type PersonalityTraits struct {
	CommunicationStyle Value `json:"communication_style,omitempty" yaml:"communication_style,omitempty"`
	Tone               Value `json:"tone,omitempty" yaml:"tone,omitempty"`
	ResponseLength     Value `json:"response_length,omitempty" yaml:"response_length,omitempty"`
	Traits             List  `json:"traits,omitempty" yaml:"traits,omitempty"`
}

// ConversationExamples is the second static source loaded at startup.
type ConversationExamples struct {
	RecruiterConversations []ConversationExample `json:"recruiter_conversations,omitempty" yaml:"recruiter_conversations,omitempty"`
	PersonalityTraits      PersonalityTraits     `json:"personality_traits" yaml:"personality_traits"`
}

// DefaultInstructions are the behavioural rules every reply must follow.
var DefaultInstructions = []string{
	"Always respond in the first person as the candidate, never as someone representing them.",
	"Never mention or hint that you are an AI, a bot or an automated system.",
	"Keep answers concise but complete, typically two or three sentences.",
	"Mention your work authorization status whenever it is relevant to the question.",
	"Be specific about skills and experience when asked, using the background provided.",
	"Stay professional, friendly and genuinely interested in the role and the company.",
	"If you do not know a specific detail, say you would be happy to discuss it further.",
}

// Config is everything the prompt assembler and the fallback responder need to
// speak as the persona.
type Config struct {
	Profile      Profile
	Traits       PersonalityTraits
	Examples     []ConversationExample
	Instructions []string
}

func NewConfig(profile Profile, examples ConversationExamples) Config {
	instructions := make([]string, len(DefaultInstructions))
	copy(instructions, DefaultInstructions)
	return Config{
		Profile:      profile,
		Traits:       examples.PersonalityTraits,
		Examples:     examples.RecruiterConversations,
		Instructions: instructions,
	}
}

// DisplayName is the persona's name, or a neutral placeholder.
func (c Config) DisplayName() string {
	if name := c.Profile.Name(); name != "" {
		return name
	}
	return "the candidate"
}

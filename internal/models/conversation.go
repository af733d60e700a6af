package models

import "time"

// Role is the speaker of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnKind tags what a turn means to the RFQ dialogue so a transcript can be replayed.
type TurnKind string

const (
	KindDescription   TurnKind = "description"
	KindRephrase      TurnKind = "rephrase"
	KindLocation      TurnKind = "location"
	KindPrompt        TurnKind = "prompt"
	KindPlan          TurnKind = "plan"
	KindQuestion      TurnKind = "question"
	KindClarification TurnKind = "clarification"
	KindAnswer        TurnKind = "answer"
	KindNotice        TurnKind = "notice"
	KindEmail         TurnKind = "email"
	KindDispatch      TurnKind = "dispatch"
	KindReset         TurnKind = "reset"
)

// ChatTurn is one message in a conversation transcript.
type ChatTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      TurnKind  `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Phase is the position of a conversation in the RFQ dialogue.
type Phase string

const (
	PhaseNoDescription      Phase = "no_description"
	PhaseAwaitingLocation   Phase = "awaiting_location"
	PhaseAskingQuestions    Phase = "asking_questions"
	PhaseComposing          Phase = "composing"
	PhaseSelectingSuppliers Phase = "selecting_suppliers"
	PhaseTerminated         Phase = "terminated"
)

// ConversationState is the live state of one briefing's RFQ dialogue.
type ConversationState struct {
	BriefingID       string     `json:"briefing_id"`
	Phase            Phase      `json:"phase"`
	Description      string     `json:"description"`
	Location         string     `json:"location,omitempty"`
	AwaitingLocation bool       `json:"awaiting_location"`
	NeedsRephrase    bool       `json:"needs_rephrase,omitempty"`
	Questions        []string   `json:"questions,omitempty"`
	QuestionIndex    int        `json:"question_index"`
	Clarifying       bool       `json:"clarifying,omitempty"`
	Answers          []string   `json:"answers,omitempty"`
	Email            string     `json:"email,omitempty"`
	Suppliers        []Supplier `json:"suppliers,omitempty"`
	History          []ChatTurn `json:"history"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Questions = append([]string(nil), s.Questions...)
	out.Answers = append([]string(nil), s.Answers...)
	out.Suppliers = append([]Supplier(nil), s.Suppliers...)
	out.History = append([]ChatTurn(nil), s.History...)
	return &out
}

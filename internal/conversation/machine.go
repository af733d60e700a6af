// Package conversation drives the RFQ dialogue: collect a description and a
// location, ask clarifying questions, compose the RFQ email and pick suppliers.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/ai"
	"github.com/hyperjump/rfqrank/internal/metrics"
	"github.com/hyperjump/rfqrank/internal/models"
)

// DefaultSupplierLimit caps the suppliers offered after composing.
const DefaultSupplierLimit = 10

// Persistence stores conversation state and the append-only transcript.
type Persistence interface {
	SaveState(ctx context.Context, state *models.ConversationState) error
	// LoadState returns nil when nothing is stored.
	LoadState(ctx context.Context, briefingID string) (*models.ConversationState, error)
	DeleteState(ctx context.Context, briefingID string) error
	AppendTranscript(ctx context.Context, briefingID string, turns ...models.ChatTurn) error
	LoadTranscript(ctx context.Context, briefingID string) ([]models.ChatTurn, error)
}

// SupplierSearcher finds suppliers for a product description near a location.
// Zero results is not an error.
type SupplierSearcher interface {
	Search(ctx context.Context, description, location string, limit int) ([]*models.Supplier, error)
}

// Config holds the collaborators of a Machine.
type Config struct {
	Generator   ai.Generator
	Live        StateStore
	Persistence Persistence
	// Suppliers may be nil, in which case every conversation ends after composing.
	Suppliers     SupplierSearcher
	SupplierLimit int
	Logger        *zap.Logger
}

// Response is what the buyer sees after a turn.
type Response struct {
	BriefingID     string            `json:"briefing_id"`
	Message        string            `json:"message"`
	Phase          models.Phase      `json:"phase"`
	QuestionNumber int               `json:"question_number,omitempty"`
	TotalQuestions int               `json:"total_questions,omitempty"`
	Clarification  bool              `json:"clarification,omitempty"`
	Email          string            `json:"email,omitempty"`
	Suppliers      []models.Supplier `json:"suppliers,omitempty"`
}

// Dispatch is an RFQ email addressed to the selected suppliers. Suppliers without
// an email address are reported as skipped.
type Dispatch struct {
	BriefingID string            `json:"briefing_id"`
	Email      string            `json:"email"`
	Recipients []models.Supplier `json:"recipients"`
	Skipped    []models.Supplier `json:"skipped,omitempty"`
}

// Machine runs RFQ conversations. Turns for the same briefing are serialized;
// different briefings proceed independently.
type Machine struct {
	gen           ai.Generator
	live          StateStore
	persist       Persistence
	suppliers     SupplierSearcher
	supplierLimit int
	logger        *zap.Logger
	locks         *KeyedMutex
	now           func() time.Time
}

// NewMachine creates a Machine. Live defaults to an in-memory store.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Generator == nil {
		return nil, errors.New("conversation: generator is required")
	}
	if cfg.Persistence == nil {
		return nil, errors.New("conversation: persistence is required")
	}
	if cfg.Live == nil {
		cfg.Live = NewMemoryStateStore()
	}
	if cfg.SupplierLimit <= 0 {
		cfg.SupplierLimit = DefaultSupplierLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Machine{
		gen:           cfg.Generator,
		live:          cfg.Live,
		persist:       cfg.Persistence,
		suppliers:     cfg.Suppliers,
		supplierLimit: cfg.SupplierLimit,
		logger:        cfg.Logger,
		locks:         NewKeyedMutex(),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start begins a new conversation with the buyer's description, abandoning any
// conversation in progress for the briefing.
func (m *Machine) Start(ctx context.Context, briefingID, description string) (*Response, error) {
	briefingID = strings.TrimSpace(briefingID)
	description = strings.TrimSpace(description)
	if briefingID == "" {
		return nil, fmt.Errorf("briefing ID is required: %w", models.ErrInvalidInput)
	}
	if description == "" {
		return nil, fmt.Errorf("description is required: %w", models.ErrInvalidInput)
	}

	unlock := m.locks.Lock(briefingID)
	defer unlock()

	state := &models.ConversationState{
		BriefingID:       briefingID,
		Phase:            models.PhaseAwaitingLocation,
		Description:      description,
		AwaitingLocation: true,
	}
	turns := []models.ChatTurn{
		m.turn(models.RoleUser, models.KindDescription, description),
		m.turn(models.RoleAssistant, models.KindPrompt, locationPrompt),
	}
	state.History = append(state.History, turns...)
	if err := m.commit(ctx, state, turns...); err != nil {
		return nil, err
	}

	m.logger.Info("Conversation started", zap.String("briefing_id", briefingID))
	metrics.ConversationTurns.WithLabelValues(string(state.Phase)).Inc()
	return &Response{BriefingID: briefingID, Message: locationPrompt, Phase: state.Phase}, nil
}

// Reply processes the buyer's next message.
func (m *Machine) Reply(ctx context.Context, briefingID, message string) (*Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message is required: %w", models.ErrInvalidInput)
	}

	unlock := m.locks.Lock(briefingID)
	defer unlock()

	state, err := m.load(ctx, briefingID)
	if err != nil {
		return nil, err
	}

	var resp *Response
	switch state.Phase {
	case models.PhaseAwaitingLocation:
		resp, err = m.replyLocation(ctx, state, message)
	case models.PhaseAskingQuestions:
		resp, err = m.replyAnswer(ctx, state, message)
	case models.PhaseSelectingSuppliers:
		resp, err = m.replySelecting(ctx, state, message)
	default:
		return nil, fmt.Errorf("conversation %s is %s: %w", briefingID, state.Phase, models.ErrConversationNotFound)
	}
	if err != nil {
		return nil, err
	}
	metrics.ConversationTurns.WithLabelValues(string(resp.Phase)).Inc()
	return resp, nil
}

// replyLocation takes the location, or a rephrased description after the model
// found nothing to ask, and generates the question batch.
func (m *Machine) replyLocation(ctx context.Context, state *models.ConversationState, message string) (*Response, error) {
	kind := models.KindLocation
	if state.NeedsRephrase {
		kind = models.KindRephrase
	}
	if err := m.recordUser(ctx, state, kind, message); err != nil {
		return nil, err
	}

	next := state.Clone()
	if kind == models.KindRephrase {
		next.Description = message
	} else {
		next.Location = message
	}
	next.AwaitingLocation = false

	text, err := m.gen.Generate(ctx, questionsPrompt(next.Description, next.Location))
	if err != nil {
		return nil, m.failed(state, "generate questions", err)
	}
	questions := UsableQuestions(text)

	if len(questions) == 0 {
		m.logger.Info("No usable questions generated",
			zap.String("briefing_id", state.BriefingID),
			zap.Int("response_len", len(text)))
		next.NeedsRephrase = true
		notice := m.turn(models.RoleAssistant, models.KindNotice, rephraseMessage)
		next.History = append(next.History, notice)
		if err := m.commit(ctx, next, notice); err != nil {
			return nil, err
		}
		return &Response{BriefingID: next.BriefingID, Message: rephraseMessage, Phase: next.Phase}, nil
	}

	next.NeedsRephrase = false
	next.Phase = models.PhaseAskingQuestions
	next.Questions = questions
	next.QuestionIndex = 0
	next.Answers = nil
	next.Clarifying = false

	plan := m.turn(models.RoleAssistant, models.KindPlan, formatPlan(questions))
	ask := m.turn(models.RoleAssistant, models.KindQuestion, formatQuestion(0, questions))
	next.History = append(next.History, plan, ask)
	if err := m.commit(ctx, next, plan, ask); err != nil {
		return nil, err
	}
	return questionResponse(next, ask.Content, false), nil
}

// replyAnswer records the answer to the current question and either asks one
// clarifying follow-up, moves to the next question, or composes the email.
func (m *Machine) replyAnswer(ctx context.Context, state *models.ConversationState, message string) (*Response, error) {
	if state.QuestionIndex < 0 || state.QuestionIndex >= len(state.Questions) {
		return nil, fmt.Errorf("conversation %s has no question %d: %w", state.BriefingID, state.QuestionIndex+1, models.ErrConversationNotFound)
	}
	if err := m.recordUser(ctx, state, models.KindAnswer, message); err != nil {
		return nil, err
	}

	next := state.Clone()
	i := next.QuestionIndex
	recordAnswer(next, i, message)

	if !state.Clarifying {
		text, err := m.gen.Generate(ctx, clarifyPrompt(next.Description, next.Questions[i], next.Answers[i]))
		if err != nil {
			return nil, m.failed(state, "check answer", err)
		}
		if follow := UsableQuestions(text); len(follow) == 1 {
			next.Clarifying = true
			t := m.turn(models.RoleAssistant, models.KindClarification, follow[0])
			next.History = append(next.History, t)
			if err := m.commit(ctx, next, t); err != nil {
				return nil, err
			}
			return questionResponse(next, follow[0], true), nil
		}
	}

	next.Clarifying = false
	next.QuestionIndex = i + 1
	if next.QuestionIndex < len(next.Questions) {
		ask := m.turn(models.RoleAssistant, models.KindQuestion, formatQuestion(next.QuestionIndex, next.Questions))
		next.History = append(next.History, ask)
		if err := m.commit(ctx, next, ask); err != nil {
			return nil, err
		}
		return questionResponse(next, ask.Content, false), nil
	}
	return m.compose(ctx, state, next)
}

// compose writes the RFQ email and looks for suppliers. Nothing is committed when
// the email cannot be generated, so the last answer can be sent again.
func (m *Machine) compose(ctx context.Context, state, next *models.ConversationState) (*Response, error) {
	next.Phase = models.PhaseComposing

	text, err := m.gen.Generate(ctx, emailPrompt(next.Description, next.Location, next.Questions, next.Answers))
	if err != nil {
		return nil, m.failed(state, "compose email", err)
	}
	email := ai.StripCodeFences(text)
	if email == "" {
		return nil, m.failed(state, "compose email", ai.ErrEmptyResponse)
	}
	next.Email = email
	emailTurn := m.turn(models.RoleAssistant, models.KindEmail, email)

	found := m.searchSuppliers(ctx, next)
	if len(found) == 0 {
		next.Phase = models.PhaseTerminated
		notice := m.turn(models.RoleAssistant, models.KindNotice, noSupplierMsg)
		next.History = append(next.History, emailTurn, notice)
		if err := m.finish(ctx, next, emailTurn, notice); err != nil {
			return nil, err
		}
		m.logger.Info("Conversation finished without suppliers", zap.String("briefing_id", next.BriefingID))
		return &Response{BriefingID: next.BriefingID, Message: noSupplierMsg, Phase: next.Phase, Email: email}, nil
	}

	next.Phase = models.PhaseSelectingSuppliers
	next.Suppliers = found
	msg := fmt.Sprintf(selectMessage, len(found))
	notice := m.turn(models.RoleAssistant, models.KindNotice, msg)
	next.History = append(next.History, emailTurn, notice)
	if err := m.commit(ctx, next, emailTurn, notice); err != nil {
		return nil, err
	}
	m.logger.Info("RFQ composed",
		zap.String("briefing_id", next.BriefingID),
		zap.Int("suppliers", len(found)))
	return &Response{
		BriefingID: next.BriefingID,
		Message:    msg,
		Phase:      next.Phase,
		Email:      email,
		Suppliers:  found,
	}, nil
}

func (m *Machine) replySelecting(ctx context.Context, state *models.ConversationState, message string) (*Response, error) {
	if err := m.recordUser(ctx, state, models.KindAnswer, message); err != nil {
		return nil, err
	}
	notice := m.turn(models.RoleAssistant, models.KindNotice, pendingMessage)
	state.History = append(state.History, notice)
	if err := m.commit(ctx, state, notice); err != nil {
		return nil, err
	}
	return &Response{
		BriefingID: state.BriefingID,
		Message:    pendingMessage,
		Phase:      state.Phase,
		Email:      state.Email,
		Suppliers:  state.Suppliers,
	}, nil
}

// searchSuppliers is best effort: a failing search counts as no results.
func (m *Machine) searchSuppliers(ctx context.Context, state *models.ConversationState) []models.Supplier {
	if m.suppliers == nil {
		return nil
	}
	found, err := m.suppliers.Search(ctx, state.Description, state.Location, m.supplierLimit)
	if err != nil {
		m.logger.Warn("Supplier search failed",
			zap.String("briefing_id", state.BriefingID),
			zap.Error(err))
		return nil
	}
	out := make([]models.Supplier, 0, len(found))
	for _, s := range found {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// Select addresses the composed email to the chosen suppliers and ends the
// conversation. Sending is left to the caller.
func (m *Machine) Select(ctx context.Context, briefingID string, supplierKeys []string) (*Dispatch, error) {
	if len(supplierKeys) == 0 {
		return nil, fmt.Errorf("no suppliers selected: %w", models.ErrInvalidInput)
	}

	unlock := m.locks.Lock(briefingID)
	defer unlock()

	state, err := m.load(ctx, briefingID)
	if err != nil {
		return nil, err
	}
	if state.Phase != models.PhaseSelectingSuppliers {
		return nil, fmt.Errorf("conversation %s is %s, not selecting suppliers: %w", briefingID, state.Phase, models.ErrInvalidInput)
	}

	byKey := make(map[string]models.Supplier, len(state.Suppliers))
	for _, s := range state.Suppliers {
		byKey[s.Key] = s
	}
	d := &Dispatch{BriefingID: briefingID, Email: state.Email}
	seen := make(map[string]bool, len(supplierKeys))
	var names []string
	for _, key := range supplierKeys {
		s, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("supplier %q was not offered: %w", key, models.ErrInvalidInput)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		if s.Email == nil || strings.TrimSpace(*s.Email) == "" {
			d.Skipped = append(d.Skipped, s)
			continue
		}
		d.Recipients = append(d.Recipients, s)
		names = append(names, s.Name)
	}
	if len(d.Recipients) == 0 {
		return nil, fmt.Errorf("none of the selected suppliers has an email address: %w", models.ErrInvalidInput)
	}

	state.Phase = models.PhaseTerminated
	t := m.turn(models.RoleAssistant, models.KindDispatch, "RFQ addressed to "+strings.Join(names, ", ")+".")
	state.History = append(state.History, t)
	if err := m.finish(ctx, state, t); err != nil {
		return nil, err
	}
	metrics.ConversationTurns.WithLabelValues(string(state.Phase)).Inc()
	m.logger.Info("RFQ dispatched",
		zap.String("briefing_id", briefingID),
		zap.Int("recipients", len(d.Recipients)),
		zap.Int("skipped", len(d.Skipped)))
	return d, nil
}

// Reset abandons the conversation for a briefing. The transcript keeps a marker
// so the abandoned conversation is not replayed.
func (m *Machine) Reset(ctx context.Context, briefingID string) error {
	unlock := m.locks.Lock(briefingID)
	defer unlock()

	if err := m.persist.AppendTranscript(ctx, briefingID, m.turn(models.RoleAssistant, models.KindReset, resetMessage)); err != nil {
		return fmt.Errorf("failed to record reset: %w", err)
	}
	if err := m.live.Delete(ctx, briefingID); err != nil {
		m.logger.Warn("Failed to delete live conversation", zap.String("briefing_id", briefingID), zap.Error(err))
	}
	if err := m.persist.DeleteState(ctx, briefingID); err != nil {
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	m.logger.Info("Conversation reset", zap.String("briefing_id", briefingID))
	return nil
}

// State returns a copy of the conversation state, recovering it if needed.
func (m *Machine) State(ctx context.Context, briefingID string) (*models.ConversationState, error) {
	unlock := m.locks.Lock(briefingID)
	defer unlock()
	return m.load(ctx, briefingID)
}

// SweepIdle drops live states idle for longer than maxIdle. Persisted state is
// kept, so a swept conversation can still be resumed.
func (m *Machine) SweepIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	sw, ok := m.live.(Sweeper)
	if !ok {
		return 0, nil
	}
	return sw.Sweep(ctx, m.now().Add(-maxIdle))
}

// recordUser appends the buyer's turn to history and saves it before any model
// call, so a failed turn still shows what the buyer said.
func (m *Machine) recordUser(ctx context.Context, state *models.ConversationState, kind models.TurnKind, message string) error {
	t := m.turn(models.RoleUser, kind, message)
	state.History = append(state.History, t)
	return m.commit(ctx, state, t)
}

// commit appends turns to the transcript and saves state to both stores.
func (m *Machine) commit(ctx context.Context, state *models.ConversationState, turns ...models.ChatTurn) error {
	state.UpdatedAt = m.now()
	if err := m.persist.AppendTranscript(ctx, state.BriefingID, turns...); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	if err := m.persist.SaveState(ctx, state); err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	if err := m.live.Put(ctx, state); err != nil {
		m.logger.Warn("Failed to store live conversation", zap.String("briefing_id", state.BriefingID), zap.Error(err))
	}
	return nil
}

// finish appends the final turns and clears the conversation state.
func (m *Machine) finish(ctx context.Context, state *models.ConversationState, turns ...models.ChatTurn) error {
	if err := m.persist.AppendTranscript(ctx, state.BriefingID, turns...); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	if err := m.live.Delete(ctx, state.BriefingID); err != nil {
		m.logger.Warn("Failed to delete live conversation", zap.String("briefing_id", state.BriefingID), zap.Error(err))
	}
	if err := m.persist.DeleteState(ctx, state.BriefingID); err != nil {
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	return nil
}

func (m *Machine) failed(state *models.ConversationState, step string, err error) error {
	m.logger.Warn("Conversation turn failed",
		zap.String("briefing_id", state.BriefingID),
		zap.String("phase", string(state.Phase)),
		zap.String("step", step),
		zap.Error(err))
	return fmt.Errorf("%s: %w", step, err)
}

func (m *Machine) turn(role models.Role, kind models.TurnKind, content string) models.ChatTurn {
	return models.ChatTurn{Role: role, Kind: kind, Content: content, CreatedAt: m.now()}
}

// recordAnswer stores message as the answer to question i. A reply to a
// clarification extends the existing answer.
func recordAnswer(state *models.ConversationState, i int, message string) {
	for len(state.Answers) < i {
		state.Answers = append(state.Answers, "")
	}
	if len(state.Answers) > i {
		if state.Answers[i] == "" {
			state.Answers[i] = message
		} else {
			state.Answers[i] += "\n" + message
		}
		return
	}
	state.Answers = append(state.Answers, message)
}

func questionResponse(state *models.ConversationState, message string, clarification bool) *Response {
	return &Response{
		BriefingID:     state.BriefingID,
		Message:        message,
		Phase:          state.Phase,
		QuestionNumber: state.QuestionIndex + 1,
		TotalQuestions: len(state.Questions),
		Clarification:  clarification,
	}
}

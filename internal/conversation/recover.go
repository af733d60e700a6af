package conversation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/metrics"
	"github.com/hyperjump/rfqrank/internal/models"
)

// load returns the live state for a briefing, falling back to the persisted
// state and then to a transcript replay. It never invents a conversation.
func (m *Machine) load(ctx context.Context, briefingID string) (*models.ConversationState, error) {
	state, err := m.live.Get(ctx, briefingID)
	if err != nil {
		m.logger.Warn("Live conversation store unavailable", zap.String("briefing_id", briefingID), zap.Error(err))
	} else if state != nil {
		return state, nil
	}

	state, err = m.persist.LoadState(ctx, briefingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state != nil {
		m.restored(ctx, state, "state")
		return state, nil
	}

	turns, err := m.persist.LoadTranscript(ctx, briefingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	state, ok := Replay(briefingID, turns)
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", briefingID, models.ErrConversationNotFound)
	}
	state.UpdatedAt = m.now()
	if err := m.persist.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save conversation state: %w", err)
	}
	m.restored(ctx, state, "transcript")
	return state, nil
}

func (m *Machine) restored(ctx context.Context, state *models.ConversationState, source string) {
	if err := m.live.Put(ctx, state); err != nil {
		m.logger.Warn("Failed to store live conversation", zap.String("briefing_id", state.BriefingID), zap.Error(err))
	}
	metrics.ConversationRecoveries.WithLabelValues(source).Inc()
	m.logger.Info("Conversation recovered",
		zap.String("briefing_id", state.BriefingID),
		zap.String("source", source),
		zap.String("phase", string(state.Phase)))
}

// Replay rebuilds the state of the latest conversation in a transcript. It
// reports false when there is none, or when the latest one already ended.
// Buyer turns after the last assistant turn were never answered and only go
// into history.
func Replay(briefingID string, turns []models.ChatTurn) (*models.ConversationState, bool) {
	start := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == models.RoleUser && turns[i].Kind == models.KindDescription {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false
	}

	lastAssistant := -1
	for i := start; i < len(turns); i++ {
		switch turns[i].Kind {
		case models.KindEmail, models.KindDispatch, models.KindReset:
			return nil, false
		}
		if turns[i].Role == models.RoleAssistant {
			lastAssistant = i
		}
	}

	state := &models.ConversationState{
		BriefingID:       briefingID,
		Phase:            models.PhaseAwaitingLocation,
		Description:      turns[start].Content,
		AwaitingLocation: true,
		History:          append([]models.ChatTurn(nil), turns[start:]...),
	}

	for i := start + 1; i <= lastAssistant; i++ {
		t := turns[i]
		switch t.Kind {
		case models.KindRephrase:
			state.Description = t.Content
			state.NeedsRephrase = false
		case models.KindLocation:
			state.Location = t.Content
			state.AwaitingLocation = false
		case models.KindNotice:
			if state.Phase == models.PhaseAwaitingLocation {
				state.NeedsRephrase = true
			}
		case models.KindPlan:
			state.Phase = models.PhaseAskingQuestions
			state.Questions = parsePlan(t.Content)
			state.QuestionIndex = 0
			state.Answers = nil
			state.Clarifying = false
			state.NeedsRephrase = false
		case models.KindQuestion:
			idx, text, ok := parseQuestionTurn(t.Content)
			if !ok {
				continue
			}
			state.Phase = models.PhaseAskingQuestions
			for len(state.Questions) <= idx {
				state.Questions = append(state.Questions, "")
			}
			if state.Questions[idx] == "" {
				state.Questions[idx] = text
			}
			state.QuestionIndex = idx
			state.Clarifying = false
			if len(state.Answers) > idx {
				state.Answers = state.Answers[:idx]
			}
		case models.KindClarification:
			state.Clarifying = true
		case models.KindAnswer:
			if state.Phase == models.PhaseAskingQuestions {
				recordAnswer(state, state.QuestionIndex, t.Content)
			}
		}
	}

	if state.Phase == models.PhaseAskingQuestions {
		if state.QuestionIndex >= len(state.Questions) {
			return nil, false
		}
		for _, q := range state.Questions {
			if q == "" {
				return nil, false
			}
		}
	}
	return state, true
}

package callgrade

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/interaction"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrMalformedMessage marks messages that can never succeed. They are
// dropped instead of dead-lettered.
var ErrMalformedMessage = errors.New("malformed message")

type InteractionMessage struct {
	CallID      uint           `json:"call_id"`
	UserID      uint           `json:"user_id"`
	Action      string         `json:"action"`
	PageSeconds *int           `json:"page_seconds,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  *time.Time     `json:"occurred_at,omitempty"`
}

type GradeSubmittedMessage struct {
	GradeID uint `json:"grade_id"`
}

type MessagePublisher interface {
	PublishJSON(topic, key string, payload any) error
}

// EventHandler applies consumed events to the services. The same handlers
// serve live consumption and dead-letter reprocessing.
type EventHandler struct {
	Interactions  *interaction.InteractionService
	Grades        *grade.GradeService
	Publisher     MessagePublisher
	FeedbackTopic string
}

func (h *EventHandler) HandleInteraction(ctx context.Context, _, value []byte) error {
	var message InteractionMessage

	err := json.Unmarshal(value, &message)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	var occurredAt time.Time
	if message.OccurredAt != nil {
		occurredAt = *message.OccurredAt
	}

	// Events are stamped with their own time so a late replay does not
	// reorder them against the terminal action of the same session.
	_, err = h.Interactions.RecordAt(
		ctx,
		occurredAt,
		message.CallID,
		message.UserID,
		message.Action,
		message.PageSeconds,
		message.Metadata,
	)
	if errors.Is(err, interaction.ErrInvalidAction) || errors.Is(err, interaction.ErrMissingParticipant) {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return err
}

// HandleGradeSubmitted finalizes the grade and publishes its feedback.
// Finalizing twice is harmless, so a failed publish is retried as a whole.
func (h *EventHandler) HandleGradeSubmitted(ctx context.Context, _, value []byte) error {
	var message GradeSubmittedMessage

	err := json.Unmarshal(value, &message)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if message.GradeID == 0 {
		return fmt.Errorf("%w: grade_id is required", ErrMalformedMessage)
	}

	feedback, err := h.Grades.Finalize(ctx, message.GradeID)
	if err != nil {
		return fmt.Errorf("finalize grade %d: %w", message.GradeID, err)
	}

	if h.Publisher == nil {
		return nil
	}

	err = h.Publisher.PublishJSON(h.FeedbackTopic, strconv.FormatUint(uint64(message.GradeID), 10), feedback)
	if err != nil {
		return fmt.Errorf("publish feedback for grade %d: %w", message.GradeID, err)
	}

	logging.Logger.Info("[HandleGradeSubmitted] Grade feedback published",
		zap.Uint("grade_id", message.GradeID),
		zap.String("band", feedback.Result.Band),
	)

	return nil
}

// AbandonedPublisher sends sweeper flags to Kafka keyed by call and reviewer.
type AbandonedPublisher struct {
	Publisher MessagePublisher
	Topic     string
}

func (p *AbandonedPublisher) PublishAbandoned(_ context.Context, event *interaction.CallInteraction) error {
	return p.Publisher.PublishJSON(p.Topic, fmt.Sprintf("%d:%d", event.CallID, event.UserID), event)
}

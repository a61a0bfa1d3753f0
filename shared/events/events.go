package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicActivityRecorded    = "activity.recorded"
	TopicNotificationCreated = "notification.created"
)

const (
	EventActivityRecorded    = "activity_recorded"
	EventNotificationCreated = "notification_created"
)

func NewEnvelope(aggregateType string, aggregateID int64, eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// Key partitions messages by aggregate so one entity's events stay ordered.
func (e Envelope) Key() []byte {
	return []byte(e.AggregateType + ":" + strconv.FormatInt(e.AggregateID, 10))
}

func (e Envelope) Headers() map[string]string {
	return map[string]string{
		"event_id":       e.EventID.String(),
		"event_type":     e.EventType,
		"aggregate_type": e.AggregateType,
		"aggregate_id":   strconv.FormatInt(e.AggregateID, 10),
		"published_at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
}

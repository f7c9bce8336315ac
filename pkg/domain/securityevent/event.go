package securityevent

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryPointer    Category = "pointer"
	CategoryKey        Category = "key"
	CategoryVisibility Category = "visibility"
	CategoryAutomation Category = "automation"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryPointer, CategoryKey, CategoryVisibility, CategoryAutomation:
		return true
	}
	return false
}

// Payload carries the raw client measurements for one event. Fields
// are populated according to the event category.
type Payload struct {
	X          float64  `json:"x,omitempty"`
	Y          float64  `json:"y,omitempty"`
	Key        string   `json:"key,omitempty"`
	Modifiers  []string `json:"modifiers,omitempty"`
	Hidden     bool     `json:"hidden,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty"`
	Synthetic  bool     `json:"synthetic,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// Event is an immutable security fact. It is written once when
// ingested and only ever aggregated afterwards.
type Event struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID       string    `json:"session_id" gorm:"index:idx_security_events_session_ts,priority:1"`
	Category        Category  `json:"category"`
	Payload         Payload   `json:"payload" gorm:"serializer:json"`
	ClientTimestamp int64     `json:"client_timestamp"`
	ReceivedAt      time.Time `json:"received_at" gorm:"index:idx_security_events_session_ts,priority:2"`
	RiskDelta       float64   `json:"risk_delta"`
}

func (Event) TableName() string {
	return "security_events"
}

func New(sessionID string, category Category, payload Payload, clientTimestamp int64) *Event {
	return &Event{
		ID:              uuid.New(),
		SessionID:       sessionID,
		Category:        category,
		Payload:         payload,
		ClientTimestamp: clientTimestamp,
		ReceivedAt:      time.Now(),
	}
}

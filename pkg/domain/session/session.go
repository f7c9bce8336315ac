package session

import (
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateProvisioning State = "provisioning"
	StateActive       State = "active"
	StateIdleWarned   State = "idle-warned"
	StateTerminated   State = "terminated"
)

const (
	EndReasonExplicit    = "explicit-end"
	EndReasonIdleTimeout = "idle-timeout"
	EndReasonAutoSuspend = "auto-suspend"
	EndReasonShutdown    = "shutdown"
)

// RiskProfile is the running aggregate maintained by the risk
// pipeline. Score stays inside [0,100]; the violation tally only
// grows.
type RiskProfile struct {
	Score          float64  `json:"score"`
	Flags          []string `json:"flags,omitempty"`
	ViolationTally int      `json:"violation_tally"`
}

// Session is one live isolated monitoring endpoint bound to a single
// exam attempt.
type Session struct {
	ID           string         `json:"id"`
	AttemptID    string         `json:"attempt_id"`
	SubjectID    string         `json:"subject_id"`
	Port         int            `json:"port"`
	EndpointURI  string         `json:"endpoint_uri"`
	State        State          `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Risk         RiskProfile    `json:"risk"`
	Violations   map[string]int `json:"violations,omitempty"`
}

func NewSession(attemptID, subjectID string, port int) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		AttemptID:    attemptID,
		SubjectID:    subjectID,
		Port:         port,
		State:        StateProvisioning,
		CreatedAt:    now,
		LastActivity: now,
		Violations:   make(map[string]int),
	}
}

func (s *Session) Touch() {
	s.LastActivity = time.Now()
	if s.State == StateIdleWarned {
		s.State = StateActive
	}
}

func (s *Session) Terminated() bool {
	return s.State == StateTerminated
}

// Summary is the durable record flushed when a session terminates.
type Summary struct {
	SessionID      string    `json:"session_id" gorm:"primaryKey"`
	AttemptID      string    `json:"attempt_id" gorm:"index"`
	SubjectID      string    `json:"subject_id" gorm:"index"`
	RiskScore      float64   `json:"risk_score"`
	ViolationTally int       `json:"violation_tally"`
	Flags          []string  `json:"flags,omitempty" gorm:"serializer:json"`
	Reason         string    `json:"reason"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

func (Summary) TableName() string {
	return "session_summaries"
}

package notify

import (
	"encoding/json"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
)

// Event is a structured fact emitted by the monitoring core. Facts
// describe what happened; they never instruct a collaborator.
type Event interface {
	Type() string
}

// RedisMessage is the wire envelope published on a channel.
type RedisMessage struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

type SessionStartedEvent struct {
	SessionID   string    `json:"session_id"`
	AttemptID   string    `json:"attempt_id"`
	SubjectID   string    `json:"subject_id"`
	Port        int       `json:"port"`
	EndpointURI string    `json:"endpoint_uri"`
	At          time.Time `json:"at"`
}

func (SessionStartedEvent) Type() string { return "session_started" }

type SessionEndedEvent struct {
	SessionID string          `json:"session_id"`
	Summary   session.Summary `json:"summary"`
	At        time.Time       `json:"at"`
}

func (SessionEndedEvent) Type() string { return "session_ended" }

type SecurityAlertEvent struct {
	SessionID string    `json:"session_id"`
	Flag      string    `json:"flag"`
	RiskScore float64   `json:"risk_score"`
	At        time.Time `json:"at"`
}

func (SecurityAlertEvent) Type() string { return "security_alert" }

type ClientBannedEvent struct {
	Identity  string     `json:"identity"`
	Level     string     `json:"level"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	At        time.Time  `json:"at"`
}

func (ClientBannedEvent) Type() string { return "client_banned" }

type ClientUnbannedEvent struct {
	Identity string    `json:"identity"`
	At       time.Time `json:"at"`
}

func (ClientUnbannedEvent) Type() string { return "client_unbanned" }

package response

import (
	"github.com/ExamTrust/ProctorGate/pkg/domain/ban"
	"github.com/ExamTrust/ProctorGate/pkg/domain/securityevent"
	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
)

type SessionListResponse struct {
	Sessions []*session.Session `json:"sessions"`
	Count    int                `json:"count"`
}

type EventListResponse struct {
	Events []*securityevent.Event `json:"events"`
	Count  int                    `json:"count"`
}

type BanListResponse struct {
	Bans  []*ban.Record `json:"bans"`
	Count int           `json:"count"`
}

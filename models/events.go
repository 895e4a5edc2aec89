package models

import "github.com/ethereum/go-ethereum/common"

// EventType labels an entry in the audit journal.
type EventType string

const (
	EventSessionCreated  EventType = "session-created"
	EventCandidateAdded  EventType = "candidate-added"
	EventVoteCast        EventType = "vote-cast"
	EventVoterAuthorized EventType = "voter-authorized"
	EventSessionEnded    EventType = "session-ended"
)

type SessionCreatedEvent struct {
	SessionID uint64 `json:"session_id"`
	Title     string `json:"title"`
}

type CandidateAddedEvent struct {
	SessionID   uint64 `json:"session_id"`
	CandidateID uint64 `json:"candidate_id"`
	Name        string `json:"name"`
}

type VoteCastEvent struct {
	SessionID   uint64         `json:"session_id"`
	CandidateID uint64         `json:"candidate_id"`
	Voter       common.Address `json:"voter"`
}

type VoterAuthorizedEvent struct {
	Identity common.Address `json:"identity"`
}

type SessionEndedEvent struct {
	SessionID uint64 `json:"session_id"`
}

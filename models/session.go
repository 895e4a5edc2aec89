package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Candidate is one nominee inside a voting session. Ids are dense and
// zero-based within the session, assigned in insertion order and never
// reused, so a candidate id is valid exactly when it is below the
// session's candidate count.
type Candidate struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	VoteCount uint64 `json:"vote_count"`
}

// VotingSession is one time-bounded voting round. Sessions are append-only:
// once created they are never removed, candidates are never removed, and
// vote counts only grow. The Active flag flips exactly once, through an
// explicit end operation. Passage of EndTime does not clear the flag; it
// only blocks new votes.
type VotingSession struct {
	ID         uint64                  `json:"id"`
	Title      string                  `json:"title"`
	StartTime  time.Time               `json:"start_time"`
	EndTime    time.Time               `json:"end_time"`
	Active     bool                    `json:"active"`
	Candidates []*Candidate            `json:"candidates"`
	Voted      map[common.Address]bool `json:"voted"`
	TotalVotes uint64                  `json:"total_votes"`
}

func NewVotingSession(id uint64, title string, start time.Time, duration time.Duration) *VotingSession {
	return &VotingSession{
		ID:        id,
		Title:     title,
		StartTime: start,
		EndTime:   start.Add(duration),
		Active:    true,
		Voted:     make(map[common.Address]bool),
	}
}

// CandidateCount returns the number of candidates registered so far.
func (s *VotingSession) CandidateCount() uint64 {
	return uint64(len(s.Candidates))
}

// HasCandidate reports whether id names a registered candidate.
func (s *VotingSession) HasCandidate(id uint64) bool {
	return id < s.CandidateCount()
}

// HasVoted reports whether identity already cast a vote in this session.
func (s *VotingSession) HasVoted(identity common.Address) bool {
	return s.Voted[identity]
}

package service

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"voting-ledger/models"
)

// Results is the tally for one session: parallel name/count slices in
// candidate insertion order plus the running total.
type Results struct {
	SessionID      uint64   `json:"session_id"`
	CandidateNames []string `json:"candidate_names"`
	VoteCounts     []uint64 `json:"vote_counts"`
	TotalVotes     uint64   `json:"total_votes"`
}

// SessionStatus is the externally visible state of one session. Active
// reports the stored flag only; a session past its end time still shows
// Active=true until it is explicitly ended.
type SessionStatus struct {
	ID             uint64    `json:"id"`
	Title          string    `json:"title"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Active         bool      `json:"active"`
	CandidateCount uint64    `json:"candidate_count"`
	TotalVotes     uint64    `json:"total_votes"`
}

// LedgerStats summarizes the whole deployment.
type LedgerStats struct {
	Authority        common.Address `json:"authority"`
	SessionCount     uint64         `json:"session_count"`
	AuthorizedVoters int            `json:"authorized_voters"`
	JournalLength    int            `json:"journal_length"`
}

// GetResults returns the tally of a session. Readable by anyone at any
// time, before or after the session ends.
func (vl *VotingLedger) GetResults(sessionID uint64) (*Results, error) {
	vl.mu.RLock()
	defer vl.mu.RUnlock()

	session, err := vl.sessionLocked(sessionID)
	if err != nil {
		return nil, err
	}

	results := &Results{
		SessionID:      sessionID,
		CandidateNames: make([]string, 0, len(session.Candidates)),
		VoteCounts:     make([]uint64, 0, len(session.Candidates)),
		TotalVotes:     session.TotalVotes,
	}
	for _, candidate := range session.Candidates {
		results.CandidateNames = append(results.CandidateNames, candidate.Name)
		results.VoteCounts = append(results.VoteCounts, candidate.VoteCount)
	}
	return results, nil
}

// HasVoted reports whether identity has voted in the session. Identities
// that never voted, authorized or not, report false.
func (vl *VotingLedger) HasVoted(sessionID uint64, identity common.Address) (bool, error) {
	vl.mu.RLock()
	defer vl.mu.RUnlock()

	session, err := vl.sessionLocked(sessionID)
	if err != nil {
		return false, err
	}
	return session.HasVoted(identity), nil
}

// GetCandidate returns a copy of one candidate record.
func (vl *VotingLedger) GetCandidate(sessionID, candidateID uint64) (*models.Candidate, error) {
	vl.mu.RLock()
	defer vl.mu.RUnlock()

	session, err := vl.sessionLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasCandidate(candidateID) {
		return nil, ErrInvalidCandidateID
	}

	candidate := *session.Candidates[candidateID]
	return &candidate, nil
}

// GetSessionStatus returns the lifecycle view of one session.
func (vl *VotingLedger) GetSessionStatus(sessionID uint64) (*SessionStatus, error) {
	vl.mu.RLock()
	defer vl.mu.RUnlock()

	session, err := vl.sessionLocked(sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{
		ID:             session.ID,
		Title:          session.Title,
		StartTime:      session.StartTime,
		EndTime:        session.EndTime,
		Active:         session.Active,
		CandidateCount: session.CandidateCount(),
		TotalVotes:     session.TotalVotes,
	}, nil
}

// SessionCount returns the number of sessions ever created.
func (vl *VotingLedger) SessionCount() uint64 {
	vl.mu.RLock()
	defer vl.mu.RUnlock()
	return uint64(len(vl.sessions))
}

// IsAuthorized reports whether identity holds a voting grant.
func (vl *VotingLedger) IsAuthorized(identity common.Address) bool {
	vl.mu.RLock()
	defer vl.mu.RUnlock()
	return vl.authorized[identity]
}

// Stats returns deployment-wide counters.
func (vl *VotingLedger) Stats() *LedgerStats {
	vl.mu.RLock()
	defer vl.mu.RUnlock()
	return &LedgerStats{
		Authority:        vl.authority,
		SessionCount:     uint64(len(vl.sessions)),
		AuthorizedVoters: len(vl.authorized),
		JournalLength:    vl.journal.Len(),
	}
}

package service

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"voting-ledger/journal"
	"voting-ledger/models"
	"voting-ledger/storage"
)

// VotingLedger is the trust-anchored voting state machine. A single fixed
// authority opens sessions, registers candidates, authorizes voters and ends
// sessions; authorized voters cast at most one vote per session. All state is
// append-only: sessions and candidates get dense sequential ids and are never
// removed, authorizations are never revoked, and vote counts only grow.
//
// Every entry point runs under one mutex, so the guard checks and the state
// writes of an operation form a single indivisible step. In particular the
// check-then-set on a voter's per-session vote record can never interleave
// with another operation on the same pair.
type VotingLedger struct {
	mu sync.RWMutex

	authority  common.Address
	sessions   []*models.VotingSession
	authorized map[common.Address]bool

	journal *journal.Log
	store   *storage.JSONStore
	now     func() time.Time
	log     *logrus.Entry
}

// NewVotingLedger restores the ledger from store if a snapshot exists,
// otherwise starts empty with the given authority. A persisted snapshot
// recorded under a different authority is refused: the authority is fixed
// for the lifetime of a deployment.
func NewVotingLedger(authority common.Address, store *storage.JSONStore) (*VotingLedger, error) {
	vl := &VotingLedger{
		authority:  authority,
		authorized: make(map[common.Address]bool),
		journal:    journal.New(),
		store:      store,
		now:        time.Now,
		log:        logrus.WithField("component", "ledger"),
	}

	if store == nil {
		return vl, nil
	}

	state, err := store.LoadState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load ledger state")
	}
	if state != nil {
		if state.Authority != authority {
			return nil, errors.Errorf("stored authority %s does not match configured authority %s",
				state.Authority.Hex(), authority.Hex())
		}
		vl.sessions = state.Sessions
		vl.authorized = state.Authorized
	}

	entries, err := store.LoadJournal()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load journal")
	}
	if len(entries) > 0 {
		log, err := journal.Load(entries)
		if err != nil {
			return nil, err
		}
		vl.journal = log
		vl.log.WithField("entries", len(entries)).Info("Restored audit journal")
	}

	return vl, nil
}

// Authority returns the fixed authority identity.
func (vl *VotingLedger) Authority() common.Address {
	return vl.authority
}

// Journal exposes the audit journal for watchers and the query surface.
func (vl *VotingLedger) Journal() *journal.Log {
	return vl.journal
}

// CreateSession opens a new time-bounded session and returns its dense id.
// Only the authority may call it; duration must be strictly positive.
func (vl *VotingLedger) CreateSession(caller common.Address, title string, duration time.Duration) (uint64, error) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if caller != vl.authority {
		return 0, ErrNotAuthority
	}
	if duration <= 0 {
		return 0, ErrNonPositiveDuration
	}

	id := uint64(len(vl.sessions))
	session := models.NewVotingSession(id, title, vl.now(), duration)
	vl.sessions = append(vl.sessions, session)

	vl.emit(models.EventSessionCreated, models.SessionCreatedEvent{SessionID: id, Title: title})
	vl.persist()

	vl.log.WithFields(logrus.Fields{
		"session": id,
		"title":   title,
		"ends":    session.EndTime,
	}).Info("Voting session created")

	return id, nil
}

// AddCandidate appends a candidate to an active session. Candidate ids are
// dense within the session; the new id equals the prior candidate count.
func (vl *VotingLedger) AddCandidate(caller common.Address, sessionID uint64, name string) (uint64, error) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if caller != vl.authority {
		return 0, ErrNotAuthority
	}
	session, err := vl.sessionLocked(sessionID)
	if err != nil {
		return 0, err
	}
	if !session.Active {
		return 0, ErrSessionInactive
	}
	if name == "" {
		return 0, ErrEmptyCandidateName
	}

	id := session.CandidateCount()
	session.Candidates = append(session.Candidates, &models.Candidate{ID: id, Name: name})

	vl.emit(models.EventCandidateAdded, models.CandidateAddedEvent{
		SessionID:   sessionID,
		CandidateID: id,
		Name:        name,
	})
	vl.persist()

	vl.log.WithFields(logrus.Fields{
		"session":   sessionID,
		"candidate": id,
		"name":      name,
	}).Info("Candidate registered")

	return id, nil
}

// AuthorizeVoter grants identity the right to vote in every session, past
// and future. The grant is one-way; there is no revocation operation.
func (vl *VotingLedger) AuthorizeVoter(caller, identity common.Address) error {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if caller != vl.authority {
		return ErrNotAuthority
	}
	if identity == (common.Address{}) {
		return ErrInvalidVoterIdentity
	}
	if vl.authorized[identity] {
		return ErrVoterAlreadyAuthorized
	}

	vl.authorized[identity] = true

	vl.emit(models.EventVoterAuthorized, models.VoterAuthorizedEvent{Identity: identity})
	vl.persist()

	vl.log.WithField("voter", identity.Hex()).Info("Voter authorized")
	return nil
}

// CastVote records the caller's single vote in a session. All guards are
// evaluated before any mutation; the candidate count, the caller's vote
// record and the session total then move together as one step.
func (vl *VotingLedger) CastVote(caller common.Address, sessionID, candidateID uint64) error {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if !vl.authorized[caller] {
		return ErrNotAuthorizedVoter
	}
	session, err := vl.sessionLocked(sessionID)
	if err != nil {
		return err
	}
	if !session.Active {
		return ErrSessionInactive
	}
	if vl.now().After(session.EndTime) {
		return ErrVotingPeriodEnded
	}
	if session.Voted[caller] {
		return ErrAlreadyVoted
	}
	if !session.HasCandidate(candidateID) {
		return ErrInvalidCandidateID
	}

	session.Candidates[candidateID].VoteCount++
	session.Voted[caller] = true
	session.TotalVotes++

	vl.emit(models.EventVoteCast, models.VoteCastEvent{
		SessionID:   sessionID,
		CandidateID: candidateID,
		Voter:       caller,
	})
	vl.persist()

	vl.log.WithFields(logrus.Fields{
		"session":   sessionID,
		"candidate": candidateID,
		"voter":     caller.Hex(),
	}).Info("Vote cast")

	return nil
}

// EndSession irreversibly deactivates a session. Ending an already-inactive
// session is an error, not a no-op, and emits nothing.
func (vl *VotingLedger) EndSession(caller common.Address, sessionID uint64) error {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if caller != vl.authority {
		return ErrNotAuthority
	}
	session, err := vl.sessionLocked(sessionID)
	if err != nil {
		return err
	}
	if !session.Active {
		return ErrSessionAlreadyInactive
	}

	session.Active = false

	vl.emit(models.EventSessionEnded, models.SessionEndedEvent{SessionID: sessionID})
	vl.persist()

	vl.log.WithField("session", sessionID).Info("Voting session ended")
	return nil
}

// sessionLocked resolves a session id under the ledger lock. Ids are dense,
// so validity is a single bounds check.
func (vl *VotingLedger) sessionLocked(sessionID uint64) (*models.VotingSession, error) {
	if sessionID >= uint64(len(vl.sessions)) {
		return nil, ErrInvalidSessionID
	}
	return vl.sessions[sessionID], nil
}

// emit appends a notification to the audit journal inside the mutating
// critical section, so journal order matches state mutation order.
func (vl *VotingLedger) emit(eventType models.EventType, payload interface{}) {
	if _, err := vl.journal.Append(eventType, payload); err != nil {
		vl.log.WithError(err).WithField("event", eventType).Warn("Failed to append journal entry")
	}
}

// persist writes the current snapshot and journal through the store. The
// in-memory ledger stays authoritative; a failed save is logged and the
// operation still succeeds.
func (vl *VotingLedger) persist() {
	if vl.store == nil {
		return
	}
	state := &storage.LedgerState{
		Authority:  vl.authority,
		Sessions:   vl.sessions,
		Authorized: vl.authorized,
	}
	if err := vl.store.SaveState(state); err != nil {
		vl.log.WithError(err).Warn("Failed to persist ledger state")
	}
	if err := vl.store.SaveJournal(vl.journal.Entries()); err != nil {
		vl.log.WithError(err).Warn("Failed to persist journal")
	}
}

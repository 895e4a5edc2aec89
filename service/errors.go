package service

import "errors"

// Every guard failure maps to exactly one of these values. An operation
// reports the first violated precondition and leaves all state untouched.
var (
	ErrNotAuthority           = errors.New("caller is not the voting authority")
	ErrNotAuthorizedVoter     = errors.New("caller is not an authorized voter")
	ErrInvalidSessionID       = errors.New("invalid session id")
	ErrInvalidCandidateID     = errors.New("invalid candidate id")
	ErrSessionInactive        = errors.New("voting session is not active")
	ErrVotingPeriodEnded      = errors.New("voting period has ended")
	ErrAlreadyVoted           = errors.New("voter has already cast a vote in this session")
	ErrEmptyCandidateName     = errors.New("candidate name must not be empty")
	ErrNonPositiveDuration    = errors.New("session duration must be positive")
	ErrVoterAlreadyAuthorized = errors.New("voter is already authorized")
	ErrInvalidVoterIdentity   = errors.New("voter identity must not be the zero address")
	ErrSessionAlreadyInactive = errors.New("voting session is already inactive")
)

var errorKinds = map[error]string{
	ErrNotAuthority:           "not_authority",
	ErrNotAuthorizedVoter:     "not_authorized_voter",
	ErrInvalidSessionID:       "invalid_session_id",
	ErrInvalidCandidateID:     "invalid_candidate_id",
	ErrSessionInactive:        "session_inactive",
	ErrVotingPeriodEnded:      "voting_period_ended",
	ErrAlreadyVoted:           "already_voted",
	ErrEmptyCandidateName:     "empty_candidate_name",
	ErrNonPositiveDuration:    "non_positive_duration",
	ErrVoterAlreadyAuthorized: "voter_already_authorized",
	ErrInvalidVoterIdentity:   "invalid_voter_identity",
	ErrSessionAlreadyInactive: "session_already_inactive",
}

// ErrorKind returns the stable machine-readable name for a ledger error,
// or "internal" for anything that is not a guard failure.
func ErrorKind(err error) string {
	for sentinel, kind := range errorKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return "internal"
}

// IsGuardError reports whether err is one of the defined precondition
// failures, as opposed to an infrastructure error.
func IsGuardError(err error) bool {
	for sentinel := range errorKinds {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

package service

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-ledger/models"
	"voting-ledger/storage"
)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	voterOne  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	voterTwo  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func newTestLedger(t *testing.T) *VotingLedger {
	t.Helper()
	ledger, err := NewVotingLedger(authority, nil)
	require.NoError(t, err)
	return ledger
}

func TestCreateSessionGuards(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.CreateSession(stranger, "Sneaky", time.Hour)
	assert.ErrorIs(t, err, ErrNotAuthority)

	_, err = ledger.CreateSession(authority, "Instant", 0)
	assert.ErrorIs(t, err, ErrNonPositiveDuration)

	_, err = ledger.CreateSession(authority, "Backwards", -time.Minute)
	assert.ErrorIs(t, err, ErrNonPositiveDuration)

	require.EqualValues(t, 0, ledger.SessionCount())
}

func TestSessionIDsAreDense(t *testing.T) {
	ledger := newTestLedger(t)

	for want := uint64(0); want < 3; want++ {
		id, err := ledger.CreateSession(authority, "Round", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, id)

		// A failed create in between must not burn an id.
		_, err = ledger.CreateSession(stranger, "Nope", time.Hour)
		require.ErrorIs(t, err, ErrNotAuthority)
	}
	assert.EqualValues(t, 3, ledger.SessionCount())
}

func TestCandidateIDsAreDense(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)

	id, err := ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)
	assert.EqualValues(t, 0, id)

	_, err = ledger.AddCandidate(authority, sid, "")
	require.ErrorIs(t, err, ErrEmptyCandidateName)

	id, err = ledger.AddCandidate(authority, sid, "Bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)
}

func TestAddCandidateGuards(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)

	_, err = ledger.AddCandidate(stranger, sid, "Alice")
	assert.ErrorIs(t, err, ErrNotAuthority)

	_, err = ledger.AddCandidate(authority, sid+1, "Alice")
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = ledger.AddCandidate(authority, sid, "")
	assert.ErrorIs(t, err, ErrEmptyCandidateName)
}

func TestAuthorizeVoterGuards(t *testing.T) {
	ledger := newTestLedger(t)

	assert.ErrorIs(t, ledger.AuthorizeVoter(stranger, voterOne), ErrNotAuthority)
	assert.ErrorIs(t, ledger.AuthorizeVoter(authority, common.Address{}), ErrInvalidVoterIdentity)

	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))
	assert.True(t, ledger.IsAuthorized(voterOne))

	assert.ErrorIs(t, ledger.AuthorizeVoter(authority, voterOne), ErrVoterAlreadyAuthorized)
}

func TestBoardElectionScenario(t *testing.T) {
	ledger := newTestLedger(t)

	sid, err := ledger.CreateSession(authority, "Board Election", 3600*time.Second)
	require.NoError(t, err)

	aliceID, err := ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)
	require.EqualValues(t, 0, aliceID)

	bobID, err := ledger.AddCandidate(authority, sid, "Bob")
	require.NoError(t, err)
	require.EqualValues(t, 1, bobID)

	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))
	require.NoError(t, ledger.AuthorizeVoter(authority, voterTwo))

	require.NoError(t, ledger.CastVote(voterOne, sid, aliceID))
	require.NoError(t, ledger.CastVote(voterTwo, sid, bobID))

	results, err := ledger.GetResults(sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, results.CandidateNames)
	assert.Equal(t, []uint64{1, 1}, results.VoteCounts)
	assert.EqualValues(t, 2, results.TotalVotes)

	// A second vote by the same voter fails and changes nothing.
	err = ledger.CastVote(voterOne, sid, aliceID)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	results, err = ledger.GetResults(sid)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 1}, results.VoteCounts)
	assert.EqualValues(t, 2, results.TotalVotes)
}

func TestCastVoteGuardOrder(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)
	_, err = ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)

	// Unauthorized identity is rejected before anything else, even on a
	// bogus session id.
	assert.ErrorIs(t, ledger.CastVote(stranger, 99, 0), ErrNotAuthorizedVoter)

	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))

	assert.ErrorIs(t, ledger.CastVote(voterOne, 99, 0), ErrInvalidSessionID)
	assert.ErrorIs(t, ledger.CastVote(voterOne, sid, 7), ErrInvalidCandidateID)

	results, err := ledger.GetResults(sid)
	require.NoError(t, err)
	assert.EqualValues(t, 0, results.TotalVotes)
}

func TestCastVoteAfterPeriodEnded(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)
	_, err = ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)
	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))

	ledger.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	assert.ErrorIs(t, ledger.CastVote(voterOne, sid, 0), ErrVotingPeriodEnded)

	// Passing the end time blocks votes but does not clear the flag.
	status, err := ledger.GetSessionStatus(sid)
	require.NoError(t, err)
	assert.True(t, status.Active)
}

func TestEndSession(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)
	_, err = ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.EndSession(stranger, sid), ErrNotAuthority)
	assert.ErrorIs(t, ledger.EndSession(authority, sid+1), ErrInvalidSessionID)

	require.NoError(t, ledger.EndSession(authority, sid))
	journalLen := ledger.Journal().Len()

	// Double-end is an error, not a no-op, and emits nothing.
	assert.ErrorIs(t, ledger.EndSession(authority, sid), ErrSessionAlreadyInactive)
	assert.Equal(t, journalLen, ledger.Journal().Len())

	// No candidates after the session ends.
	_, err = ledger.AddCandidate(authority, sid, "Late")
	assert.ErrorIs(t, err, ErrSessionInactive)

	status, err := ledger.GetSessionStatus(sid)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.EqualValues(t, 1, status.CandidateCount)

	// And no votes either.
	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))
	assert.ErrorIs(t, ledger.CastVote(voterOne, sid, 0), ErrSessionInactive)
}

func TestTotalVotesMatchesCandidateSum(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)

	for _, name := range []string{"Alice", "Bob", "Carol"} {
		_, err := ledger.AddCandidate(authority, sid, name)
		require.NoError(t, err)
	}

	voters := []common.Address{
		common.HexToAddress("0x10"),
		common.HexToAddress("0x11"),
		common.HexToAddress("0x12"),
		common.HexToAddress("0x13"),
	}
	for i, voter := range voters {
		require.NoError(t, ledger.AuthorizeVoter(authority, voter))
		require.NoError(t, ledger.CastVote(voter, sid, uint64(i%3)))
	}

	results, err := ledger.GetResults(sid)
	require.NoError(t, err)

	var sum uint64
	for _, count := range results.VoteCounts {
		sum += count
	}
	assert.Equal(t, sum, results.TotalVotes)
	assert.EqualValues(t, len(voters), results.TotalVotes)
}

func TestHasVoted(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)
	_, err = ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)
	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))

	// False for anyone who never voted, authorized or not.
	voted, err := ledger.HasVoted(sid, voterOne)
	require.NoError(t, err)
	assert.False(t, voted)

	voted, err = ledger.HasVoted(sid, stranger)
	require.NoError(t, err)
	assert.False(t, voted)

	require.NoError(t, ledger.CastVote(voterOne, sid, 0))

	voted, err = ledger.HasVoted(sid, voterOne)
	require.NoError(t, err)
	assert.True(t, voted)

	_, err = ledger.HasVoted(sid+1, voterOne)
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestGetCandidate(t *testing.T) {
	ledger := newTestLedger(t)
	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)
	_, err = ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)

	candidate, err := ledger.GetCandidate(sid, 0)
	require.NoError(t, err)
	assert.Equal(t, "Alice", candidate.Name)
	assert.EqualValues(t, 0, candidate.VoteCount)

	_, err = ledger.GetCandidate(sid, 1)
	assert.ErrorIs(t, err, ErrInvalidCandidateID)

	// The returned record is a copy; mutating it must not leak back.
	candidate.VoteCount = 99
	fresh, err := ledger.GetCandidate(sid, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, fresh.VoteCount)
}

func TestJournalRecordsNotifications(t *testing.T) {
	ledger := newTestLedger(t)
	sub := ledger.Journal().Subscribe()

	sid, err := ledger.CreateSession(authority, "Round", time.Hour)
	require.NoError(t, err)
	_, err = ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)
	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))
	require.NoError(t, ledger.CastVote(voterOne, sid, 0))
	require.NoError(t, ledger.EndSession(authority, sid))

	entries := ledger.Journal().Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, models.EventSessionCreated, entries[0].Type)
	assert.Equal(t, models.EventCandidateAdded, entries[1].Type)
	assert.Equal(t, models.EventVoterAuthorized, entries[2].Type)
	assert.Equal(t, models.EventVoteCast, entries[3].Type)
	assert.Equal(t, models.EventSessionEnded, entries[4].Type)

	first := <-sub
	assert.Equal(t, models.EventSessionCreated, first.Type)
}

func TestLedgerPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONStore(dir)
	require.NoError(t, err)

	ledger, err := NewVotingLedger(authority, store)
	require.NoError(t, err)

	sid, err := ledger.CreateSession(authority, "Board Election", time.Hour)
	require.NoError(t, err)
	_, err = ledger.AddCandidate(authority, sid, "Alice")
	require.NoError(t, err)
	require.NoError(t, ledger.AuthorizeVoter(authority, voterOne))
	require.NoError(t, ledger.CastVote(voterOne, sid, 0))

	// Reopen against the same directory.
	reopened, err := NewVotingLedger(authority, store)
	require.NoError(t, err)

	results, err := reopened.GetResults(sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, results.CandidateNames)
	assert.EqualValues(t, 1, results.TotalVotes)

	voted, err := reopened.HasVoted(sid, voterOne)
	require.NoError(t, err)
	assert.True(t, voted)
	assert.True(t, reopened.IsAuthorized(voterOne))
	assert.Equal(t, 4, reopened.Journal().Len())

	// A different authority must not be able to adopt the snapshot.
	_, err = NewVotingLedger(stranger, store)
	assert.Error(t, err)
}

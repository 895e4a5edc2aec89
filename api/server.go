package api

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"voting-ledger/journal"
	"voting-ledger/service"
)

// Server exposes the voting ledger over HTTP. Mutating endpoints take a
// SignedRequest envelope; the caller identity is recovered from the
// signature, never trusted from the request body.
type Server struct {
	ledger *service.VotingLedger
	router *mux.Router
	log    *logrus.Entry
}

// SignedRequest wraps a mutating request payload with the caller's
// secp256k1 signature over keccak256(payload).
type SignedRequest struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type CreateSessionPayload struct {
	Title           string `json:"title"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type AddCandidatePayload struct {
	SessionID uint64 `json:"session_id"`
	Name      string `json:"name"`
}

type AuthorizeVoterPayload struct {
	Identity string `json:"identity"`
}

type CastVotePayload struct {
	SessionID   uint64 `json:"session_id"`
	CandidateID uint64 `json:"candidate_id"`
}

type EndSessionPayload struct {
	SessionID uint64 `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type journalResponse struct {
	Entries []*journal.Entry `json:"entries"`
	Length  int              `json:"length"`
	IsValid bool             `json:"is_valid"`
}

func NewServer(ledger *service.VotingLedger) *Server {
	s := &Server{
		ledger: ledger,
		router: mux.NewRouter(),
		log:    logrus.WithField("component", "api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id:[0-9]+}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id:[0-9]+}/candidates", s.handleAddCandidate).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id:[0-9]+}/candidates/{cid:[0-9]+}", s.handleGetCandidate).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id:[0-9]+}/votes", s.handleCastVote).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id:[0-9]+}/end", s.handleEndSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id:[0-9]+}/results", s.handleGetResults).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id:[0-9]+}/voted", s.handleHasVoted).Methods(http.MethodGet)
	r.HandleFunc("/voters", s.handleAuthorizeVoter).Methods(http.MethodPost)
	r.HandleFunc("/journal", s.handleGetJournal).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleGetStatus).Methods(http.MethodGet)
	r.HandleFunc("/authority", s.handleGetAuthority).Methods(http.MethodGet)
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Serving voting ledger API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// recoverCaller verifies the envelope signature and recovers the caller
// address from it.
func recoverCaller(req *SignedRequest) (common.Address, error) {
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "invalid signature encoding")
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	// Accept both raw recovery ids and the legacy 27/28 values.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte{}, sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := crypto.Keccak256(req.Payload)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignPayload produces the signature expected by SignedRequest. Used by
// clients and tests.
func SignPayload(payload []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(crypto.Keccak256(payload), key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign payload")
	}
	return hexutil.Encode(sig), nil
}

// decodeSigned reads the envelope, checks the signature and unmarshals the
// payload into v. Returns the recovered caller address.
func (s *Server) decodeSigned(w http.ResponseWriter, r *http.Request, v interface{}) (common.Address, bool) {
	var req SignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return common.Address{}, false
	}

	caller, err := recoverCaller(&req)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Kind: "invalid_signature"})
		return common.Address{}, false
	}

	if err := json.Unmarshal(req.Payload, v); err != nil {
		s.writeBadRequest(w, "invalid payload")
		return common.Address{}, false
	}
	return caller, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload CreateSessionPayload
	caller, ok := s.decodeSigned(w, r, &payload)
	if !ok {
		return
	}

	id, err := s.ledger.CreateSession(caller, payload.Title, time.Duration(payload.DurationSeconds)*time.Second)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]uint64{"session_id": id})
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	var payload AddCandidatePayload
	caller, ok := s.decodeSigned(w, r, &payload)
	if !ok {
		return
	}
	if payload.SessionID != sessionID {
		s.writeBadRequest(w, "payload session id does not match path")
		return
	}

	id, err := s.ledger.AddCandidate(caller, sessionID, payload.Name)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]uint64{"candidate_id": id})
}

func (s *Server) handleAuthorizeVoter(w http.ResponseWriter, r *http.Request) {
	var payload AuthorizeVoterPayload
	caller, ok := s.decodeSigned(w, r, &payload)
	if !ok {
		return
	}
	if !common.IsHexAddress(payload.Identity) {
		s.writeBadRequest(w, "identity must be a hex address")
		return
	}

	if err := s.ledger.AuthorizeVoter(caller, common.HexToAddress(payload.Identity)); err != nil {
		s.writeLedgerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]bool{"authorized": true})
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	var payload CastVotePayload
	caller, ok := s.decodeSigned(w, r, &payload)
	if !ok {
		return
	}
	if payload.SessionID != sessionID {
		s.writeBadRequest(w, "payload session id does not match path")
		return
	}

	if err := s.ledger.CastVote(caller, sessionID, payload.CandidateID); err != nil {
		s.writeLedgerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	var payload EndSessionPayload
	caller, ok := s.decodeSigned(w, r, &payload)
	if !ok {
		return
	}
	if payload.SessionID != sessionID {
		s.writeBadRequest(w, "payload session id does not match path")
		return
	}

	if err := s.ledger.EndSession(caller, sessionID); err != nil {
		s.writeLedgerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	results, err := s.ledger.GetResults(sessionID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	status, err := s.ledger.GetSessionStatus(sessionID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	candidateID, ok := s.pathID(w, r, "cid")
	if !ok {
		return
	}

	candidate, err := s.ledger.GetCandidate(sessionID, candidateID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, candidate)
}

func (s *Server) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	identity := r.URL.Query().Get("identity")
	if !common.IsHexAddress(identity) {
		s.writeBadRequest(w, "identity must be a hex address")
		return
	}

	voted, err := s.ledger.HasVoted(sessionID, common.HexToAddress(identity))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"has_voted": voted})
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	entries := s.ledger.Journal().Entries()
	s.writeJSON(w, http.StatusOK, journalResponse{
		Entries: entries,
		Length:  len(entries),
		IsValid: journal.Validate(entries),
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.Stats())
}

func (s *Server) handleGetAuthority(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"authority": s.ledger.Authority().Hex()})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		s.writeBadRequest(w, "invalid id in path")
		return 0, false
	}
	return id, true
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusForError(err), errorResponse{
		Error: err.Error(),
		Kind:  service.ErrorKind(err),
	})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: "bad_request"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("Failed to encode response")
	}
}

// statusForError maps ledger guard failures onto HTTP statuses. Role checks
// are forbidden, missing ids are not found, state conflicts are conflicts,
// and malformed inputs are bad requests.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrNotAuthority),
		errors.Is(err, service.ErrNotAuthorizedVoter):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidSessionID),
		errors.Is(err, service.ErrInvalidCandidateID):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionInactive),
		errors.Is(err, service.ErrSessionAlreadyInactive),
		errors.Is(err, service.ErrVotingPeriodEnded),
		errors.Is(err, service.ErrAlreadyVoted),
		errors.Is(err, service.ErrVoterAlreadyAuthorized):
		return http.StatusConflict
	case service.IsGuardError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

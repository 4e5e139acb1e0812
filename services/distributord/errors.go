package distributord

import (
	"encoding/json"
	"errors"
	"net/http"

	"merkledrop/native/bank"
	"merkledrop/native/distributor"
	"merkledrop/services/claimindex"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorCodes pairs engine failures with a stable code and HTTP status. The
// code doubles as the rejection reason label in metrics.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{distributor.ErrDistributorNotFound, "distributor_not_found", http.StatusNotFound},
	{distributor.ErrNoClaim, "no_claim", http.StatusNotFound},
	{claimindex.ErrNotFound, "not_found", http.StatusNotFound},
	{distributor.ErrUnauthorized, "unauthorized", http.StatusForbidden},
	{distributor.ErrDistributorExists, "distributor_exists", http.StatusConflict},
	{distributor.ErrAlreadyClaimed, "already_claimed", http.StatusConflict},
	{distributor.ErrAlreadyClawedBack, "already_clawed_back", http.StatusConflict},
	{distributor.ErrInvalidProof, "invalid_proof", http.StatusBadRequest},
	{distributor.ErrInvalidTiming, "invalid_timing", http.StatusBadRequest},
	{distributor.ErrInvalidAddress, "invalid_address", http.StatusBadRequest},
	{distributor.ErrInvalidHasher, "invalid_hasher", http.StatusBadRequest},
	{distributor.ErrInvalidAmount, "invalid_amount", http.StatusBadRequest},
	{distributor.ErrNothingToClaim, "nothing_to_claim", http.StatusUnprocessableEntity},
	{distributor.ErrClaimExpired, "claim_expired", http.StatusUnprocessableEntity},
	{distributor.ErrClawbackNotReady, "clawback_not_ready", http.StatusUnprocessableEntity},
	{distributor.ErrMaxClaimsExceeded, "max_claims_exceeded", http.StatusUnprocessableEntity},
	{distributor.ErrMaxTotalClaimExceeded, "max_total_claim_exceeded", http.StatusUnprocessableEntity},
	{distributor.ErrArithmeticOverflow, "arithmetic_overflow", http.StatusUnprocessableEntity},
	{bank.ErrInsufficientBalance, "insufficient_balance", http.StatusUnprocessableEntity},
	{bank.ErrBalanceOverflow, "balance_overflow", http.StatusUnprocessableEntity},
}

// classify maps err to its response code and status. Unknown errors are
// internal failures.
func classify(err error) (string, int) {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code, entry.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "bad_request", err.Error())
}

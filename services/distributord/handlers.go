package distributord

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"merkledrop/crypto"
	"merkledrop/merkle"
	"merkledrop/native/distributor"
	"merkledrop/observability"
	telemetry "merkledrop/observability/otel"
	"merkledrop/services/claimindex"
)

var errIndexDisabled = errors.New("claim index disabled")

// DistributorView is the JSON rendering of a distributor. Amounts travel as
// decimal strings.
type DistributorView struct {
	ID                 string `json:"id"`
	Version            uint64 `json:"version"`
	Root               string `json:"root"`
	Hasher             string `json:"hasher"`
	Mint               string `json:"mint"`
	Vault              string `json:"vault"`
	Admin              string `json:"admin"`
	ClawbackReceiver   string `json:"clawbackReceiver"`
	MaxTotalClaim      uint64 `json:"maxTotalClaim,string"`
	MaxNumNodes        uint64 `json:"maxNumNodes,string"`
	TotalAmountClaimed uint64 `json:"totalAmountClaimed,string"`
	NumNodesClaimed    uint64 `json:"numNodesClaimed,string"`
	StartTs            int64  `json:"startTs"`
	EndTs              int64  `json:"endTs"`
	ClawbackStartTs    int64  `json:"clawbackStartTs"`
	ClawedBack         bool   `json:"clawedBack"`
	VaultBalance       uint64 `json:"vaultBalance,string"`
}

// ClaimView is the JSON rendering of a claim record.
type ClaimView struct {
	Distributor           string `json:"distributor"`
	Claimant              string `json:"claimant"`
	State                 string `json:"state"`
	UnlockedAmount        uint64 `json:"unlockedAmount,string"`
	LockedAmount          uint64 `json:"lockedAmount,string"`
	LockedAmountWithdrawn uint64 `json:"lockedAmountWithdrawn,string"`
	Withdrawable          uint64 `json:"withdrawable,string"`
}

// CreateDistributorRequest carries the parameters of a new distributor.
// Admin and ClawbackReceiver default to the signer.
type CreateDistributorRequest struct {
	Version          uint64 `json:"version"`
	Root             string `json:"root"`
	Hasher           string `json:"hasher,omitempty"`
	Mint             string `json:"mint"`
	MaxTotalClaim    uint64 `json:"maxTotalClaim,string"`
	MaxNumNodes      uint64 `json:"maxNumNodes,string"`
	StartTs          int64  `json:"startTs"`
	EndTs            int64  `json:"endTs"`
	ClawbackStartTs  int64  `json:"clawbackStartTs"`
	ClawbackReceiver string `json:"clawbackReceiver,omitempty"`
	Admin            string `json:"admin,omitempty"`
}

// NewClaimRequest is the leaf the signer claims together with its proof.
type NewClaimRequest struct {
	AmountUnlocked uint64   `json:"amountUnlocked,string"`
	AmountLocked   uint64   `json:"amountLocked,string"`
	Proof          []string `json:"proof"`
}

// FundRequest moves tokens from the signer into the vault.
type FundRequest struct {
	Amount uint64 `json:"amount,string"`
}

// SetAdminRequest names the next admin.
type SetAdminRequest struct {
	Admin string `json:"admin"`
}

// SetClawbackReceiverRequest names the next clawback receiver.
type SetClawbackReceiverRequest struct {
	Receiver string `json:"receiver"`
}

// AmountView reports a payout.
type AmountView struct {
	Distributor string `json:"distributor"`
	Account     string `json:"account"`
	Amount      uint64 `json:"amount,string"`
}

func newDistributorView(d *distributor.Distributor, vaultBalance uint64) DistributorView {
	return DistributorView{
		ID:                 hex.EncodeToString(d.ID[:]),
		Version:            d.Version,
		Root:               hex.EncodeToString(d.Root[:]),
		Hasher:             d.Hasher,
		Mint:               addressString(d.Mint),
		Vault:              addressString(d.Vault),
		Admin:              addressString(d.Admin),
		ClawbackReceiver:   addressString(d.ClawbackReceiver),
		MaxTotalClaim:      d.MaxTotalClaim,
		MaxNumNodes:        d.MaxNumNodes,
		TotalAmountClaimed: d.TotalAmountClaimed,
		NumNodesClaimed:    d.NumNodesClaimed,
		StartTs:            d.StartTs,
		EndTs:              d.EndTs,
		ClawbackStartTs:    d.ClawbackStartTs,
		ClawedBack:         d.ClawedBack,
		VaultBalance:       vaultBalance,
	}
}

func (s *Server) distributorView(id [32]byte) (DistributorView, error) {
	d, err := s.engine.Distributor(id)
	if err != nil {
		return DistributorView{}, err
	}
	balance, err := s.engine.VaultBalance(id)
	if err != nil {
		return DistributorView{}, err
	}
	return newDistributorView(d, balance), nil
}

// ListDistributors returns every distributor in creation order.
func (s *Server) ListDistributors(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog_disabled", "distributor catalog unavailable")
		return
	}
	ids, err := s.catalog.Distributors()
	if err != nil {
		s.fail(w, r, nil, "list_distributors", err)
		return
	}
	out := make([]DistributorView, 0, len(ids))
	for _, id := range ids {
		view, err := s.distributorView(id)
		if err != nil {
			s.fail(w, r, nil, "list_distributors", err)
			return
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetDistributor returns one distributor with its vault balance.
func (s *Server) GetDistributor(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	view, err := s.distributorView(id)
	if err != nil {
		s.fail(w, r, nil, "get_distributor", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateDistributor registers a new distributor.
func (s *Server) CreateDistributor(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	var req CreateDistributorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	params, err := req.params(caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, span := telemetry.Tracer().Start(r.Context(), "distributor.create",
		trace.WithAttributes(attribute.String("mint", addressString(params.Mint))))
	defer span.End()
	r = r.WithContext(ctx)

	d, err := s.engine.CreateDistributor(params)
	if err != nil {
		s.fail(w, r, span, "create", err)
		return
	}
	s.logger.Info("distributor created", "distributor", hex.EncodeToString(d.ID[:]), "admin", addressString(d.Admin))
	writeJSON(w, http.StatusCreated, newDistributorView(d, 0))
}

func (req CreateDistributorRequest) params(caller [20]byte) (distributor.CreateParams, error) {
	root, err := merkle.ParseHash(req.Root)
	if err != nil {
		return distributor.CreateParams{}, fmt.Errorf("root: %w", err)
	}
	mint, err := parseAddress("mint", req.Mint)
	if err != nil {
		return distributor.CreateParams{}, err
	}
	params := distributor.CreateParams{
		Version:          req.Version,
		Root:             root,
		Hasher:           strings.TrimSpace(req.Hasher),
		Mint:             mint,
		MaxTotalClaim:    req.MaxTotalClaim,
		MaxNumNodes:      req.MaxNumNodes,
		StartTs:          req.StartTs,
		EndTs:            req.EndTs,
		ClawbackStartTs:  req.ClawbackStartTs,
		Admin:            caller,
		ClawbackReceiver: caller,
	}
	if req.Admin != "" {
		if params.Admin, err = parseAddress("admin", req.Admin); err != nil {
			return distributor.CreateParams{}, err
		}
	}
	if req.ClawbackReceiver != "" {
		if params.ClawbackReceiver, err = parseAddress("clawbackReceiver", req.ClawbackReceiver); err != nil {
			return distributor.CreateParams{}, err
		}
	}
	return params, nil
}

// Fund transfers tokens from the signer into the distributor vault.
func (s *Server) Fund(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	var req FundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, span := s.startSpan(r, "distributor.fund", id)
	defer span.End()
	r = r.WithContext(ctx)

	if err := s.engine.Fund(id, caller, req.Amount); err != nil {
		s.fail(w, r, span, "fund", err)
		return
	}
	writeJSON(w, http.StatusOK, AmountView{
		Distributor: hex.EncodeToString(id[:]),
		Account:     addressString(caller),
		Amount:      req.Amount,
	})
}

// NewClaim performs the first claim of the signer's leaf.
func (s *Server) NewClaim(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	var req NewClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	proof := make([]merkle.Hash, len(req.Proof))
	for i, raw := range req.Proof {
		if proof[i], err = merkle.ParseHash(raw); err != nil {
			writeBadRequest(w, fmt.Errorf("proof[%d]: %w", i, err))
			return
		}
	}
	ctx, span := s.startSpan(r, "distributor.new_claim", id)
	defer span.End()
	r = r.WithContext(ctx)
	span.SetAttributes(attribute.String("claimant", addressString(caller)))

	status, err := s.engine.NewClaim(id, caller, req.AmountUnlocked, req.AmountLocked, proof)
	if err != nil {
		s.fail(w, r, span, "new_claim", err)
		return
	}
	s.respondClaim(w, r, http.StatusCreated, id, caller, status)
}

// ClaimLocked withdraws the vested locked amount of the claimant, who must be
// the signer.
func (s *Server) ClaimLocked(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	claimant, err := parseAddress("claimant", chi.URLParam(r, "claimant"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	if caller != claimant {
		s.fail(w, r, nil, "claim_locked", fmt.Errorf("%w: signer is not the claimant", distributor.ErrUnauthorized))
		return
	}
	ctx, span := s.startSpan(r, "distributor.claim_locked", id)
	defer span.End()
	r = r.WithContext(ctx)
	span.SetAttributes(attribute.String("claimant", addressString(claimant)))

	amount, err := s.engine.ClaimLocked(id, claimant)
	if err != nil {
		s.fail(w, r, span, "claim_locked", err)
		return
	}
	writeJSON(w, http.StatusOK, AmountView{
		Distributor: hex.EncodeToString(id[:]),
		Account:     addressString(claimant),
		Amount:      amount,
	})
}

// GetClaim returns the claim record and what is withdrawable right now.
func (s *Server) GetClaim(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	claimant, err := parseAddress("claimant", chi.URLParam(r, "claimant"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	status, err := s.engine.ClaimStatus(id, claimant)
	if err != nil {
		s.fail(w, r, nil, "get_claim", err)
		return
	}
	if status == nil {
		s.fail(w, r, nil, "get_claim", distributor.ErrNoClaim)
		return
	}
	s.respondClaim(w, r, http.StatusOK, id, claimant, status)
}

func (s *Server) respondClaim(w http.ResponseWriter, r *http.Request, code int, id [32]byte, claimant [20]byte, status *distributor.ClaimStatus) {
	withdrawable, err := s.engine.Withdrawable(id, claimant)
	if err != nil {
		s.fail(w, r, nil, "get_claim", err)
		return
	}
	writeJSON(w, code, ClaimView{
		Distributor:           hex.EncodeToString(id[:]),
		Claimant:              addressString(claimant),
		State:                 distributor.StateOf(status).String(),
		UnlockedAmount:        status.UnlockedAmount,
		LockedAmount:          status.LockedAmount,
		LockedAmountWithdrawn: status.LockedAmountWithdrawn,
		Withdrawable:          withdrawable,
	})
}

// Clawback sweeps the vault to the clawback receiver once the window opened.
func (s *Server) Clawback(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, span := s.startSpan(r, "distributor.clawback", id)
	defer span.End()
	r = r.WithContext(ctx)

	amount, err := s.engine.Clawback(id)
	if err != nil {
		s.fail(w, r, span, "clawback", err)
		return
	}
	d, err := s.engine.Distributor(id)
	if err != nil {
		s.fail(w, r, span, "clawback", err)
		return
	}
	s.logger.Info("distributor clawed back", "distributor", hex.EncodeToString(id[:]), "amount", amount)
	writeJSON(w, http.StatusOK, AmountView{
		Distributor: hex.EncodeToString(id[:]),
		Account:     addressString(d.ClawbackReceiver),
		Amount:      amount,
	})
}

// SetAdmin hands administration to a new address. Only the current admin may
// call it.
func (s *Server) SetAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	var req SetAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	next, err := parseAddress("admin", req.Admin)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, span := s.startSpan(r, "distributor.set_admin", id)
	defer span.End()
	r = r.WithContext(ctx)

	if err := s.engine.SetAdmin(id, caller, next); err != nil {
		s.fail(w, r, span, "set_admin", err)
		return
	}
	s.writeDistributor(w, r, id)
}

// SetClawbackReceiver changes where clawed back funds go. Only the admin may
// call it.
func (s *Server) SetClawbackReceiver(w http.ResponseWriter, r *http.Request) {
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	var req SetClawbackReceiverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	next, err := parseAddress("receiver", req.Receiver)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, span := s.startSpan(r, "distributor.set_clawback_receiver", id)
	defer span.End()
	r = r.WithContext(ctx)

	if err := s.engine.SetClawbackReceiver(id, caller, next); err != nil {
		s.fail(w, r, span, "set_clawback_receiver", err)
		return
	}
	s.writeDistributor(w, r, id)
}

func (s *Server) writeDistributor(w http.ResponseWriter, r *http.Request, id [32]byte) {
	view, err := s.distributorView(id)
	if err != nil {
		s.fail(w, r, nil, "get_distributor", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListClaims returns a claimant's indexed claims across distributors.
func (s *Server) ListClaims(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "index_disabled", errIndexDisabled.Error())
		return
	}
	claimant, err := parseAddress("claimant", r.URL.Query().Get("claimant"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	claims, err := s.index.ClaimsByClaimant(r.Context(), addressString(claimant))
	if err != nil {
		s.fail(w, r, nil, "list_claims", err)
		return
	}
	out := make([]indexedClaim, 0, len(claims))
	for _, c := range claims {
		out = append(out, newIndexedClaim(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListEvents returns the indexed audit log of a distributor.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "index_disabled", errIndexDisabled.Error())
		return
	}
	id, err := parseDistributorID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
	}
	rows, err := s.index.Events(r.Context(), hex.EncodeToString(id[:]), r.URL.Query().Get("type"), limit)
	if err != nil {
		s.fail(w, r, nil, "list_events", err)
		return
	}
	out := make([]indexedEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, newIndexedEvent(row))
	}
	writeJSON(w, http.StatusOK, out)
}

type indexedClaim struct {
	Distributor    string `json:"distributor"`
	Claimant       string `json:"claimant"`
	UnlockedAmount uint64 `json:"unlockedAmount,string"`
	LockedAmount   uint64 `json:"lockedAmount,string"`
	Withdrawn      uint64 `json:"withdrawn,string"`
	FirstClaimAt   int64  `json:"firstClaimAt"`
	LastClaimAt    int64  `json:"lastClaimAt"`
}

func newIndexedClaim(c claimindex.Claim) indexedClaim {
	return indexedClaim{
		Distributor:    c.DistributorID,
		Claimant:       c.Claimant,
		UnlockedAmount: c.UnlockedAmount,
		LockedAmount:   c.LockedAmount,
		Withdrawn:      c.Withdrawn,
		FirstClaimAt:   c.FirstClaimAt.Unix(),
		LastClaimAt:    c.LastClaimAt.Unix(),
	}
}

type indexedEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	OccurredAt int64             `json:"occurredAt"`
}

func newIndexedEvent(row claimindex.Event) indexedEvent {
	attrs := map[string]string{}
	_ = json.Unmarshal([]byte(row.Attributes), &attrs)
	return indexedEvent{
		ID:         row.ID.String(),
		Type:       row.Type,
		Attributes: attrs,
		OccurredAt: row.OccurredAt.Unix(),
	}
}

func (s *Server) startSpan(r *http.Request, name string, id [32]byte) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(r.Context(), name,
		trace.WithAttributes(attribute.String("distributor", hex.EncodeToString(id[:]))))
}

// fail writes the mapped error response and records it on the span and in
// the rejection metrics.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, span trace.Span, op string, err error) {
	code, status := classify(err)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	if distributor.IsRejection(err) {
		observability.API().RecordRejection(op, code)
		s.logger.Info("operation rejected", "op", op, "reason", code, "error", err)
	} else if status >= http.StatusInternalServerError {
		s.logger.Error("operation failed", "op", op, "error", err)
	}
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, code, message)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseDistributorID(raw string) ([32]byte, error) {
	var id [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil || len(decoded) != len(id) {
		return id, fmt.Errorf("invalid distributor id %q", raw)
	}
	copy(id[:], decoded)
	return id, nil
}

func parseAddress(field, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr.Raw(), nil
}

func addressString(addr [20]byte) string {
	return crypto.AddressFromRaw(addr).String()
}

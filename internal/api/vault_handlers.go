package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"AgentVault/internal/ledger"
	"AgentVault/pkg/units"
)

func (s *Server) handleLogDecision(w http.ResponseWriter, r *http.Request) {
	var req LogDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fp, err := parseFingerprint(req.Fingerprint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	decision, err := s.ledger.Decisions.Log(r.Context(), caller(r), fp, req.ProofPointer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, decisionResponse(decision))
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	fp, err := parseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	decision, err := s.ledger.Decisions.Get(r.Context(), fp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse(decision))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fp, err := parseFingerprint(req.Fingerprint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payee, err := parseAddress("payee", req.Payee)
	if err != nil {
		writeError(w, r, err)
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	receipt, err := s.ledger.Executions.VerifyAndExecute(r.Context(), caller(r), ledger.ExecuteRequest{
		Fingerprint: fp,
		Payee:       payee,
		Asset:       asset,
		Amount:      amount,
		Category:    req.Category,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptResponse{
		Decision:  decisionResponse(receipt.Decision),
		Record:    recordResponse(receipt.Record),
		Remaining: receipt.Remaining.Dec(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	opts, err := historyOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, total, err := s.ledger.Executions.HistoryPage(r.Context(), opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := HistoryResponse{Total: total, Records: make([]RecordResponse, 0, len(records))}
	for _, rec := range records {
		out.Records = append(out.Records, recordResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func historyOptions(r *http.Request) ([]ledger.ListOption, error) {
	q := r.URL.Query()
	var opts []ledger.ListOption
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, invalid("limit", raw)
		}
		opts = append(opts, ledger.WithLimit(n))
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, invalid("offset", raw)
		}
		opts = append(opts, ledger.WithOffset(n))
	}
	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		opts = append(opts, ledger.WithSortOrder(ledger.SortBySequenceDesc))
	default:
		return nil, invalid("order", q.Get("order"))
	}
	return opts, nil
}

func (s *Server) handleGetLimit(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := s.ledger.Guard.Limit(r.Context(), asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limitResponse(limit))
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req AmountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := s.ledger.Guard.SetLimit(r.Context(), caller(r), asset, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limitResponse(limit))
}

func (s *Server) handleResetSpent(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.Guard.ResetSpent(r.Context(), caller(r), asset); err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := s.ledger.Guard.Limit(r.Context(), asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limitResponse(limit))
}

func (s *Server) handleVaultStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ledger.Executions.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VaultResponse{
		Controller:    status.Controller.Hex(),
		Paused:        status.Paused,
		NativeBalance: status.NativeBalance.Dec(),
		NativeEther:   units.FormatEther(&status.NativeBalance),
		Records:       status.Records,
	})
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ledger.Executions.SetPaused(r.Context(), caller(r), paused); err != nil {
			writeError(w, r, err)
			return
		}
		s.handleVaultStatus(w, r)
	}
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	asset, amount, ok := s.amountRequest(w, r)
	if !ok {
		return
	}
	remaining, err := s.ledger.Executions.Withdraw(r.Context(), caller(r), asset, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Asset: asset.Hex(), Balance: remaining.Dec()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	asset, amount, ok := s.amountRequest(w, r)
	if !ok {
		return
	}
	balance, err := s.ledger.Executions.Deposit(r.Context(), caller(r), asset, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Asset: asset.Hex(), Balance: balance.Dec()})
}

func (s *Server) amountRequest(w http.ResponseWriter, r *http.Request) (common.Address, *uint256.Int, bool) {
	var req AmountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return common.Address{}, nil, false
	}
	addr, err := parseAsset(req.Asset)
	if err != nil {
		writeError(w, r, err)
		return common.Address{}, nil, false
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, err)
		return common.Address{}, nil, false
	}
	return addr, value, true
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	next, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.Executions.TransferOwnership(r.Context(), caller(r), next); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleVaultStatus(w, r)
}

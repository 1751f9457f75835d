package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"AgentVault/internal/auth"
	"AgentVault/internal/directory"
	"AgentVault/internal/ledger"
)

var (
	controller = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	agentAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	payee      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.New(ctx, ledger.NewMemoryStore(), ledger.WithController(controller))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	deposit := new(uint256.Int).Mul(uint256.NewInt(10), uint256.NewInt(1_000_000_000_000_000_000))
	if _, err := l.Executions.Deposit(ctx, controller, ledger.NativeAsset, deposit); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d, err := directory.New(ctx, directory.NewMemoryStore(), directory.WithAdmin(controller))
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	srv, err := NewServer(Options{Ledger: l, Directory: d, ExposeMetrics: true})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path string, as common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != (common.Address{}) {
		req.Header.Set(auth.HeaderAddress, as.Hex())
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decodeBody[ErrorResponse](t, rec)
	if body.Code != code {
		t.Fatalf("expected code %s, got %+v", code, body)
	}
}

func TestDecisionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	fp := crypto.Keccak256Hash([]byte("swap")).Hex()

	rec := do(t, srv, http.MethodPost, "/api/v1/decisions", agentAddr, LogDecisionRequest{Fingerprint: fp, ProofPointer: "ipfs://swap"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("log: %d %s", rec.Code, rec.Body.String())
	}
	logged := decodeBody[DecisionResponse](t, rec)
	if logged.State != "logged" || logged.Logger != agentAddr.Hex() {
		t.Fatalf("unexpected decision %+v", logged)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/decisions", agentAddr, LogDecisionRequest{Fingerprint: fp, ProofPointer: "again"})
	expectError(t, rec, http.StatusConflict, string(ledger.CodeDuplicateDecision))

	exec := ExecuteRequest{Fingerprint: fp, Payee: payee.Hex(), Amount: "50000000000000000", Category: "trade"}
	rec = do(t, srv, http.MethodPost, "/api/v1/executions", agentAddr, exec)
	expectError(t, rec, http.StatusForbidden, "UNAUTHORIZED")

	rec = do(t, srv, http.MethodPost, "/api/v1/executions", controller, exec)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: %d %s", rec.Code, rec.Body.String())
	}
	receipt := decodeBody[ReceiptResponse](t, rec)
	if receipt.Remaining != "50000000000000000" || receipt.Record.Sequence != 1 || !receipt.Decision.Executed {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/executions", controller, exec)
	expectError(t, rec, http.StatusConflict, string(ledger.CodeAlreadyExecuted))

	rec = do(t, srv, http.MethodGet, "/api/v1/history?order=desc&limit=10", controller, nil)
	history := decodeBody[HistoryResponse](t, rec)
	if history.Total != 1 || len(history.Records) != 1 || history.Records[0].Category != "trade" {
		t.Fatalf("unexpected history %+v", history)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/decisions/"+fp, agentAddr, nil)
	got := decodeBody[DecisionResponse](t, rec)
	if got.State != "executed" || got.ExecutedPayee != payee.Hex() || got.ExecutedAmount != "50000000000000000" {
		t.Fatalf("unexpected decision %+v", got)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	unknown := crypto.Keccak256Hash([]byte("unknown")).Hex()
	zero := common.Hash{}.Hex()

	expectError(t, do(t, srv, http.MethodGet, "/api/v1/decisions/"+unknown, agentAddr, nil), http.StatusNotFound, string(ledger.CodeDecisionNotFound))
	expectError(t, do(t, srv, http.MethodGet, "/api/v1/decisions/0x12", agentAddr, nil), http.StatusBadRequest, "INVALID_ARGUMENT")
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/decisions", agentAddr, LogDecisionRequest{Fingerprint: zero, ProofPointer: "p"}),
		http.StatusBadRequest, string(ledger.CodeInvalidFingerprint))
	expectError(t, do(t, srv, http.MethodGet, "/api/v1/vault", common.Address{}, nil), http.StatusUnauthorized, string(auth.CodeUnauthenticated))

	fp := crypto.Keccak256Hash([]byte("big")).Hex()
	do(t, srv, http.MethodPost, "/api/v1/decisions", agentAddr, LogDecisionRequest{Fingerprint: fp, ProofPointer: "p"})
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/executions", controller, ExecuteRequest{Fingerprint: fp, Payee: payee.Hex(), Amount: "150000000000000000"}),
		http.StatusUnprocessableEntity, string(ledger.CodeLimitExceeded))

	if rec := do(t, srv, http.MethodPost, "/api/v1/vault/pause", controller, nil); rec.Code != http.StatusOK {
		t.Fatalf("pause: %d %s", rec.Code, rec.Body.String())
	}
	other := crypto.Keccak256Hash([]byte("paused")).Hex()
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/decisions", agentAddr, LogDecisionRequest{Fingerprint: other, ProofPointer: "p"}),
		http.StatusLocked, string(ledger.CodePaused))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(`{"fingerprint":"`+other+`","extra":1}`))
	req.Header.Set(auth.HeaderAddress, agentAddr.Hex())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestLimitsAndVault(t *testing.T) {
	srv := newTestServer(t)
	native := ledger.NativeAsset.Hex()

	rec := do(t, srv, http.MethodPut, "/api/v1/limits/"+native, controller, AmountRequest{Amount: "0x3e8"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set limit: %d %s", rec.Code, rec.Body.String())
	}
	limit := decodeBody[LimitResponse](t, rec)
	if limit.Limit != "1000" || limit.Remaining != "1000" {
		t.Fatalf("unexpected limit %+v", limit)
	}
	expectError(t, do(t, srv, http.MethodPut, "/api/v1/limits/"+native, agentAddr, AmountRequest{Amount: "1"}), http.StatusForbidden, "UNAUTHORIZED")
	expectError(t, do(t, srv, http.MethodPut, "/api/v1/limits/"+native, controller, AmountRequest{Amount: "-1"}), http.StatusBadRequest, "INVALID_ARGUMENT")

	rec = do(t, srv, http.MethodPost, "/api/v1/limits/"+native+"/reset", controller, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/vault/withdraw", controller, AmountRequest{Amount: "1000000000000000000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw: %d %s", rec.Code, rec.Body.String())
	}
	if bal := decodeBody[BalanceResponse](t, rec); bal.Balance != "9000000000000000000" {
		t.Fatalf("unexpected balance %+v", bal)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/vault", agentAddr, nil)
	vault := decodeBody[VaultResponse](t, rec)
	if vault.Controller != controller.Hex() || vault.NativeEther != "9" {
		t.Fatalf("unexpected vault %+v", vault)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/vault/ownership", controller, AddressRequest{Address: agentAddr.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("ownership: %d %s", rec.Code, rec.Body.String())
	}
	if vault := decodeBody[VaultResponse](t, rec); vault.Controller != agentAddr.Hex() {
		t.Fatalf("ownership not transferred: %+v", vault)
	}
}

func TestDirectoryRoutes(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/agents", agentAddr, RegisterAgentRequest{Metadata: `{"name":"scout"}`})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/agents", agentAddr, RegisterAgentRequest{Metadata: "x"}), http.StatusConflict, string(directory.CodeAlreadyRegistered))
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/agents", payee, RegisterAgentRequest{Metadata: "  "}), http.StatusBadRequest, string(directory.CodeMetadataRequired))

	rec = do(t, srv, http.MethodPost, "/api/v1/agents/"+agentAddr.Hex()+"/reputation", controller, ReportRequest{Success: false})
	if agent := decodeBody[AgentResponse](t, rec); agent.Reputation != 480 || agent.SuccessRate != 0 {
		t.Fatalf("unexpected agent %+v", agent)
	}

	rec = do(t, srv, http.MethodPut, "/api/v1/agents/me/services/translate", agentAddr, ServiceRequest{Price: "42", Description: "en->fr"})
	if rec.Code != http.StatusOK {
		t.Fatalf("service: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodPut, "/api/v1/agents/me/services/translate/availability", agentAddr, StatusRequest{Active: false})
	if svc := decodeBody[ServiceResponse](t, rec); svc.Available || svc.Price != "42" {
		t.Fatalf("unexpected service %+v", svc)
	}
	expectError(t, do(t, srv, http.MethodGet, "/api/v1/agents/"+agentAddr.Hex()+"/services/missing", payee, nil), http.StatusNotFound, string(directory.CodeServiceNotFound))
	expectError(t, do(t, srv, http.MethodPut, "/api/v1/agents/me/services/x", payee, ServiceRequest{Price: "1"}), http.StatusNotFound, string(directory.CodeAgentNotFound))

	expectError(t, do(t, srv, http.MethodPut, "/api/v1/agents/"+agentAddr.Hex()+"/status", payee, StatusRequest{Active: false}), http.StatusForbidden, "UNAUTHORIZED")
	rec = do(t, srv, http.MethodPut, "/api/v1/agents/"+agentAddr.Hex()+"/status", agentAddr, StatusRequest{Active: false})
	if agent := decodeBody[AgentResponse](t, rec); agent.Active {
		t.Fatalf("agent should be inactive: %+v", agent)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/agents?active=true", payee, nil)
	if page := decodeBody[AgentPageResponse](t, rec); page.Total != 0 || len(page.Agents) != 0 {
		t.Fatalf("unexpected active page %+v", page)
	}
	rec = do(t, srv, http.MethodGet, "/api/v1/agents?limit=5", payee, nil)
	if page := decodeBody[AgentPageResponse](t, rec); page.Total != 1 || len(page.Agents) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}

	expectError(t, do(t, srv, http.MethodPost, "/api/v1/directory/admin", payee, AddressRequest{Address: payee.Hex()}), http.StatusForbidden, "UNAUTHORIZED")
	rec = do(t, srv, http.MethodPost, "/api/v1/directory/admin", controller, AddressRequest{Address: payee.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer admin: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodGet, "/api/v1/vault", agentAddr, nil)

	rec := do(t, srv, http.MethodGet, "/healthz", common.Address{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	rec = do(t, srv, http.MethodGet, "/metrics", common.Address{}, nil)
	if !strings.Contains(rec.Body.String(), `route="/api/v1/vault`) {
		t.Fatalf("route pattern missing from metrics:\n%s", rec.Body.String())
	}
}

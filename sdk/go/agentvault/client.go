// Package agentvault is a Go client for the AgentVault REST API.
package agentvault

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"AgentVault/internal/api"
	"AgentVault/internal/auth"
	xerrors "AgentVault/internal/errors"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgentVault REST API. A client
// acts as exactly one caller: either a plain address (header mode) or a
// private key that signs every request (signature mode).
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	address    common.Address
	key        *ecdsa.PrivateKey
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAddress makes the client send X-Agent-Address without signing.
func WithAddress(addr common.Address) Option {
	return func(c *Client) { c.address = addr }
}

// WithKey makes the client sign every request with key.
func WithKey(key *ecdsa.PrivateKey) Option {
	return func(c *Client) {
		c.key = key
		if key != nil {
			c.address = crypto.PubkeyToAddress(key.PublicKey)
		}
	}
}

// APIError represents a failure reported by the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Category   string `json:"category"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentvault api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentvault api error (%d): %s", e.StatusCode, e.Message)
}

// Is lets callers match server failures against the exported sentinels,
// e.g. errors.Is(err, ledger.ErrDuplicateDecision).
func (e *APIError) Is(target error) bool {
	if e == nil || e.Code == "" {
		return false
	}
	coded, ok := xerrors.From(target)
	return ok && string(coded.Code()) == e.Code
}

// NewClient instantiates a client for the AgentVault API.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{baseURL: parsed, httpClient: &http.Client{Timeout: DefaultHTTPTimeout}, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Address returns the caller identity used by the client.
func (c *Client) Address() common.Address {
	return c.address
}

// LogDecision records a decision fingerprint with its proof pointer.
func (c *Client) LogDecision(ctx context.Context, fingerprint common.Hash, proofPointer string) (api.DecisionResponse, error) {
	var out api.DecisionResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/decisions", api.LogDecisionRequest{Fingerprint: fingerprint.Hex(), ProofPointer: proofPointer}, &out)
	return out, err
}

// Decision fetches a decision by fingerprint.
func (c *Client) Decision(ctx context.Context, fingerprint common.Hash) (api.DecisionResponse, error) {
	var out api.DecisionResponse
	err := c.send(ctx, http.MethodGet, "/api/v1/decisions/"+fingerprint.Hex(), nil, &out)
	return out, err
}

// Execute verifies a logged decision and pays amount of asset to payee.
func (c *Client) Execute(ctx context.Context, fingerprint common.Hash, payee, asset common.Address, amount *uint256.Int, category string) (api.ReceiptResponse, error) {
	var out api.ReceiptResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/executions", api.ExecuteRequest{
		Fingerprint: fingerprint.Hex(),
		Payee:       payee.Hex(),
		Asset:       asset.Hex(),
		Amount:      amount.Dec(),
		Category:    category,
	}, &out)
	return out, err
}

// History returns a window of the transaction history.
func (c *Client) History(ctx context.Context, limit, offset int, newestFirst bool) (api.HistoryResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if newestFirst {
		q.Set("order", "desc")
	}
	var out api.HistoryResponse
	err := c.send(ctx, http.MethodGet, withQuery("/api/v1/history", q), nil, &out)
	return out, err
}

// Limit returns the spending limit of asset.
func (c *Client) Limit(ctx context.Context, asset common.Address) (api.LimitResponse, error) {
	var out api.LimitResponse
	err := c.send(ctx, http.MethodGet, "/api/v1/limits/"+asset.Hex(), nil, &out)
	return out, err
}

// SetLimit replaces the limit of asset.
func (c *Client) SetLimit(ctx context.Context, asset common.Address, limit *uint256.Int) (api.LimitResponse, error) {
	var out api.LimitResponse
	err := c.send(ctx, http.MethodPut, "/api/v1/limits/"+asset.Hex(), api.AmountRequest{Amount: limit.Dec()}, &out)
	return out, err
}

// ResetSpent zeroes the spent counter of asset.
func (c *Client) ResetSpent(ctx context.Context, asset common.Address) (api.LimitResponse, error) {
	var out api.LimitResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/limits/"+asset.Hex()+"/reset", nil, &out)
	return out, err
}

// Vault returns the vault status.
func (c *Client) Vault(ctx context.Context) (api.VaultResponse, error) {
	var out api.VaultResponse
	err := c.send(ctx, http.MethodGet, "/api/v1/vault", nil, &out)
	return out, err
}

// SetPaused pauses or unpauses the vault.
func (c *Client) SetPaused(ctx context.Context, paused bool) (api.VaultResponse, error) {
	endpoint := "/api/v1/vault/unpause"
	if paused {
		endpoint = "/api/v1/vault/pause"
	}
	var out api.VaultResponse
	err := c.send(ctx, http.MethodPost, endpoint, nil, &out)
	return out, err
}

// Withdraw moves funds from the pool to the controller.
func (c *Client) Withdraw(ctx context.Context, asset common.Address, amount *uint256.Int) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/vault/withdraw", api.AmountRequest{Asset: asset.Hex(), Amount: amount.Dec()}, &out)
	return out, err
}

// Deposit credits the pool.
func (c *Client) Deposit(ctx context.Context, asset common.Address, amount *uint256.Int) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/vault/deposit", api.AmountRequest{Asset: asset.Hex(), Amount: amount.Dec()}, &out)
	return out, err
}

// TransferOwnership hands the controller role to next.
func (c *Client) TransferOwnership(ctx context.Context, next common.Address) (api.VaultResponse, error) {
	var out api.VaultResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/vault/ownership", api.AddressRequest{Address: next.Hex()}, &out)
	return out, err
}

// RegisterAgent registers the caller with metadata.
func (c *Client) RegisterAgent(ctx context.Context, metadata string) (api.AgentResponse, error) {
	var out api.AgentResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/agents", api.RegisterAgentRequest{Metadata: metadata}, &out)
	return out, err
}

// Agent fetches one agent.
func (c *Client) Agent(ctx context.Context, identity common.Address) (api.AgentResponse, error) {
	var out api.AgentResponse
	err := c.send(ctx, http.MethodGet, "/api/v1/agents/"+identity.Hex(), nil, &out)
	return out, err
}

// Agents returns a page of agents in registration order.
func (c *Client) Agents(ctx context.Context, activeOnly bool, limit, offset int) (api.AgentPageResponse, error) {
	q := url.Values{}
	if activeOnly {
		q.Set("active", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out api.AgentPageResponse
	err := c.send(ctx, http.MethodGet, withQuery("/api/v1/agents", q), nil, &out)
	return out, err
}

// UpdateMetadata replaces the caller's metadata.
func (c *Client) UpdateMetadata(ctx context.Context, metadata string) (api.AgentResponse, error) {
	var out api.AgentResponse
	err := c.send(ctx, http.MethodPut, "/api/v1/agents/me/metadata", api.RegisterAgentRequest{Metadata: metadata}, &out)
	return out, err
}

// SetActive changes the active flag of the caller's own identity.
func (c *Client) SetActive(ctx context.Context, active bool) (api.AgentResponse, error) {
	var out api.AgentResponse
	err := c.send(ctx, http.MethodPut, "/api/v1/agents/"+c.address.Hex()+"/status", api.StatusRequest{Active: active}, &out)
	return out, err
}

// Report records a transaction outcome for identity.
func (c *Client) Report(ctx context.Context, identity common.Address, success bool) (api.AgentResponse, error) {
	var out api.AgentResponse
	err := c.send(ctx, http.MethodPost, "/api/v1/agents/"+identity.Hex()+"/reputation", api.ReportRequest{Success: success}, &out)
	return out, err
}

// RegisterService creates or updates one of the caller's services.
func (c *Client) RegisterService(ctx context.Context, serviceID string, price *uint256.Int, description string) (api.ServiceResponse, error) {
	var out api.ServiceResponse
	err := c.send(ctx, http.MethodPut, "/api/v1/agents/me/services/"+url.PathEscape(serviceID),
		api.ServiceRequest{Price: price.Dec(), Description: description}, &out)
	return out, err
}

// SetServiceAvailability toggles one of the caller's services.
func (c *Client) SetServiceAvailability(ctx context.Context, serviceID string, available bool) (api.ServiceResponse, error) {
	var out api.ServiceResponse
	err := c.send(ctx, http.MethodPut, "/api/v1/agents/me/services/"+url.PathEscape(serviceID)+"/availability",
		api.StatusRequest{Active: available}, &out)
	return out, err
}

// Services lists the services of identity.
func (c *Client) Services(ctx context.Context, identity common.Address) ([]api.ServiceResponse, error) {
	var out []api.ServiceResponse
	err := c.send(ctx, http.MethodGet, "/api/v1/agents/"+identity.Hex()+"/services", nil, &out)
	return out, err
}

// Service fetches one service.
func (c *Client) Service(ctx context.Context, identity common.Address, serviceID string) (api.ServiceResponse, error) {
	var out api.ServiceResponse
	err := c.send(ctx, http.MethodGet, "/api/v1/agents/"+identity.Hex()+"/services/"+url.PathEscape(serviceID), nil, &out)
	return out, err
}

// TransferAdmin hands the directory admin role to next.
func (c *Client) TransferAdmin(ctx context.Context, next common.Address) error {
	return c.send(ctx, http.MethodPost, "/api/v1/directory/admin", api.AddressRequest{Address: next.Hex()}, nil)
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
	}

	rel, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	rel.Path = path.Join(c.baseURL.Path, rel.Path)
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != nil {
		if err := auth.SignRequest(req, c.key, body, c.now()); err != nil {
			return err
		}
	} else if c.address != (common.Address{}) {
		req.Header.Set(auth.HeaderAddress, c.address.Hex())
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

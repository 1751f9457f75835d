package api

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"AgentVault/internal/directory"
	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/ledger"
	"AgentVault/pkg/units"
)

// LogDecisionRequest 是 POST /decisions 的请求体。
type LogDecisionRequest struct {
	Fingerprint  string `json:"fingerprint"`
	ProofPointer string `json:"proof_pointer"`
}

// ExecuteRequest 是 POST /executions 的请求体，金额为最小单位的十进制字符串。
type ExecuteRequest struct {
	Fingerprint string `json:"fingerprint"`
	Payee       string `json:"payee"`
	Asset       string `json:"asset,omitempty"`
	Amount      string `json:"amount"`
	Category    string `json:"category,omitempty"`
}

// AmountRequest 用于设置额度、提取与注资。
type AmountRequest struct {
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount"`
}

// AddressRequest 携带单个地址，例如新的控制者或管理员。
type AddressRequest struct {
	Address string `json:"address"`
}

// RegisterAgentRequest 是注册与更新元数据的请求体。
type RegisterAgentRequest struct {
	Metadata string `json:"metadata"`
}

// StatusRequest 设置代理的活跃状态或服务可用性。
type StatusRequest struct {
	Active bool `json:"active"`
}

// ReportRequest 上报一次交易结果。
type ReportRequest struct {
	Success bool `json:"success"`
}

// ServiceRequest 注册或更新服务。
type ServiceRequest struct {
	Price       string `json:"price"`
	Description string `json:"description"`
}

// DecisionResponse 描述一条决策。
type DecisionResponse struct {
	Fingerprint    string     `json:"fingerprint"`
	ProofPointer   string     `json:"proof_pointer"`
	Logger         string     `json:"logger"`
	State          string     `json:"state"`
	Executed       bool       `json:"executed"`
	ExecutedAmount string     `json:"executed_amount,omitempty"`
	ExecutedPayee  string     `json:"executed_payee,omitempty"`
	ExecutedAsset  string     `json:"executed_asset,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
}

// RecordResponse 描述一条交易历史。
type RecordResponse struct {
	Sequence    uint64    `json:"sequence"`
	Destination string    `json:"destination"`
	Asset       string    `json:"asset"`
	Amount      string    `json:"amount"`
	Category    string    `json:"category"`
	Success     bool      `json:"success"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReceiptResponse 是执行成功后的返回。
type ReceiptResponse struct {
	Decision  DecisionResponse `json:"decision"`
	Record    RecordResponse   `json:"record"`
	Remaining string           `json:"remaining"`
}

// HistoryResponse 是分页的交易历史。
type HistoryResponse struct {
	Total   uint64           `json:"total"`
	Records []RecordResponse `json:"records"`
}

// LimitResponse 描述单一资产的额度。
type LimitResponse struct {
	Asset     string `json:"asset"`
	Limit     string `json:"limit"`
	Spent     string `json:"spent"`
	Remaining string `json:"remaining"`
}

// VaultResponse 汇总金库状态。
type VaultResponse struct {
	Controller    string `json:"controller"`
	Paused        bool   `json:"paused"`
	NativeBalance string `json:"native_balance"`
	NativeEther   string `json:"native_balance_ether"`
	Records       uint64 `json:"records"`
}

// BalanceResponse 返回操作后的余额。
type BalanceResponse struct {
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

// AgentResponse 描述一个代理。
type AgentResponse struct {
	Identity         string    `json:"identity"`
	Metadata         string    `json:"metadata"`
	Reputation       int       `json:"reputation"`
	TransactionCount uint64    `json:"transaction_count"`
	SuccessfulCount  uint64    `json:"successful_count"`
	SuccessRate      uint64    `json:"success_rate"`
	Active           bool      `json:"active"`
	RegisteredAt     time.Time `json:"registered_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AgentPageResponse 是分页的代理列表。
type AgentPageResponse struct {
	Total  uint64          `json:"total"`
	Agents []AgentResponse `json:"agents"`
}

// ServiceResponse 描述一项服务。
type ServiceResponse struct {
	Agent       string    `json:"agent"`
	ServiceID   string    `json:"service_id"`
	Price       string    `json:"price"`
	Description string    `json:"description"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrorResponse 是所有失败的统一返回体。
type ErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

func decisionResponse(d ledger.Decision) DecisionResponse {
	out := DecisionResponse{
		Fingerprint:  d.Fingerprint.Hex(),
		ProofPointer: d.ProofPointer,
		Logger:       d.Logger.Hex(),
		State:        d.State(),
		Executed:     d.Executed,
		CreatedAt:    d.CreatedAt,
	}
	if d.Executed {
		out.ExecutedAmount = d.ExecutedAmount.Dec()
		out.ExecutedPayee = d.ExecutedPayee.Hex()
		out.ExecutedAsset = d.ExecutedAsset.Hex()
		at := d.ExecutedAt
		out.ExecutedAt = &at
	}
	return out
}

func recordResponse(r ledger.Record) RecordResponse {
	return RecordResponse{
		Sequence:    r.Sequence,
		Destination: r.Destination.Hex(),
		Asset:       r.Asset.Hex(),
		Amount:      r.Amount.Dec(),
		Category:    r.Category,
		Success:     r.Success,
		Fingerprint: r.Fingerprint.Hex(),
		Timestamp:   r.Timestamp,
	}
}

func limitResponse(l ledger.SpendingLimit) LimitResponse {
	remaining := l.Remaining()
	return LimitResponse{
		Asset:     l.Asset.Hex(),
		Limit:     l.Limit.Dec(),
		Spent:     l.Spent.Dec(),
		Remaining: remaining.Dec(),
	}
}

func agentResponse(a directory.Agent) AgentResponse {
	return AgentResponse{
		Identity:         a.Identity.Hex(),
		Metadata:         a.Metadata,
		Reputation:       a.Reputation,
		TransactionCount: a.TransactionCount,
		SuccessfulCount:  a.SuccessfulCount,
		SuccessRate:      a.SuccessRate(),
		Active:           a.Active,
		RegisteredAt:     a.RegisteredAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func serviceResponse(s directory.Service) ServiceResponse {
	return ServiceResponse{
		Agent:       s.Agent.Hex(),
		ServiceID:   s.ServiceID,
		Price:       s.Price.Dec(),
		Description: s.Description,
		Available:   s.Available,
		UpdatedAt:   s.UpdatedAt,
	}
}

func invalid(field, value string) error {
	return xerrors.New(xerrors.CodeInvalidArgument, field+" is malformed",
		xerrors.WithMetadata("field", field), xerrors.WithMetadata("value", value))
}

// parseFingerprint 接受 0x 开头的 32 字节十六进制字符串。
func parseFingerprint(value string) (common.Hash, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, invalid("fingerprint", value)
	}
	return common.BytesToHash(raw), nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, invalid(field, value)
	}
	return common.HexToAddress(value), nil
}

// parseAsset 允许省略资产，表示原生资产。
func parseAsset(value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return ledger.NativeAsset, nil
	}
	return parseAddress("asset", value)
}

func parseAmount(field, value string) (*uint256.Int, error) {
	amount, err := units.ParseBase(value)
	if err != nil {
		return nil, invalid(field, value)
	}
	return amount, nil
}

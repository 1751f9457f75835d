package ledger

import (
	xerrors "AgentVault/internal/errors"
)

// 金库相关错误码。
const (
	CodeInvalidFingerprint  xerrors.Code = "INVALID_FINGERPRINT"
	CodeMissingProof        xerrors.Code = "MISSING_PROOF"
	CodeDuplicateDecision   xerrors.Code = "DUPLICATE_DECISION"
	CodePaused              xerrors.Code = "PAUSED"
	CodeDecisionNotFound    xerrors.Code = "DECISION_NOT_FOUND"
	CodeAlreadyExecuted     xerrors.Code = "ALREADY_EXECUTED"
	CodeLimitExceeded       xerrors.Code = "LIMIT_EXCEEDED"
	CodeInsufficientBalance xerrors.Code = "INSUFFICIENT_BALANCE"
)

// 可以通过 errors.Is 匹配的哨兵错误。
var (
	ErrInvalidFingerprint  = xerrors.New(CodeInvalidFingerprint, "fingerprint must be non-zero")
	ErrMissingProof        = xerrors.New(CodeMissingProof, "proof pointer is required")
	ErrDuplicateDecision   = xerrors.New(CodeDuplicateDecision, "decision already logged")
	ErrPaused              = xerrors.New(CodePaused, "vault is paused")
	ErrDecisionNotFound    = xerrors.New(CodeDecisionNotFound, "decision not found")
	ErrAlreadyExecuted     = xerrors.New(CodeAlreadyExecuted, "decision already executed")
	ErrLimitExceeded       = xerrors.New(CodeLimitExceeded, "spending limit exceeded")
	ErrInsufficientBalance = xerrors.New(CodeInsufficientBalance, "insufficient vault balance")
)

func init() {
	xerrors.Register(CodeInvalidFingerprint, xerrors.Attributes{
		Message:   "fingerprint must be non-zero",
		Category:  xerrors.CategoryValidation,
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
	})
	xerrors.Register(CodeMissingProof, xerrors.Attributes{
		Message:   "proof pointer is required",
		Category:  xerrors.CategoryValidation,
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
	})
	xerrors.Register(CodeDuplicateDecision, xerrors.Attributes{
		Message:  "decision already logged",
		Category: xerrors.CategoryStateConflict,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodePaused, xerrors.Attributes{
		Message:  "vault is paused",
		Category: xerrors.CategoryPolicy,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeDecisionNotFound, xerrors.Attributes{
		Message:  "decision not found",
		Category: xerrors.CategoryStateConflict,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeAlreadyExecuted, xerrors.Attributes{
		Message:  "decision already executed",
		Category: xerrors.CategoryStateConflict,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeLimitExceeded, xerrors.Attributes{
		Message:  "spending limit exceeded",
		Category: xerrors.CategoryPolicy,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:  "insufficient vault balance",
		Category: xerrors.CategoryPolicy,
		Severity: xerrors.SeverityWarning,
	})
}

package directory

import (
	xerrors "AgentVault/internal/errors"
)

// 目录相关错误码。
const (
	CodeAlreadyRegistered xerrors.Code = "ALREADY_REGISTERED"
	CodeMetadataRequired  xerrors.Code = "METADATA_REQUIRED"
	CodeAgentNotFound     xerrors.Code = "AGENT_NOT_FOUND"
	CodeServiceNotFound   xerrors.Code = "SERVICE_NOT_FOUND"
)

// 可以通过 errors.Is 匹配的哨兵错误。
var (
	ErrAlreadyRegistered = xerrors.New(CodeAlreadyRegistered, "agent already registered")
	ErrMetadataRequired  = xerrors.New(CodeMetadataRequired, "metadata is required")
	ErrAgentNotFound     = xerrors.New(CodeAgentNotFound, "agent not found")
	ErrServiceNotFound   = xerrors.New(CodeServiceNotFound, "service not found")
)

func init() {
	xerrors.Register(CodeAlreadyRegistered, xerrors.Attributes{
		Message:  "agent already registered",
		Category: xerrors.CategoryStateConflict,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeMetadataRequired, xerrors.Attributes{
		Message:   "metadata is required",
		Category:  xerrors.CategoryValidation,
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
	})
	xerrors.Register(CodeAgentNotFound, xerrors.Attributes{
		Message:  "agent not found",
		Category: xerrors.CategoryStateConflict,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeServiceNotFound, xerrors.Attributes{
		Message:  "service not found",
		Category: xerrors.CategoryStateConflict,
		Severity: xerrors.SeverityInfo,
	})
}

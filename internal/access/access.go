// Package access 定义了金库与目录服务共享的角色校验逻辑。
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentVault/internal/errors"
)

// Role 标识一个特权角色。
type Role string

const (
	// RoleController 可以执行决策、配置额度、暂停与提取资金。
	RoleController Role = "controller"
	// RoleDirectoryAdmin 可以转移目录管理员身份。
	RoleDirectoryAdmin Role = "directory-admin"
)

// ErrUnauthorized 是调用方缺少角色时返回的哨兵错误。
var ErrUnauthorized = xerrors.New(xerrors.CodeUnauthorized, "")

// Require 校验 caller 是否持有角色 holder。
func Require(role Role, holder, caller common.Address) error {
	if holder == (common.Address{}) || caller != holder {
		return xerrors.New(xerrors.CodeUnauthorized,
			fmt.Sprintf("caller %s is not the %s", caller.Hex(), role),
			xerrors.WithMetadata("role", string(role)),
			xerrors.WithMetadata("caller", caller.Hex()))
	}
	return nil
}

// RequireSelf 校验 caller 只操作自己的身份记录。
func RequireSelf(identity, caller common.Address) error {
	if caller != identity {
		return xerrors.New(xerrors.CodeUnauthorized,
			fmt.Sprintf("caller %s may only modify its own record", caller.Hex()),
			xerrors.WithMetadata("role", "self"),
			xerrors.WithMetadata("caller", caller.Hex()))
	}
	return nil
}

// Authority 返回某个角色当前的持有者。
type Authority interface {
	Holder(ctx context.Context) (common.Address, error)
}

// AuthorityFunc 将函数适配为 Authority。
type AuthorityFunc func(ctx context.Context) (common.Address, error)

// Holder 实现 Authority 接口。
func (f AuthorityFunc) Holder(ctx context.Context) (common.Address, error) {
	return f(ctx)
}

// ReportingPolicy 控制谁可以上报交易结果。
type ReportingPolicy string

const (
	// ReportingOpen 允许任意调用方上报。
	ReportingOpen ReportingPolicy = "open"
	// ReportingGated 只允许 Authority 当前的持有者上报。
	ReportingGated ReportingPolicy = "gated"
)

// ParseReportingPolicy 解析配置字符串，空值视为 open。
func ParseReportingPolicy(value string) (ReportingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ReportingOpen):
		return ReportingOpen, nil
	case string(ReportingGated):
		return ReportingGated, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown reporting policy %q", value))
	}
}

// Reporter 根据策略校验上报方。
type Reporter struct {
	Policy    ReportingPolicy
	Authority Authority
	Role      Role
}

// Check 在 gated 模式下要求 caller 为 Authority 当前持有者。
func (r Reporter) Check(ctx context.Context, caller common.Address) error {
	if r.Policy != ReportingGated {
		return nil
	}
	if r.Authority == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "reporting authority not configured")
	}
	holder, err := r.Authority.Holder(ctx)
	if err != nil {
		return err
	}
	role := r.Role
	if role == "" {
		role = RoleController
	}
	return Require(role, holder, caller)
}

package errors

import "sync"

// Code 表示系统内的统一错误码，调用方可以据此做模式匹配。
type Code string

// Severity 描述错误的严重程度，用于日志与审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category 对错误进行分类，决定调用方应如何处理失败。
type Category string

const (
	// CategoryValidation 表示输入非法，修正输入后可以重试。
	CategoryValidation Category = "validation"
	// CategoryStateConflict 表示与当前状态冲突，相同参数重试永远不会成功。
	CategoryStateConflict Category = "state_conflict"
	// CategoryAuthorization 表示调用方缺少所需角色。
	CategoryAuthorization Category = "authorization"
	// CategoryPolicy 表示被策略拒绝，需要等待重置、解除暂停或降低请求。
	CategoryPolicy Category = "policy"
	// CategoryInternal 表示基础设施故障。
	CategoryInternal Category = "internal"
)

// 通用错误码，领域包通过 Register 追加自己的错误码。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Category  Category
	Severity  Severity
	Retryable bool
}

type catalog struct {
	mu      sync.RWMutex
	entries map[Code]Attributes
}

func (c *catalog) set(code Code, attr Attributes) {
	c.mu.Lock()
	c.entries[code] = attr
	c.mu.Unlock()
}

func (c *catalog) lookup(code Code) Attributes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if attr, ok := c.entries[code]; ok {
		return attr
	}
	return c.entries[CodeUnknown]
}

var codes = &catalog{entries: map[Code]Attributes{
	CodeUnknown:               {Message: "unknown error", Category: CategoryInternal, Severity: SeverityCritical},
	CodeInvalidArgument:       {Message: "invalid argument", Category: CategoryValidation, Severity: SeverityInfo, Retryable: true},
	CodeNotFound:              {Message: "resource not found", Category: CategoryStateConflict, Severity: SeverityInfo},
	CodeConflict:              {Message: "resource conflict", Category: CategoryStateConflict, Severity: SeverityWarning},
	CodeUnauthorized:          {Message: "caller does not hold the required role", Category: CategoryAuthorization, Severity: SeverityWarning},
	CodeInitializationFailure: {Message: "service not initialized", Category: CategoryInternal, Severity: SeverityCritical, Retryable: true},
	CodeStorageFailure:        {Message: "storage failure", Category: CategoryInternal, Severity: SeverityCritical, Retryable: true},
}}

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	codes.set(code, attr)
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	return codes.lookup(code)
}

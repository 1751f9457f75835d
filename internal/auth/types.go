// Package auth 负责从 HTTP 请求中识别调用方地址。
package auth

import (
	"fmt"
	"strings"
	"time"

	xerrors "AgentVault/internal/errors"
)

// Mode 表示调用方认证方式。
type Mode string

const (
	// ModeHeader 直接信任 X-Agent-Address，仅用于开发与测试。
	ModeHeader Mode = "header"
	// ModeSignature 要求对请求做 EIP-191 签名。
	ModeSignature Mode = "signature"
)

// 请求头名称。
const (
	HeaderAddress   = "X-Agent-Address"
	HeaderTimestamp = "X-Agent-Timestamp"
	HeaderNonce     = "X-Agent-Nonce"
	HeaderSignature = "X-Agent-Signature"
)

const (
	defaultMaxSkew = 5 * time.Minute
	maxBodyBytes   = 1 << 20
	maxNonceLength = 128
)

// CodeUnauthenticated 表示无法确认调用方身份。
const CodeUnauthenticated xerrors.Code = "UNAUTHENTICATED"

var (
	ErrMissingCaller    = xerrors.New(CodeUnauthenticated, "missing X-Agent-Address header")
	ErrInvalidCaller    = xerrors.New(CodeUnauthenticated, "X-Agent-Address is not a valid address")
	ErrInvalidSignature = xerrors.New(CodeUnauthenticated, "request signature does not match caller")
	ErrStaleRequest     = xerrors.New(CodeUnauthenticated, "request timestamp outside allowed skew")
	ErrMissingNonce     = xerrors.New(CodeUnauthenticated, "missing or oversized X-Agent-Nonce header")
	ErrReplayedRequest  = xerrors.New(CodeUnauthenticated, "request nonce already used")
)

func init() {
	xerrors.Register(CodeUnauthenticated, xerrors.Attributes{
		Message:  "caller could not be authenticated",
		Category: xerrors.CategoryAuthorization,
		Severity: xerrors.SeverityWarning,
	})
}

// Config 描述认证行为。
type Config struct {
	Mode Mode
	// MaxSkew 限制签名时间戳与服务端时钟的最大偏差。
	MaxSkew time.Duration
}

// ParseMode 解析配置中的认证模式，空值视为 header。
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeHeader:
		return ModeHeader, nil
	case ModeSignature:
		return ModeSignature, nil
	default:
		return "", fmt.Errorf("unsupported auth mode: %s", value)
	}
}

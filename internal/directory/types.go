package directory

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// 信誉分参数。
const (
	InitialReputation = 500
	MaxReputation     = 1000
	SuccessReward     = 10
	FailurePenalty    = 20
)

// Storage bounds. Service ids are counted in characters, descriptions in bytes.
const (
	MaxServiceIDLength   = 128
	MaxDescriptionLength = 65535
)

// Agent 是目录中登记的代理身份。
type Agent struct {
	Identity         common.Address
	Metadata         string
	Reputation       int
	TransactionCount uint64
	SuccessfulCount  uint64
	Active           bool
	Seq              uint64
	RegisteredAt     time.Time
	UpdatedAt        time.Time
}

// SuccessRate 返回成功交易所占百分比，向下取整；没有交易时为 0。
func (a Agent) SuccessRate() uint64 {
	if a.TransactionCount == 0 {
		return 0
	}
	return a.SuccessfulCount * 100 / a.TransactionCount
}

// Service 是代理对外提供的一项服务。
type Service struct {
	Agent       common.Address
	ServiceID   string
	Price       uint256.Int
	Description string
	Available   bool
	UpdatedAt   time.Time
}

// applyOutcome 按结果调整信誉分并截断在 [0, MaxReputation] 内。
func applyOutcome(score int, success bool) int {
	if success {
		score += SuccessReward
	} else {
		score -= FailurePenalty
	}
	switch {
	case score > MaxReputation:
		return MaxReputation
	case score < 0:
		return 0
	default:
		return score
	}
}

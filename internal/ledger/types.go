package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeAsset is the sentinel asset identifier for the chain's native coin.
var NativeAsset = common.Address{}

// DefaultNativeLimit is 0.1 native units expressed in wei.
const DefaultNativeLimit uint64 = 100_000_000_000_000_000

// DefaultCategory tags records whose request carried no category.
const DefaultCategory = "general"

// Storage bounds. Categories are counted in characters, proof pointers in bytes.
const (
	MaxCategoryLength     = 64
	MaxProofPointerLength = 65535
)

// Decision 表示一次已登记的决策记录。
type Decision struct {
	Fingerprint    common.Hash
	ProofPointer   string
	Logger         common.Address
	Logged         bool
	Executed       bool
	ExecutedAmount uint256.Int
	ExecutedPayee  common.Address
	ExecutedAsset  common.Address
	CreatedAt      time.Time
	ExecutedAt     time.Time
}

// State 返回决策所处的生命周期阶段。
func (d Decision) State() string {
	if d.Executed {
		return "executed"
	}
	return "logged"
}

// SpendingLimit 描述单一资产的额度和当前窗口内的累计支出。
type SpendingLimit struct {
	Asset common.Address
	Limit uint256.Int
	Spent uint256.Int
}

// Remaining 返回窗口内剩余额度，已超出时为零。
func (l SpendingLimit) Remaining() uint256.Int {
	var out uint256.Int
	if l.Spent.Gt(&l.Limit) {
		return out
	}
	out.Sub(&l.Limit, &l.Spent)
	return out
}

// Record 是追加写入的交易历史条目。
type Record struct {
	Sequence    uint64
	Destination common.Address
	Asset       common.Address
	Amount      uint256.Int
	Category    string
	Success     bool
	Fingerprint common.Hash
	Timestamp   time.Time
}

// Control 保存金库的控制者与暂停状态。
type Control struct {
	Controller common.Address
	Paused     bool
}

// ExecuteRequest 描述一次待验证的支出请求。
type ExecuteRequest struct {
	Fingerprint common.Hash
	Payee       common.Address
	Asset       common.Address
	Amount      *uint256.Int
	Category    string
}

// Receipt 是执行成功后的结果。
type Receipt struct {
	Decision  Decision
	Record    Record
	Remaining uint256.Int
}

// VaultStatus 汇总金库的当前状态。
type VaultStatus struct {
	Controller    common.Address
	Paused        bool
	NativeBalance uint256.Int
	Records       uint64
}

func saturatingAdd(a, b *uint256.Int) uint256.Int {
	var out uint256.Int
	if _, overflow := out.AddOverflow(a, b); overflow {
		out.SetAllOne()
	}
	return out
}
